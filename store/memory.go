package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-process KV for single-instance deployments and tests.
// It is safe for concurrent use; data is lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	now     func() time.Time
}

type memEntry struct {
	str     *string
	hash    map[string]string
	list    []string
	zset    map[string]float64
	expires time.Time
}

// Ensure MemoryStore implements KV interface
var _ KV = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates an in-memory store whose TTLs follow now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memEntry), now: now}
}

// live returns the entry for key, evicting it if expired. MUST be called with s.mu locked.
func (s *MemoryStore) live(key string) *memEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		delete(s.entries, key)
		return nil
	}
	return e
}

// ensure returns a live entry for key, creating it if needed. MUST be called with s.mu locked.
func (s *MemoryStore) ensure(key string) *memEntry {
	if e := s.live(key); e != nil {
		return e
	}
	e := &memEntry{}
	s.entries[key] = e
	return e
}

func (s *MemoryStore) expireAt(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

// Get retrieves the string value for key
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || e.str == nil {
		return "", false
	}
	return *e.str, true
}

// Set stores value for key
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := value
	s.entries[key] = &memEntry{str: &v, expires: s.expireAt(ttl)}
	return true
}

// Delete removes keys
func (s *MemoryStore) Delete(_ context.Context, keys ...string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, k := range keys {
		if s.live(k) != nil {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Incr increments a counter
func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	var n int64
	if e != nil && e.str != nil {
		n, _ = strconv.ParseInt(*e.str, 10, 64)
	}
	n++
	v := strconv.FormatInt(n, 10)
	if e == nil {
		s.entries[key] = &memEntry{str: &v, expires: s.expireAt(ttl)}
	} else {
		e.str = &v
	}
	return n
}

// MGet returns one entry per key
func (s *MemoryStore) MGet(_ context.Context, keys ...string) []*string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*string, len(keys))
	for i, k := range keys {
		if e := s.live(k); e != nil && e.str != nil {
			v := *e.str
			out[i] = &v
		}
	}
	return out
}

// MSet stores several keys
func (s *MemoryStore) MSet(ctx context.Context, values map[string]string, ttl time.Duration) bool {
	for k, v := range values {
		s.Set(ctx, k, v, ttl)
	}
	return true
}

// Expire sets a ttl on an existing key
func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return false
	}
	e.expires = s.expireAt(ttl)
	return true
}

// HGet reads one hash field
func (s *MemoryStore) HGet(_ context.Context, key, field string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil || e.hash == nil {
		return "", false
	}
	v, ok := e.hash[field]
	return v, ok
}

// HSet writes hash fields
func (s *MemoryStore) HSet(_ context.Context, key string, values map[string]string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensure(key)
	if e.hash == nil {
		e.hash = make(map[string]string, len(values))
	}
	for k, v := range values {
		e.hash[k] = v
	}
	return true
}

// HGetAll reads a whole hash
func (s *MemoryStore) HGetAll(_ context.Context, key string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]string{}
	if e := s.live(key); e != nil {
		for k, v := range e.hash {
			out[k] = v
		}
	}
	return out
}

// HIncrBy increments a hash field
func (s *MemoryStore) HIncrBy(_ context.Context, key, field string, n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensure(key)
	if e.hash == nil {
		e.hash = make(map[string]string)
	}
	cur, _ := strconv.ParseInt(e.hash[field], 10, 64)
	cur += n
	e.hash[field] = strconv.FormatInt(cur, 10)
	return cur
}

// LPush prepends values
func (s *MemoryStore) LPush(_ context.Context, key string, values ...string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensure(key)
	for _, v := range values {
		e.list = append([]string{v}, e.list...)
	}
	return int64(len(e.list))
}

// LTrim keeps elements start..stop
func (s *MemoryStore) LTrim(_ context.Context, key string, start, stop int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return true
	}
	lo, hi := listBounds(len(e.list), start, stop)
	if lo > hi {
		e.list = nil
		return true
	}
	e.list = append([]string(nil), e.list[lo:hi+1]...)
	return true
}

// LRange reads elements start..stop
func (s *MemoryStore) LRange(_ context.Context, key string, start, stop int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		return []string{}
	}
	lo, hi := listBounds(len(e.list), start, stop)
	if lo > hi {
		return []string{}
	}
	return append([]string(nil), e.list[lo:hi+1]...)
}

// ZAdd adds member at score
func (s *MemoryStore) ZAdd(_ context.Context, key string, score float64, member string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zadd(key, score, member)
}

func (s *MemoryStore) zadd(key string, score float64, member string) int64 {
	e := s.ensure(key)
	if e.zset == nil {
		e.zset = make(map[string]float64)
	}
	_, exists := e.zset[member]
	e.zset[member] = score
	if exists {
		return 0
	}
	return 1
}

// ZCount counts members with min <= score <= max
func (s *MemoryStore) ZCount(_ context.Context, key string, min, max float64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zcount(key, min, max)
}

func (s *MemoryStore) zcount(key string, min, max float64) int64 {
	e := s.live(key)
	if e == nil {
		return 0
	}
	var n int64
	for _, sc := range e.zset {
		if sc >= min && sc <= max {
			n++
		}
	}
	return n
}

// ZRemRangeByScore removes members with min <= score <= max
func (s *MemoryStore) ZRemRangeByScore(_ context.Context, key string, min, max float64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zrem(key, func(sc float64) bool { return sc >= min && sc <= max })
}

func (s *MemoryStore) zrem(key string, match func(float64) bool) int64 {
	e := s.live(key)
	if e == nil {
		return 0
	}
	var n int64
	for m, sc := range e.zset {
		if match(sc) {
			delete(e.zset, m)
			n++
		}
	}
	return n
}

// WindowCount prunes and counts a sliding window
func (s *MemoryStore) WindowCount(_ context.Context, key string, windowStart float64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zrem(key, func(sc float64) bool { return sc < windowStart })
	return s.zcount(key, windowStart, maxScore)
}

// WindowHit prunes, counts, records and refreshes a sliding window
func (s *MemoryStore) WindowHit(_ context.Context, key, member string, at, windowStart float64, ttl time.Duration) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zrem(key, func(sc float64) bool { return sc < windowStart })
	n := s.zcount(key, windowStart, maxScore)
	s.zadd(key, at, member)
	if ttl > 0 {
		s.entries[key].expires = s.expireAt(ttl)
	}
	return n
}

// Clear removes everything
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*memEntry)
}

const maxScore = float64(1<<63 - 1)

// listBounds resolves Redis-style (possibly negative) list indexes.
func listBounds(n int, start, stop int64) (int, int) {
	l := int64(n)
	if start < 0 {
		start += l
	}
	if stop < 0 {
		stop += l
	}
	if start < 0 {
		start = 0
	}
	if stop >= l {
		stop = l - 1
	}
	return int(start), int(stop)
}
