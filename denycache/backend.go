package denycache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/KanavDutta/signalfence/store"
)

// Backend stores deny entries. Implementations never fail the caller.
type Backend interface {
	Get(ctx context.Context, key string) (*Entry, bool)
	Put(ctx context.Context, key string, e *Entry, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// KVBackend keeps entries as JSON in the shared KV store, visible to every instance.
type KVBackend struct {
	kv  store.KV
	log logrus.FieldLogger
}

// Ensure KVBackend implements Backend interface
var _ Backend = (*KVBackend)(nil)

// NewKVBackend creates a backend over kv.
func NewKVBackend(kv store.KV, log logrus.FieldLogger) *KVBackend {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &KVBackend{kv: kv, log: log}
}

// Get loads the entry at key. An entry that fails to decode is deleted and reported missing.
func (b *KVBackend) Get(ctx context.Context, key string) (*Entry, bool) {
	raw, ok := b.kv.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		b.log.WithError(err).WithField("key", key).Warn("discarding unreadable deny entry")
		b.kv.Delete(ctx, key)
		return nil, false
	}
	return &e, true
}

// Put stores e as JSON under key with ttl
func (b *KVBackend) Put(ctx context.Context, key string, e *Entry, ttl time.Duration) {
	data, err := json.Marshal(e)
	if err != nil {
		b.log.WithError(err).WithField("key", key).Warn("failed to encode deny entry")
		return
	}
	b.kv.Set(ctx, key, string(data), ttl)
}

// Delete removes the entry at key
func (b *KVBackend) Delete(ctx context.Context, key string) {
	b.kv.Delete(ctx, key)
}

// MemoryBackend keeps entries in process memory. It is safe for concurrent use and is
// lost on restart.
type MemoryBackend struct {
	entries map[string]*Entry
	mu      sync.RWMutex
	now     func() time.Time
}

// Ensure MemoryBackend implements Backend interface
var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty in-process backend. now may be nil.
func NewMemoryBackend(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{entries: make(map[string]*Entry), now: now}
}

// Get returns a copy of the entry at key, live or not. Expiry is left to the caller and Prune.
func (b *MemoryBackend) Get(_ context.Context, key string) (*Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[key]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// Put stores a copy of e. The ttl is ignored; Entry.Until governs expiry.
func (b *MemoryBackend) Put(_ context.Context, key string, e *Entry, _ time.Duration) {
	cp := *e
	b.mu.Lock()
	b.entries[key] = &cp
	b.mu.Unlock()
}

// Delete removes the entry at key
func (b *MemoryBackend) Delete(_ context.Context, key string) {
	b.mu.Lock()
	delete(b.entries, key)
	b.mu.Unlock()
}

// Prune removes entries that are no longer live.
// Returns the number of entries removed.
func (b *MemoryBackend) Prune() int {
	now := b.now().UnixMilli()

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for key, e := range b.entries {
		if !e.Live(now) {
			delete(b.entries, key)
			removed++
		}
	}
	return removed
}

// Count returns the number of entries held, live or not.
func (b *MemoryBackend) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// StartPruning prunes on the given cron schedule (e.g. "@every 1m") until the returned
// function is called.
func (b *MemoryBackend) StartPruning(schedule string, log logrus.FieldLogger) (func(), error) {
	if schedule == "" {
		return func() {}, nil
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if n := b.Prune(); n > 0 && log != nil {
			log.WithField("removed", n).Debug("pruned deny cache")
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return func() {
		<-c.Stop().Done()
	}, nil
}
