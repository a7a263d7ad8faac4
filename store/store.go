package store

import (
	"context"
	"time"
)

// KV is the key-value adapter every security component talks to.
//
// Implementations are fail-soft: no method returns an error. A timeout or backend failure
// is logged and the neutral value is returned (missing, 0, empty, false).
type KV interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration) bool
	Delete(ctx context.Context, keys ...string) int64
	// Incr increments key and applies ttl when the key was created by this call
	Incr(ctx context.Context, key string, ttl time.Duration) int64
	// MGet returns one entry per key, nil for missing or non-string keys
	MGet(ctx context.Context, keys ...string) []*string
	MSet(ctx context.Context, values map[string]string, ttl time.Duration) bool
	Expire(ctx context.Context, key string, ttl time.Duration) bool

	HGet(ctx context.Context, key, field string) (string, bool)
	HSet(ctx context.Context, key string, values map[string]string) bool
	HGetAll(ctx context.Context, key string) map[string]string
	HIncrBy(ctx context.Context, key, field string, n int64) int64

	LPush(ctx context.Context, key string, values ...string) int64
	LTrim(ctx context.Context, key string, start, stop int64) bool
	LRange(ctx context.Context, key string, start, stop int64) []string

	ZAdd(ctx context.Context, key string, score float64, member string) int64
	ZCount(ctx context.Context, key string, min, max float64) int64
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) int64

	// WindowCount drops members scored below windowStart and counts the rest in one round trip.
	WindowCount(ctx context.Context, key string, windowStart float64) int64
	// WindowHit drops members scored below windowStart, counts the rest, then records member
	// at score and refreshes ttl, all in one round trip. The returned count excludes member.
	WindowHit(ctx context.Context, key, member string, score, windowStart float64, ttl time.Duration) int64
}

// Scheduler runs work that must outlive the current request.
type Scheduler interface {
	Schedule(work func(ctx context.Context))
}

// Async issues a write through sched without awaiting it. A nil scheduler still fires the
// write on its own goroutine, but nothing waits for it.
func Async(sched Scheduler, work func(ctx context.Context)) {
	if sched == nil {
		go work(context.Background())
		return
	}
	sched.Schedule(work)
}
