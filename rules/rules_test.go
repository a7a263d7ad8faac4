package rules

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KanavDutta/signalfence/core"
	"github.com/KanavDutta/signalfence/store"
)

// syncScheduler runs deferred writes inline so tests observe them immediately.
type syncScheduler struct{}

func (syncScheduler) Schedule(work func(ctx context.Context)) { work(context.Background()) }

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	t     *testing.T
	cfg   *core.Config
	clock *testClock
	kv    *store.MemoryStore
}

func newTestEnv(t *testing.T, cfg *core.Config) *testEnv {
	t.Helper()
	if cfg == nil {
		cfg = core.NewConfig()
	}
	clock := &testClock{now: time.UnixMilli(1_700_000_000_000)}
	return &testEnv{t: t, cfg: cfg, clock: clock, kv: store.NewMemoryStoreWithClock(clock.Now)}
}

func (e *testEnv) options() *Options {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Options{
		Config:    e.cfg,
		Logger:    l,
		Store:     e.kv,
		Cache:     NewCache(e.kv),
		Scheduler: syncScheduler{},
	}
}

func (e *testEnv) request(method, path string) *core.SecurityContext {
	return &core.SecurityContext{
		IP:        "203.0.113.7",
		UserAgent: "unknown",
		Path:      path,
		Method:    method,
		Timestamp: e.clock.Now().UnixMilli(),
		Headers:   map[string]string{},
		Fields:    map[string]string{},
	}
}

// eval runs one rule against sc with fresh per-request options.
func (e *testEnv) eval(name string, sc *core.SecurityContext) *core.Check {
	e.t.Helper()
	r := ruleByName(e.t, name)
	check, err := r.Evaluate(context.Background(), sc, e.options())
	require.NoError(e.t, err)
	return check
}

// evalAll runs the named rules in order for one request, sharing options like the engine does.
func (e *testEnv) evalAll(sc *core.SecurityContext, names ...string) []*core.Check {
	e.t.Helper()
	opts := e.options()
	var out []*core.Check
	for _, name := range names {
		check, err := ruleByName(e.t, name).Evaluate(context.Background(), sc, opts)
		require.NoError(e.t, err)
		if check != nil {
			out = append(out, check)
		}
	}
	return out
}

func ruleByName(t *testing.T, name string) Rule {
	t.Helper()
	for _, r := range All() {
		if r.Name() == name {
			return r
		}
	}
	t.Fatalf("no rule named %q", name)
	return nil
}

func TestAll_RegistersEveryCategory(t *testing.T) {
	counts := map[core.CheckType]int{}
	names := map[string]bool{}
	for _, r := range All() {
		counts[r.Type()]++
		assert.False(t, names[r.Name()], "duplicate rule name %s", r.Name())
		names[r.Name()] = true
		assert.True(t, r.Enabled())
		assert.NotEmpty(t, r.Description())
	}
	assert.Equal(t, 1, counts[core.CheckRateLimit])
	assert.Equal(t, 3, counts[core.CheckAuthFailure])
	assert.Equal(t, 5, counts[core.CheckBotDetection])
	assert.Equal(t, 5, counts[core.CheckDDoSProtection])
}

func TestSort_DescendingPriority(t *testing.T) {
	sorted := Sort(All())
	for i := 1; i < len(sorted); i++ {
		assert.GreaterOrEqual(t, sorted[i-1].Priority(), sorted[i].Priority())
	}
	assert.Equal(t, RuleDDoSIP, sorted[0].Name())
	assert.Equal(t, RuleDDoSCleanup, sorted[len(sorted)-1].Name())
}

func TestCache_ReadThroughAndWrites(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	kv.Set(ctx, "a", "1", 0)

	c := NewCache(kv)
	c.Prefetch(ctx, "a", "b")

	v, ok := c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	// b was prefetched as missing, so a later store write is not seen
	kv.Set(ctx, "b", "2", 0)
	_, ok = c.Get(ctx, "b")
	assert.False(t, ok)

	// c was never prefetched and reads through
	kv.Set(ctx, "c", "3", 0)
	v, ok = c.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	c.Put("a", "9")
	v, _ = c.Get(ctx, "a")
	assert.Equal(t, "9", v)

	c.Forget("a")
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok)
}
