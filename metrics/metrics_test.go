package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KanavDutta/signalfence/core"
	"github.com/KanavDutta/signalfence/store"
)

func TestAggregator_RecordAndSnapshot(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	at := time.UnixMilli(1_700_000_000_000)
	a := NewAggregator(kv, func() time.Time { return at })

	a.Record(ctx, &core.Result{Allowed: true, Checks: []*core.Check{
		core.NewCheck(core.CheckBotDetection, "bot-user-agent", core.SeverityLow, false, "browser", nil),
	}})
	a.Record(ctx, &core.Result{Allowed: false, Checks: []*core.Check{
		core.NewCheck(core.CheckRateLimit, "rate-limit", core.SeverityHigh, true, "limit", nil),
	}})
	// dry run: blocked check on an allowed request
	a.Record(ctx, &core.Result{Allowed: true, Checks: []*core.Check{
		core.NewCheck(core.CheckDDoSProtection, "ddos-ip", core.SeverityLow, true, "flood", nil),
	}})

	s := a.Snapshot(ctx)
	assert.Equal(t, int64(3), s.TotalRequests)
	assert.Equal(t, int64(1), s.BlockedRequests)
	assert.Equal(t, int64(1), s.RateLimitHits)
	assert.Equal(t, int64(1), s.DDoSAttempts)
	assert.Zero(t, s.BotDetections, "informational checks are not detections")
	assert.Equal(t, at.UnixMilli(), s.LastUpdated)
	assert.InDelta(t, 1.0/3.0, s.BlockRate, 1e-9)
}

func TestAggregator_EmptySnapshot(t *testing.T) {
	s := NewAggregator(store.NewMemoryStore(), nil).Snapshot(context.Background())
	assert.Zero(t, s.TotalRequests)
	assert.Zero(t, s.BlockRate)
}

func TestFieldFor(t *testing.T) {
	f, ok := FieldFor(core.CheckAuthFailure)
	assert.True(t, ok)
	assert.Equal(t, FieldAuthFailures, f)
	_, ok = FieldFor("OTHER")
	assert.False(t, ok)
}

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	before := testutil.ToFloat64(blockedTotal)
	Observe(&core.Result{Allowed: false, Metadata: core.Metadata{CacheHit: true}, Checks: []*core.Check{
		core.NewCheck(core.CheckBotDetection, "bot-honeypot", core.SeverityHigh, true, "honeypot", nil),
	}}, 3*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(blockedTotal))
	assert.GreaterOrEqual(t, testutil.ToFloat64(cacheHitsTotal), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(checksTotal.WithLabelValues("BOT_DETECTION", "HIGH", "true")), 1.0)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
