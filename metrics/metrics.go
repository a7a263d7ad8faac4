// Package metrics aggregates request outcomes into the shared security:metrics hash and
// exposes the same signals as Prometheus collectors.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/KanavDutta/signalfence/core"
	"github.com/KanavDutta/signalfence/store"
)

// HashKey is the shared counters hash.
const HashKey = "security:metrics"

// Hash fields
const (
	FieldTotalRequests   = "totalRequests"
	FieldBlockedRequests = "blockedRequests"
	FieldRateLimitHits   = "rateLimitHits"
	FieldAuthFailures    = "authFailures"
	FieldBotDetections   = "botDetections"
	FieldDDoSAttempts    = "ddosAttempts"
	FieldLastUpdated     = "lastUpdated"
)

// FieldFor returns the per-type counter field for a check type.
func FieldFor(t core.CheckType) (string, bool) {
	switch t {
	case core.CheckRateLimit:
		return FieldRateLimitHits, true
	case core.CheckAuthFailure:
		return FieldAuthFailures, true
	case core.CheckBotDetection:
		return FieldBotDetections, true
	case core.CheckDDoSProtection:
		return FieldDDoSAttempts, true
	default:
		return "", false
	}
}

// Aggregator updates the counters hash. All writes are fail-soft.
type Aggregator struct {
	kv  store.KV
	now func() time.Time
}

// NewAggregator creates an aggregator over kv. now may be nil.
func NewAggregator(kv store.KV, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{kv: kv, now: now}
}

// Record counts one evaluated request. blockedRequests counts denied requests; the per-type
// fields count blocked checks, so dry-run detections are still visible.
func (a *Aggregator) Record(ctx context.Context, res *core.Result) {
	a.kv.HIncrBy(ctx, HashKey, FieldTotalRequests, 1)
	if !res.Allowed {
		a.kv.HIncrBy(ctx, HashKey, FieldBlockedRequests, 1)
	}
	for _, c := range res.Checks {
		if !c.Blocked {
			continue
		}
		if field, ok := FieldFor(c.Type); ok {
			a.kv.HIncrBy(ctx, HashKey, field, 1)
		}
	}
	a.kv.HSet(ctx, HashKey, map[string]string{
		FieldLastUpdated: strconv.FormatInt(a.now().UnixMilli(), 10),
	})
}

// Snapshot is a point-in-time view of the counters hash.
type Snapshot struct {
	TotalRequests   int64   `json:"totalRequests"`
	BlockedRequests int64   `json:"blockedRequests"`
	RateLimitHits   int64   `json:"rateLimitHits"`
	AuthFailures    int64   `json:"authFailures"`
	BotDetections   int64   `json:"botDetections"`
	DDoSAttempts    int64   `json:"ddosAttempts"`
	LastUpdated     int64   `json:"lastUpdated"`
	BlockRate       float64 `json:"blockRate"`
}

// Snapshot reads the counters. Missing or unreadable fields read as zero.
func (a *Aggregator) Snapshot(ctx context.Context) *Snapshot {
	h := a.kv.HGetAll(ctx, HashKey)
	field := func(name string) int64 {
		n, _ := strconv.ParseInt(h[name], 10, 64)
		return n
	}
	s := &Snapshot{
		TotalRequests:   field(FieldTotalRequests),
		BlockedRequests: field(FieldBlockedRequests),
		RateLimitHits:   field(FieldRateLimitHits),
		AuthFailures:    field(FieldAuthFailures),
		BotDetections:   field(FieldBotDetections),
		DDoSAttempts:    field(FieldDDoSAttempts),
		LastUpdated:     field(FieldLastUpdated),
	}
	if s.TotalRequests > 0 {
		s.BlockRate = float64(s.BlockedRequests) / float64(s.TotalRequests)
	}
	return s
}
