package rules

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KanavDutta/signalfence/core"
)

func ddosConfig(threshold int) *core.Config {
	cfg := core.NewConfig()
	cfg.DDoS = core.DDoSConfig{Threshold: threshold, Window: time.Minute}
	return cfg
}

func TestDDoS_PerIPSeverityBands(t *testing.T) {
	tests := []struct {
		requests int
		want     core.Severity
	}{
		{requests: 2, want: core.SeverityMedium},
		{requests: 4, want: core.SeverityMedium},
		{requests: 5, want: core.SeverityHigh},
		{requests: 9, want: core.SeverityHigh},
		{requests: 10, want: core.SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.requests), func(t *testing.T) {
			env := newTestEnv(t, ddosConfig(1))
			var last *core.Check
			for i := 0; i < tt.requests; i++ {
				last = env.eval(RuleDDoSIP, env.request(http.MethodGet, "/"))
				env.clock.Advance(time.Millisecond)
			}
			require.NotNil(t, last)
			assert.True(t, last.Blocked)
			assert.Equal(t, tt.want, last.Severity)
		})
	}
}

func TestDDoS_NoCheckAtOrBelowThreshold(t *testing.T) {
	env := newTestEnv(t, ddosConfig(3))
	for i := 0; i < 3; i++ {
		assert.Nil(t, env.eval(RuleDDoSIP, env.request(http.MethodGet, "/")))
	}
	check := env.eval(RuleDDoSIP, env.request(http.MethodGet, "/"))
	require.NotNil(t, check)
	assert.Equal(t, core.SeverityLow, check.Severity, "4/3 is below 2x")
	assert.True(t, check.Blocked)
}

func TestDDoS_WindowExpires(t *testing.T) {
	env := newTestEnv(t, ddosConfig(1))
	assert.Nil(t, env.eval(RuleDDoSIP, env.request(http.MethodGet, "/")))
	env.clock.Advance(61 * time.Second)
	assert.Nil(t, env.eval(RuleDDoSIP, env.request(http.MethodGet, "/")))
}

func TestDDoS_ScopedThresholds(t *testing.T) {
	env := newTestEnv(t, ddosConfig(1))

	// global allows 10, path allows 5
	for i := 0; i < 5; i++ {
		assert.Nil(t, env.eval(RuleDDoSGlobal, env.request(http.MethodGet, "/a")))
		assert.Nil(t, env.eval(RuleDDoSPath, env.request(http.MethodGet, "/users/"+strconv.Itoa(i))))
	}
	check := env.eval(RuleDDoSPath, env.request(http.MethodGet, "/users/99"))
	require.NotNil(t, check)
	assert.Equal(t, "path /users/:id", check.Details["scope"])

	for i := 0; i < 5; i++ {
		assert.Nil(t, env.eval(RuleDDoSGlobal, env.request(http.MethodGet, "/a")))
	}
	assert.NotNil(t, env.eval(RuleDDoSGlobal, env.request(http.MethodGet, "/a")))
}

func TestDDoS_MethodMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, MethodMultiplier(http.MethodGet))
	assert.Equal(t, 1.0, MethodMultiplier(http.MethodHead))
	assert.Equal(t, 0.5, MethodMultiplier(http.MethodPost))
	assert.Equal(t, 0.5, MethodMultiplier(http.MethodDelete))
	assert.Equal(t, 0.3, MethodMultiplier(http.MethodOptions))

	env := newTestEnv(t, ddosConfig(4))
	for i := 0; i < 2; i++ {
		assert.Nil(t, env.eval(RuleDDoSMethod, env.request(http.MethodPost, "/")))
	}
	check := env.eval(RuleDDoSMethod, env.request(http.MethodPost, "/"))
	require.NotNil(t, check)
	assert.Equal(t, 2.0, check.Details["threshold"])
}

func TestDDoS_CleanupPrunesOldEntries(t *testing.T) {
	env := newTestEnv(t, ddosConfig(100))
	ctx := context.Background()
	now := env.clock.Now().UnixMilli()
	key := DDoSIPKey("203.0.113.7")

	env.kv.ZAdd(ctx, key, float64(now-3*time.Minute.Milliseconds()), "old")
	env.kv.ZAdd(ctx, key, float64(now-time.Minute.Milliseconds()), "recent")

	assert.Nil(t, env.eval(RuleDDoSCleanup, env.request(http.MethodGet, "/")))
	assert.Equal(t, int64(1), env.kv.ZCount(ctx, key, math.Inf(-1), math.Inf(1)))
}
