package rules

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KanavDutta/signalfence/core"
)

var authRules = []string{RuleAuthFailureCleanup, RuleAuthFailureDetection, RuleAuthFailurePostProcess}

func authConfig() *core.Config {
	cfg := core.NewConfig()
	cfg.AuthFailure.PathOverrides = map[string]core.AuthPolicy{
		"/login": {MaxAttempts: 3, LockoutDuration: 15 * time.Minute},
	}
	return cfg
}

func TestAuthFailure_LockoutLifecycle(t *testing.T) {
	env := newTestEnv(t, authConfig())

	assert.Empty(t, env.evalAll(env.request(http.MethodPost, "/login"), authRules...), "first failure is silent")

	env.clock.Advance(time.Second)
	checks := env.evalAll(env.request(http.MethodPost, "/login"), authRules...)
	require.Len(t, checks, 1)
	assert.Equal(t, core.SeverityMedium, checks[0].Severity)
	assert.False(t, checks[0].Blocked)

	env.clock.Advance(time.Second)
	checks = env.evalAll(env.request(http.MethodPost, "/login"), authRules...)
	require.Len(t, checks, 1)
	assert.Equal(t, core.SeverityCritical, checks[0].Severity)
	assert.True(t, checks[0].Blocked)

	env.clock.Advance(time.Minute)
	checks = env.evalAll(env.request(http.MethodGet, "/login"), authRules...)
	require.Len(t, checks, 1)
	assert.Equal(t, RuleAuthFailureDetection, checks[0].RuleID)
	assert.Equal(t, core.SeverityHigh, checks[0].Severity)
	assert.True(t, checks[0].Blocked)

	env.clock.Advance(15 * time.Minute)
	assert.Empty(t, env.evalAll(env.request(http.MethodGet, "/login"), authRules...))
	assert.Empty(t, env.evalAll(env.request(http.MethodPost, "/login"), authRules...), "counting restarts at 1")

	raw, ok := env.kv.Get(context.Background(), AuthFailureKey("203.0.113.7"))
	require.True(t, ok)
	var st AuthState
	require.NoError(t, json.Unmarshal([]byte(raw), &st))
	assert.Equal(t, 1, st.Attempts)
	assert.Zero(t, st.LockoutUntil)
}

func TestAuthFailure_CleanupRemovesExpiredLockout(t *testing.T) {
	env := newTestEnv(t, authConfig())
	ctx := context.Background()
	now := env.clock.Now().UnixMilli()

	data, _ := json.Marshal(AuthState{Attempts: 3, LockoutUntil: now - 1})
	env.kv.Set(ctx, AuthFailureKey("203.0.113.7"), string(data), 0)

	assert.Nil(t, env.eval(RuleAuthFailureCleanup, env.request(http.MethodGet, "/anything")))
	_, ok := env.kv.Get(ctx, AuthFailureKey("203.0.113.7"))
	assert.False(t, ok)
}

func TestAuthFailure_IgnoresUnprotectedPathsAndGets(t *testing.T) {
	env := newTestEnv(t, authConfig())

	for i := 0; i < 5; i++ {
		assert.Empty(t, env.evalAll(env.request(http.MethodPost, "/register"), authRules...))
		assert.Empty(t, env.evalAll(env.request(http.MethodGet, "/login"), authRules...))
	}
	_, ok := env.kv.Get(context.Background(), AuthFailureKey("203.0.113.7"))
	assert.False(t, ok)
}

func TestAuthFailure_CorruptStateIsAnError(t *testing.T) {
	env := newTestEnv(t, authConfig())
	env.kv.Set(context.Background(), AuthFailureKey("203.0.113.7"), "{not json", 0)

	_, err := ruleByName(t, RuleAuthFailureDetection).Evaluate(context.Background(),
		env.request(http.MethodGet, "/login"), env.options())
	assert.Error(t, err)
}
