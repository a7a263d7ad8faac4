package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewConfig_IsValid(t *testing.T) {
	require.NoError(t, NewConfig().Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"bad mode", func(c *Config) { c.Mode = "MONITOR" }, ErrInvalidMode},
		{"zero max", func(c *Config) { c.RateLimit.Default.Max = 0 }, ErrInvalidThreshold},
		{"zero window", func(c *Config) { c.RateLimit.Default.Window = 0 }, ErrInvalidWindow},
		{"bad override", func(c *Config) {
			c.RateLimit.PathOverrides["/api"] = RateLimitPolicy{Max: 1}
		}, ErrInvalidWindow},
		{"bad auth attempts", func(c *Config) {
			c.AuthFailure.PathOverrides["/login"] = AuthPolicy{LockoutDuration: time.Minute}
		}, ErrInvalidThreshold},
		{"bad ddos threshold", func(c *Config) { c.DDoS.Threshold = -1 }, ErrInvalidThreshold},
		{"bad ddos window", func(c *Config) { c.DDoS.Window = 0 }, ErrInvalidWindow},
		{"bad deny backend", func(c *Config) { c.DenyCache.Backend = "disk" }, ErrInvalidConfig},
		{"bad bot severity", func(c *Config) { c.Bot.BlockSeverity = "SEVERE" }, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestRateLimitConfig_LongestPrefixWins(t *testing.T) {
	cfg := RateLimitConfig{
		Default: RateLimitPolicy{Max: 100, Window: time.Minute},
		PathOverrides: map[string]RateLimitPolicy{
			"/api":       {Max: 50, Window: time.Minute},
			"/api/login": {Max: 5, Window: time.Minute},
		},
	}

	scope, policy := cfg.Policy("/api/login/verify")
	assert.Equal(t, "/api/login", scope)
	assert.Equal(t, 5, policy.Max)

	scope, policy = cfg.Policy("/api/users")
	assert.Equal(t, "/api", scope)
	assert.Equal(t, 50, policy.Max)

	// "/apix" is not under "/api"
	scope, policy = cfg.Policy("/apix")
	assert.Equal(t, "", scope)
	assert.Equal(t, 100, policy.Max)
}

func TestAuthFailureConfig_Policy(t *testing.T) {
	cfg := AuthFailureConfig{PathOverrides: map[string]AuthPolicy{
		"/login": {MaxAttempts: 3, LockoutDuration: time.Hour},
	}}

	scope, policy, ok := cfg.Policy("/login")
	require.True(t, ok)
	assert.Equal(t, "/login", scope)
	assert.Equal(t, 3, policy.MaxAttempts)

	_, _, ok = cfg.Policy("/logout")
	assert.False(t, ok)
}

func TestBotConfig_SeverityOnlyYAML(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, yaml.Unmarshal([]byte("bot: medium\n"), cfg))

	assert.Equal(t, SeverityMedium, cfg.Bot.BlockSeverity)
	assert.Equal(t, 100*time.Millisecond, cfg.Bot.MinInterval)
	assert.Equal(t, 500, cfg.Bot.FingerprintLimit)
	assert.NotEmpty(t, cfg.Bot.DenyTokens)
}

func TestBotConfig_DetailedYAML(t *testing.T) {
	var holder struct {
		Bot BotConfig `yaml:"bot"`
	}
	data := []byte(`
bot:
  block_severity: critical
  min_interval: 250ms
  honeypot_fields: [nickname]
`)
	require.NoError(t, yaml.Unmarshal(data, &holder))

	assert.Equal(t, SeverityCritical, holder.Bot.BlockSeverity)
	assert.Equal(t, 250*time.Millisecond, holder.Bot.MinInterval)
	assert.Equal(t, []string{"nickname"}, holder.Bot.HoneypotFields)
	assert.Equal(t, 500, holder.Bot.FingerprintLimit)
}

func TestBotConfig_InvalidSeverity(t *testing.T) {
	cfg := NewConfig()
	assert.Error(t, yaml.Unmarshal([]byte("bot: loud\n"), cfg))
}
