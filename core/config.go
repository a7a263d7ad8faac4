package core

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects whether blocked checks are authoritative.
type Mode string

const (
	ModeDryRun Mode = "DRY_RUN"
	ModeLive   Mode = "LIVE"
)

// Deny-cache backends
const (
	DenyCacheKV     = "kv"
	DenyCacheMemory = "memory"
)

// Config is the complete security configuration. It is treated as immutable once an
// engine has been built from it.
type Config struct {
	Mode        Mode              `yaml:"mode"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	AuthFailure AuthFailureConfig `yaml:"auth_failure"`
	Bot         BotConfig         `yaml:"bot"`
	DDoS        DDoSConfig        `yaml:"ddos"`
	DenyCache   DenyCacheConfig   `yaml:"deny_cache"`
	Alerts      AlertConfig       `yaml:"alerts,omitempty"`
	Logging     LoggingConfig     `yaml:"logging"`
	Platform    PlatformConfig    `yaml:"platform,omitempty"`
	Store       StoreConfig       `yaml:"store"`

	// DisabledRules lists rule names that are never evaluated
	DisabledRules []string `yaml:"disabled_rules,omitempty"`
}

// RateLimitPolicy allows Max requests per sliding Window.
type RateLimitPolicy struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// RateLimitConfig holds the default policy and per path-prefix overrides
// Example: "/api/login" -> {max: 5, window: 1m}
type RateLimitConfig struct {
	Default       RateLimitPolicy            `yaml:"default"`
	PathOverrides map[string]RateLimitPolicy `yaml:"path_overrides,omitempty"`
}

// AuthPolicy locks an IP out for LockoutDuration after MaxAttempts failures.
type AuthPolicy struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	LockoutDuration time.Duration `yaml:"lockout_duration"`
}

// AuthFailureConfig maps protected auth path prefixes to their lockout policy.
type AuthFailureConfig struct {
	PathOverrides map[string]AuthPolicy `yaml:"path_overrides,omitempty"`
}

// BotConfig is the canonical bot-detection configuration. In YAML it may be given as a
// bare severity ("bot: MEDIUM") or as a mapping; both decode into this shape.
type BotConfig struct {
	// BlockSeverity is the threshold at which any bot rule blocks
	BlockSeverity Severity `yaml:"block_severity"`

	// MinInterval is the shortest plausible gap between two human requests
	MinInterval time.Duration `yaml:"min_interval"`

	// HoneypotFields are hidden form fields a human never fills in
	HoneypotFields []string `yaml:"honeypot_fields,omitempty"`

	// DenyTokens are lower-case user-agent substrings of automation tools
	DenyTokens []string `yaml:"deny_tokens,omitempty"`

	// FingerprintLimit is the number of repeats of one header fingerprint per hour
	FingerprintLimit int `yaml:"fingerprint_limit"`
}

// DDoSConfig is the base per-IP threshold; other scopes scale from it.
type DDoSConfig struct {
	Threshold int           `yaml:"threshold"`
	Window    time.Duration `yaml:"window"`
}

// DenyCacheConfig selects the deny-cache backend and key strategy.
type DenyCacheConfig struct {
	Backend          string `yaml:"backend"`
	IncludePath      bool   `yaml:"include_path"`
	IncludeUserAgent bool   `yaml:"include_user_agent"`
	// PruneSchedule is a cron spec for pruning the memory backend
	PruneSchedule string `yaml:"prune_schedule,omitempty"`
}

// AlertConfig sends outward notifications for blocked checks at the listed severities.
type AlertConfig struct {
	URLs       []string   `yaml:"urls,omitempty"`
	Severities []Severity `yaml:"severities,omitempty"`
}

// LoggingConfig sets the log level (debug, info, warn, error).
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// PlatformConfig gates the engine on the hosting platform. When RequireEnv is set and that
// environment variable is empty, every request is allowed without evaluation.
type PlatformConfig struct {
	RequireEnv string `yaml:"require_env,omitempty"`
}

// StoreConfig bounds every store call.
type StoreConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultDenyTokens are user-agent fragments of common automation clients.
var DefaultDenyTokens = []string{
	"curl", "wget", "python-requests", "python-urllib", "go-http-client", "java/",
	"libwww", "httpclient", "okhttp", "scrapy", "phantomjs", "headless", "selenium",
	"puppeteer", "bot", "crawler", "spider",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Mode: ModeLive,
		RateLimit: RateLimitConfig{
			Default:       RateLimitPolicy{Max: 100, Window: time.Minute},
			PathOverrides: make(map[string]RateLimitPolicy),
		},
		AuthFailure: AuthFailureConfig{
			PathOverrides: map[string]AuthPolicy{
				"/login": {MaxAttempts: 5, LockoutDuration: 15 * time.Minute},
			},
		},
		Bot:       DefaultBotConfig(),
		DDoS:      DDoSConfig{Threshold: 100, Window: time.Minute},
		DenyCache: DenyCacheConfig{Backend: DenyCacheKV, PruneSchedule: "@every 1m"},
		Alerts:    AlertConfig{Severities: []Severity{SeverityCritical}},
		Logging:   LoggingConfig{Level: "info"},
		Store:     StoreConfig{Timeout: 2 * time.Second},
	}
}

// DefaultBotConfig returns the detailed bot configuration used when only a severity is given.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		BlockSeverity:    SeverityHigh,
		MinInterval:      100 * time.Millisecond,
		HoneypotFields:   []string{"website", "hp_email"},
		DenyTokens:       append([]string(nil), DefaultDenyTokens...),
		FingerprintLimit: 500,
	}
}

// UnmarshalYAML accepts either a severity scalar or a detailed mapping.
func (b *BotConfig) UnmarshalYAML(value *yaml.Node) error {
	if b.BlockSeverity == "" {
		*b = DefaultBotConfig()
	}
	if value.Kind == yaml.ScalarNode {
		sev, err := ParseSeverity(value.Value)
		if err != nil {
			return fmt.Errorf("bot: %w", err)
		}
		b.BlockSeverity = sev
		return nil
	}
	type plain BotConfig
	if err := value.Decode((*plain)(b)); err != nil {
		return err
	}
	if b.BlockSeverity != "" {
		sev, err := ParseSeverity(string(b.BlockSeverity))
		if err != nil {
			return fmt.Errorf("bot: %w", err)
		}
		b.BlockSeverity = sev
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Mode != ModeLive && c.Mode != ModeDryRun {
		return fmt.Errorf("%w: %w: got %q", ErrInvalidConfig, ErrInvalidMode, c.Mode)
	}
	if err := c.RateLimit.Default.Validate(); err != nil {
		return fmt.Errorf("%w: invalid rate limit default: %w", ErrInvalidConfig, err)
	}
	for path, policy := range c.RateLimit.PathOverrides {
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("%w: invalid rate limit for path %s: %w", ErrInvalidConfig, path, err)
		}
	}
	for path, policy := range c.AuthFailure.PathOverrides {
		if policy.MaxAttempts <= 0 {
			return fmt.Errorf("%w: auth path %s: %w", ErrInvalidConfig, path, ErrInvalidThreshold)
		}
		if policy.LockoutDuration <= 0 {
			return fmt.Errorf("%w: auth path %s: %w", ErrInvalidConfig, path, ErrInvalidWindow)
		}
	}
	if !c.Bot.BlockSeverity.Valid() {
		return fmt.Errorf("%w: bot block severity %q", ErrInvalidConfig, c.Bot.BlockSeverity)
	}
	if c.DDoS.Threshold <= 0 {
		return fmt.Errorf("%w: ddos: %w", ErrInvalidConfig, ErrInvalidThreshold)
	}
	if c.DDoS.Window <= 0 {
		return fmt.Errorf("%w: ddos: %w", ErrInvalidConfig, ErrInvalidWindow)
	}
	switch c.DenyCache.Backend {
	case DenyCacheKV, DenyCacheMemory:
	default:
		return fmt.Errorf("%w: unknown deny cache backend %q", ErrInvalidConfig, c.DenyCache.Backend)
	}
	for _, sev := range c.Alerts.Severities {
		if !sev.Valid() {
			return fmt.Errorf("%w: alert severity %q", ErrInvalidConfig, sev)
		}
	}
	return nil
}

// Validate checks if a RateLimitPolicy is valid.
func (p RateLimitPolicy) Validate() error {
	if p.Max <= 0 {
		return ErrInvalidThreshold
	}
	if p.Window <= 0 {
		return ErrInvalidWindow
	}
	return nil
}

// Policy returns the rate limit policy for a path: the longest matching override prefix,
// or the default. scope is the matched prefix, "" for the default.
func (c RateLimitConfig) Policy(path string) (scope string, policy RateLimitPolicy) {
	if prefix, ok := longestPrefix(path, keys(c.PathOverrides)); ok {
		return prefix, c.PathOverrides[prefix]
	}
	return "", c.Default
}

// Policy returns the auth policy guarding path, if any.
func (c AuthFailureConfig) Policy(path string) (scope string, policy AuthPolicy, ok bool) {
	prefix, ok := longestPrefix(path, keys(c.PathOverrides))
	if !ok {
		return "", AuthPolicy{}, false
	}
	return prefix, c.PathOverrides[prefix], true
}

// RuleDisabled reports whether the named rule is switched off.
func (c *Config) RuleDisabled(name string) bool {
	for _, n := range c.DisabledRules {
		if n == name {
			return true
		}
	}
	return false
}

// AlertsOn reports whether blocked checks of severity sev are alerted.
func (c AlertConfig) AlertsOn(sev Severity) bool {
	for _, s := range c.Severities {
		if s == sev {
			return true
		}
	}
	return false
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// longestPrefix picks the longest prefix of path that ends on a segment boundary.
func longestPrefix(path string, prefixes []string) (string, bool) {
	best, found := "", false
	for _, p := range prefixes {
		if p == "" || !strings.HasPrefix(path, p) {
			continue
		}
		if len(path) > len(p) && !strings.HasSuffix(p, "/") && path[len(p)] != '/' {
			continue
		}
		if !found || len(p) > len(best) {
			best, found = p, true
		}
	}
	return best, found
}
