package rules

import (
	"context"
	"fmt"

	"github.com/KanavDutta/signalfence/core"
)

// RuleRateLimit is the name of the path-scoped rate limit rule.
const RuleRateLimit = "rate-limit"

// RateLimitRules returns the rate-limit category.
func RateLimitRules() []Rule {
	return []Rule{
		New(RuleRateLimit, "Sliding-window request limit per IP and path prefix", 80, core.CheckRateLimit, evaluateRateLimit),
	}
}

// evaluateRateLimit counts prior requests in the window before recording the current one,
// so the current request is the (count+1)th. Rejected requests are not recorded.
func evaluateRateLimit(ctx context.Context, sc *core.SecurityContext, opts *Options) (*core.Check, error) {
	scope, policy := opts.Config.RateLimit.Policy(sc.Path)
	key := RateLimitKey(scope, sc.IP)
	now := sc.Timestamp
	windowMs := policy.Window.Milliseconds()
	windowStart := float64(now - windowMs)

	count := opts.Store.WindowCount(ctx, key, windowStart)

	current := count + 1
	if current <= int64(policy.Max) {
		member := eventMember(now)
		opts.Defer(func(ctx context.Context) {
			opts.Store.WindowHit(ctx, key, member, float64(now), windowStart, policy.Window)
		})
		return nil, nil
	}

	return core.NewCheck(core.CheckRateLimit, RuleRateLimit, core.SeverityHigh, true,
		fmt.Sprintf("rate limit exceeded: %d requests in %s (limit %d)", current, policy.Window, policy.Max),
		map[string]any{
			"current":   current,
			"limit":     policy.Max,
			"window":    windowMs,
			"resetTime": now + windowMs,
			"scope":     scope,
		}), nil
}
