package rules

import (
	"context"
	"fmt"
	"math"
	"net/http"

	"github.com/KanavDutta/signalfence/core"
)

// DDoS rule names
const (
	RuleDDoSIP      = "ddos-ip"
	RuleDDoSGlobal  = "ddos-global"
	RuleDDoSPath    = "ddos-path"
	RuleDDoSMethod  = "ddos-method"
	RuleDDoSCleanup = "ddos-cleanup"
)

// Threshold multipliers relative to the per-IP base
const (
	globalMultiplier   = 10
	pathMultiplier     = 5
	mutatingMultiplier = 0.5
	otherMultiplier    = 0.3
)

// DDoSRules returns the ddos-protection category.
func DDoSRules() []Rule {
	return []Rule{
		New(RuleDDoSIP, "Request flood from one IP", 100, core.CheckDDoSProtection, evaluateDDoSIP),
		New(RuleDDoSGlobal, "Request flood across all IPs", 95, core.CheckDDoSProtection, evaluateDDoSGlobal),
		New(RuleDDoSPath, "Request flood on one path", 90, core.CheckDDoSProtection, evaluateDDoSPath),
		New(RuleDDoSMethod, "Request flood of one method from one IP", 85, core.CheckDDoSProtection, evaluateDDoSMethod),
		New(RuleDDoSCleanup, "Prunes stale DDoS window entries", 5, core.CheckDDoSProtection, evaluateDDoSCleanup),
	}
}

// MethodMultiplier scales the base threshold for an HTTP method.
func MethodMultiplier(method string) float64 {
	switch method {
	case http.MethodGet, http.MethodHead:
		return 1
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return mutatingMultiplier
	default:
		return otherMultiplier
	}
}

// ddosWindow records the request in key's window and returns a blocking Check once the
// count, including this request, exceeds threshold.
func ddosWindow(ctx context.Context, sc *core.SecurityContext, opts *Options, ruleID, key, scope string, threshold float64) *core.Check {
	window := opts.Config.DDoS.Window
	now := sc.Timestamp
	prior := opts.Store.WindowHit(ctx, key, eventMember(now), float64(now), float64(now-window.Milliseconds()), window)

	current := prior + 1
	if float64(current) <= threshold {
		return nil
	}
	ratio := float64(current) / threshold
	sev := core.SeverityForRatio(ratio)
	return core.NewCheck(core.CheckDDoSProtection, ruleID, sev, true,
		fmt.Sprintf("%s: %d requests in %s (threshold %.0f)", scope, current, window, threshold),
		map[string]any{
			"count":     current,
			"threshold": threshold,
			"ratio":     math.Round(ratio*100) / 100,
			"window":    window.Milliseconds(),
			"scope":     scope,
		})
}

func baseThreshold(opts *Options) float64 {
	return float64(opts.Config.DDoS.Threshold)
}

func evaluateDDoSIP(ctx context.Context, sc *core.SecurityContext, opts *Options) (*core.Check, error) {
	return ddosWindow(ctx, sc, opts, RuleDDoSIP, DDoSIPKey(sc.IP), "ip", baseThreshold(opts)), nil
}

func evaluateDDoSGlobal(ctx context.Context, sc *core.SecurityContext, opts *Options) (*core.Check, error) {
	return ddosWindow(ctx, sc, opts, RuleDDoSGlobal, DDoSGlobalKey(), "global", baseThreshold(opts)*globalMultiplier), nil
}

func evaluateDDoSPath(ctx context.Context, sc *core.SecurityContext, opts *Options) (*core.Check, error) {
	path := NormalizePath(sc.Path)
	return ddosWindow(ctx, sc, opts, RuleDDoSPath, DDoSPathKey(path), "path "+path, baseThreshold(opts)*pathMultiplier), nil
}

func evaluateDDoSMethod(ctx context.Context, sc *core.SecurityContext, opts *Options) (*core.Check, error) {
	threshold := math.Max(1, baseThreshold(opts)*MethodMultiplier(sc.Method))
	return ddosWindow(ctx, sc, opts, RuleDDoSMethod, DDoSMethodKey(sc.Method, sc.IP), "method "+sc.Method, threshold), nil
}

func evaluateDDoSCleanup(_ context.Context, sc *core.SecurityContext, opts *Options) (*core.Check, error) {
	cutoff := float64(sc.Timestamp - 2*opts.Config.DDoS.Window.Milliseconds())
	keys := []string{
		DDoSIPKey(sc.IP),
		DDoSGlobalKey(),
		DDoSPathKey(NormalizePath(sc.Path)),
		DDoSMethodKey(sc.Method, sc.IP),
	}
	opts.Defer(func(ctx context.Context) {
		for _, k := range keys {
			opts.Store.ZRemRangeByScore(ctx, k, math.Inf(-1), cutoff)
		}
	})
	return nil, nil
}
