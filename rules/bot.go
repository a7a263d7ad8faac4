package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/KanavDutta/signalfence/core"
)

// Bot-detection rule names
const (
	RuleBotHoneypot    = "bot-honeypot"
	RuleBotUserAgent   = "bot-user-agent"
	RuleBotTiming      = "bot-timing"
	RuleBotBehavior    = "bot-behavior"
	RuleBotFingerprint = "bot-fingerprint"
)

const (
	botStateTTL          = time.Hour
	behaviorMinObserved  = 5 * time.Second
	behaviorMinSamples   = 10
	behaviorMaxPerMinute = 60
	behaviorMaxPerPath   = 50
	minUserAgentLength   = 10
)

// BehaviorProfile is the rolling per-IP profile stored under BehaviorKey.
type BehaviorProfile struct {
	Count       int            `json:"count"`
	Paths       map[string]int `json:"paths"`
	Methods     []string       `json:"methods"`
	WindowStart int64          `json:"windowStart"`
}

// BotRules returns the bot-detection category. Every rule reports a detected severity;
// the shared Bot.BlockSeverity decides whether it blocks.
func BotRules() []Rule {
	return []Rule{
		New(RuleBotHoneypot, "Hidden form field was filled in", 60, core.CheckBotDetection, evaluateHoneypot),
		New(RuleBotUserAgent, "User-agent analysis", 55, core.CheckBotDetection, evaluateUserAgent),
		New(RuleBotTiming, "Inter-request interval analysis", 50, core.CheckBotDetection, evaluateTiming),
		New(RuleBotBehavior, "Request rate and path concentration", 45, core.CheckBotDetection, evaluateBehavior),
		New(RuleBotFingerprint, "Repeated header fingerprint", 40, core.CheckBotDetection, evaluateFingerprint),
	}
}

func botCheck(opts *Options, ruleID string, sev core.Severity, reason string, details map[string]any) *core.Check {
	blocked := sev.AtLeast(opts.Config.Bot.BlockSeverity)
	return core.NewCheck(core.CheckBotDetection, ruleID, sev, blocked, reason, details)
}

func evaluateHoneypot(_ context.Context, sc *core.SecurityContext, opts *Options) (*core.Check, error) {
	for _, field := range opts.Config.Bot.HoneypotFields {
		if v := sc.Fields[field]; strings.TrimSpace(v) != "" {
			return botCheck(opts, RuleBotHoneypot, core.SeverityHigh,
				fmt.Sprintf("honeypot field %q populated", field),
				map[string]any{"field": field}), nil
		}
	}
	return nil, nil
}

var browserEngines = []string{"Edg/", "Chrome/", "Firefox/", "Safari/"}

// knownBrowser reports the browser engine token when the request looks like a real browser.
func knownBrowser(sc *core.SecurityContext) (string, bool) {
	ua := sc.UserAgent
	if !strings.HasPrefix(ua, "Mozilla/5.0") || strings.Contains(strings.ToLower(ua), "headless") {
		return "", false
	}
	if sc.Header("accept") == "" || sc.Header("accept-language") == "" {
		return "", false
	}
	for _, engine := range browserEngines {
		if strings.Contains(ua, engine) {
			return strings.TrimSuffix(engine, "/"), true
		}
	}
	return "", false
}

func evaluateUserAgent(_ context.Context, sc *core.SecurityContext, opts *Options) (*core.Check, error) {
	if browser, ok := knownBrowser(sc); ok {
		return core.NewCheck(core.CheckBotDetection, RuleBotUserAgent, core.SeverityLow, false,
			"legitimate browser", map[string]any{"browser": browser}), nil
	}

	ua := strings.TrimSpace(sc.UserAgent)
	if ua == "" || ua == "unknown" || len(ua) < minUserAgentLength {
		return botCheck(opts, RuleBotUserAgent, core.SeverityMedium,
			"missing or too short user agent", map[string]any{"userAgent": ua}), nil
	}

	lower := strings.ToLower(ua)
	for _, token := range opts.Config.Bot.DenyTokens {
		if token != "" && strings.Contains(lower, strings.ToLower(token)) {
			return botCheck(opts, RuleBotUserAgent, core.SeverityMedium,
				fmt.Sprintf("automation user agent (%s)", token),
				map[string]any{"userAgent": ua, "token": token}), nil
		}
	}
	return nil, nil
}

func evaluateTiming(ctx context.Context, sc *core.SecurityContext, opts *Options) (*core.Check, error) {
	key := TimingKey(sc.IP)
	if raw, ok := opts.Cache.Get(ctx, key); ok {
		last, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			interval := sc.Timestamp - last
			minMs := opts.Config.Bot.MinInterval.Milliseconds()
			if interval >= 0 && interval < minMs {
				return botCheck(opts, RuleBotTiming, core.SeverityHigh,
					fmt.Sprintf("requests %dms apart (minimum %dms)", interval, minMs),
					map[string]any{"intervalMs": interval, "minIntervalMs": minMs}), nil
			}
		}
	}

	now := strconv.FormatInt(sc.Timestamp, 10)
	opts.Cache.Put(key, now)
	opts.Defer(func(ctx context.Context) {
		opts.Store.Set(ctx, key, now, botStateTTL)
	})
	return nil, nil
}

func evaluateBehavior(ctx context.Context, sc *core.SecurityContext, opts *Options) (*core.Check, error) {
	key := BehaviorKey(sc.IP)
	var p BehaviorProfile
	if raw, ok := opts.Cache.Get(ctx, key); ok {
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode behavior profile: %w", err)
		}
	}
	if p.WindowStart == 0 || sc.Timestamp-p.WindowStart > botStateTTL.Milliseconds() {
		p = BehaviorProfile{WindowStart: sc.Timestamp}
	}
	if p.Paths == nil {
		p.Paths = make(map[string]int)
	}

	p.Count++
	p.Paths[sc.Path]++
	if !contains(p.Methods, sc.Method) {
		p.Methods = append(p.Methods, sc.Method)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	opts.Cache.Put(key, string(data))
	opts.Defer(func(ctx context.Context) {
		opts.Store.Set(ctx, key, string(data), botStateTTL)
	})

	observed := sc.Timestamp - p.WindowStart
	if observed < behaviorMinObserved.Milliseconds() {
		return nil, nil
	}

	perMinute := float64(p.Count) * float64(time.Minute.Milliseconds()) / float64(observed)
	evidence := map[string]any{
		"requests":        p.Count,
		"observedMs":      observed,
		"perMinute":       perMinute,
		"distinctPaths":   len(p.Paths),
		"distinctMethods": len(p.Methods),
	}
	if p.Count >= behaviorMinSamples && perMinute > behaviorMaxPerMinute {
		return botCheck(opts, RuleBotBehavior, core.SeverityHigh,
			fmt.Sprintf("%.0f requests per minute", perMinute), evidence), nil
	}
	if hits := p.Paths[sc.Path]; hits > behaviorMaxPerPath {
		evidence["pathHits"] = hits
		return botCheck(opts, RuleBotBehavior, core.SeverityMedium,
			fmt.Sprintf("%d requests to %s", hits, sc.Path), evidence), nil
	}
	return nil, nil
}

func evaluateFingerprint(ctx context.Context, sc *core.SecurityContext, opts *Options) (*core.Check, error) {
	hash := Fingerprint(sc)
	countKey := FingerprintCountKey(hash)

	var prior int64
	if raw, ok := opts.Cache.Get(ctx, countKey); ok {
		prior, _ = strconv.ParseInt(raw, 10, 64)
	}
	current := prior + 1
	opts.Cache.Put(countKey, strconv.FormatInt(current, 10))
	opts.Defer(func(ctx context.Context) {
		opts.Store.Incr(ctx, countKey, botStateTTL)
		if prior == 0 {
			opts.Store.Set(ctx, FingerprintKey(hash), strconv.FormatInt(sc.Timestamp, 10), botStateTTL)
		}
	})

	limit := int64(opts.Config.Bot.FingerprintLimit)
	if limit <= 0 || current <= limit {
		return nil, nil
	}
	return botCheck(opts, RuleBotFingerprint, core.SeverityMedium,
		fmt.Sprintf("header fingerprint seen %d times in the last hour", current),
		map[string]any{"fingerprint": hash, "count": current, "limit": limit}), nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
