// Package denycache remembers recent deny decisions so repeat offenders are rejected
// without re-running the rules.
package denycache

import (
	"time"

	"github.com/KanavDutta/signalfence/core"
)

// Reason is the deny-cache category of a blocked check.
type Reason string

const (
	ReasonRateLimit   Reason = "rate_limit"
	ReasonBot         Reason = "bot"
	ReasonAuthFailure Reason = "auth_failure"
	ReasonDDoS        Reason = "ddos"
)

// Order is the fixed lookup order; the first live entry wins.
var Order = []Reason{ReasonRateLimit, ReasonBot, ReasonAuthFailure, ReasonDDoS}

// TTL returns how long a deny for r is remembered.
func (r Reason) TTL() time.Duration {
	switch r {
	case ReasonRateLimit:
		return 5 * time.Minute
	case ReasonBot:
		return 10 * time.Minute
	case ReasonAuthFailure:
		return 30 * time.Minute
	case ReasonDDoS:
		return time.Hour
	default:
		return 0
	}
}

// CheckType maps r back to the rule category.
func (r Reason) CheckType() core.CheckType {
	switch r {
	case ReasonRateLimit:
		return core.CheckRateLimit
	case ReasonBot:
		return core.CheckBotDetection
	case ReasonAuthFailure:
		return core.CheckAuthFailure
	default:
		return core.CheckDDoSProtection
	}
}

// ReasonFor maps a check type to its deny-cache reason.
func ReasonFor(t core.CheckType) (Reason, bool) {
	switch t {
	case core.CheckRateLimit:
		return ReasonRateLimit, true
	case core.CheckBotDetection:
		return ReasonBot, true
	case core.CheckAuthFailure:
		return ReasonAuthFailure, true
	case core.CheckDDoSProtection:
		return ReasonDDoS, true
	default:
		return "", false
	}
}

// Entry is a cached deny. Until is always CreatedAt + Reason.TTL().
type Entry struct {
	Reason    Reason         `json:"reason"`
	Until     int64          `json:"until"`
	Evidence  map[string]any `json:"evidence,omitempty"`
	IP        string         `json:"ip"`
	Path      string         `json:"path,omitempty"`
	CreatedAt int64          `json:"createdAt"`

	RuleID   string        `json:"ruleId,omitempty"`
	Severity core.Severity `json:"severity,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// Live reports whether the entry still applies at now (unix ms).
func (e *Entry) Live(now int64) bool {
	return e.Until > now
}

// Check synthesizes the blocked check returned on a cache hit.
func (e *Entry) Check() *core.Check {
	sev := e.Severity
	if !sev.Valid() {
		sev = core.SeverityHigh
	}
	details := map[string]any{
		"cacheHit": true,
		"until":    e.Until,
		"reason":   string(e.Reason),
	}
	for k, v := range e.Evidence {
		if _, taken := details[k]; !taken {
			details[k] = v
		}
	}
	msg := "previously denied"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return core.NewCheck(e.Reason.CheckType(), e.RuleID, sev, true, msg, details)
}
