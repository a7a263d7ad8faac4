package core

import (
	"strings"
	"time"
)

// CheckType identifies the rule category that produced a Check
type CheckType string

const (
	CheckRateLimit      CheckType = "RATE_LIMIT"
	CheckAuthFailure    CheckType = "AUTH_FAILURE"
	CheckBotDetection   CheckType = "BOT_DETECTION"
	CheckDDoSProtection CheckType = "DDOS_PROTECTION"
)

// Conclusion mirrors Check.Blocked
type Conclusion string

const (
	ConclusionAllow Conclusion = "ALLOW"
	ConclusionDeny  Conclusion = "DENY"
)

// Geo is optional location data supplied by the host platform
type Geo struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// SecurityContext is the immutable per-request input to every rule
type SecurityContext struct {
	IP        string            // Client IP (forwarded headers first)
	UserAgent string            // "unknown" when absent
	Path      string            // Request path without query
	Method    string            // Upper-case HTTP method
	Timestamp int64             // Unix milliseconds
	Headers   map[string]string // Lower-case header names, values joined with ", "
	Fields    map[string]string // Submitted query/form fields (honeypot detection)
	Geo       *Geo              // Optional
}

// Header returns a header value by case-insensitive name
func (sc *SecurityContext) Header(name string) string {
	if sc.Headers == nil {
		return ""
	}
	return sc.Headers[strings.ToLower(name)]
}

// Time returns the request timestamp as time.Time
func (sc *SecurityContext) Time() time.Time {
	return time.UnixMilli(sc.Timestamp)
}

// Check is a single rule verdict. Build it with NewCheck so Conclusion always mirrors Blocked.
type Check struct {
	Type       CheckType      `json:"type"`
	Severity   Severity       `json:"severity"`
	Blocked    bool           `json:"blocked"`
	Reason     string         `json:"reason"`
	RuleID     string         `json:"ruleId"`
	Conclusion Conclusion     `json:"conclusion"`
	Details    map[string]any `json:"details,omitempty"`
}

// NewCheck creates a Check with a consistent Conclusion
func NewCheck(checkType CheckType, ruleID string, severity Severity, blocked bool, reason string, details map[string]any) *Check {
	conclusion := ConclusionAllow
	if blocked {
		conclusion = ConclusionDeny
	}
	return &Check{
		Type:       checkType,
		Severity:   severity,
		Blocked:    blocked,
		Reason:     reason,
		RuleID:     ruleID,
		Conclusion: conclusion,
		Details:    details,
	}
}

// Metadata describes how a Result was produced
type Metadata struct {
	ProcessingTimeMs int64 `json:"processingTimeMs"`
	RuleCount        int   `json:"ruleCount"`
	CacheHit         bool  `json:"cacheHit"`
}

// Result is the outcome of evaluating one request
type Result struct {
	Allowed  bool     `json:"allowed"`
	Checks   []*Check `json:"checks"`
	Metadata Metadata `json:"metadata"`
}

// AllowAll is the fail-open result: allowed, no checks, nothing processed.
func AllowAll() *Result {
	return &Result{Allowed: true, Checks: []*Check{}}
}

// FirstBlocked returns the first blocked check or nil
func (r *Result) FirstBlocked() *Check {
	for _, c := range r.Checks {
		if c.Blocked {
			return c
		}
	}
	return nil
}
