// Package middleware turns engine decisions into HTTP responses for net/http and gin.
package middleware

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/KanavDutta/signalfence/core"
)

// Response headers
const (
	HeaderReason     = "X-Security-Reason"
	HeaderWouldBlock = "X-Security-Would-Block"
	HeaderRetryAfter = "Retry-After"
)

// Engine is the part of *signalfence.Engine the middleware needs.
type Engine interface {
	Protect(r *http.Request) *core.Decision
	Config() *core.Config
}

// ErrorResponse is the JSON body of a denied request.
type ErrorResponse struct {
	Error      string         `json:"error"`
	Reason     core.CheckType `json:"reason"`
	Message    string         `json:"message"`
	RuleID     string         `json:"ruleId,omitempty"`
	RetryAfter int64          `json:"retryAfter,omitempty"` // seconds
}

type decisionKey struct{}

// DecisionFromContext returns the decision attached by Protect, if any.
func DecisionFromContext(ctx context.Context) (*core.Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(*core.Decision)
	return d, ok
}

// Protect wraps next so every request is evaluated first. Denied requests never reach next;
// allowed ones carry the decision in their context.
func Protect(engine Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := engine.Protect(r)
			status, body := Respond(w.Header(), d, engine.Config().Mode, time.Now())
			if body != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_ = json.NewEncoder(w).Encode(body)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), decisionKey{}, d)))
		})
	}
}

// Respond sets the security headers for d and, when the request is denied, returns the
// status and body to send. A nil body means the request proceeds.
func Respond(h http.Header, d *core.Decision, mode core.Mode, now time.Time) (int, *ErrorResponse) {
	primary := d.Primary()
	if primary == nil {
		return http.StatusOK, nil
	}
	if d.IsAllowed() {
		if mode == core.ModeDryRun {
			h.Set(HeaderWouldBlock, string(primary.Type))
		}
		return http.StatusOK, nil
	}

	h.Set(HeaderReason, string(primary.Type))
	body := &ErrorResponse{
		Error:   errorCode(primary.Type),
		Reason:  primary.Type,
		Message: primary.Reason,
		RuleID:  primary.RuleID,
	}
	if secs, ok := RetryAfter(primary, now); ok {
		body.RetryAfter = secs
		h.Set(HeaderRetryAfter, strconv.FormatInt(secs, 10))
	}
	return StatusCode(primary.Type), body
}

// StatusCode is 429 for volume-based denies and 403 for everything else.
func StatusCode(t core.CheckType) int {
	switch t {
	case core.CheckRateLimit, core.CheckDDoSProtection:
		return http.StatusTooManyRequests
	default:
		return http.StatusForbidden
	}
}

func errorCode(t core.CheckType) string {
	switch t {
	case core.CheckRateLimit:
		return "rate_limit_exceeded"
	case core.CheckDDoSProtection:
		return "too_many_requests"
	case core.CheckAuthFailure:
		return "auth_locked"
	case core.CheckBotDetection:
		return "bot_detected"
	default:
		return "forbidden"
	}
}

// retryKeys are evidence fields holding the unix ms at which a block ends.
var retryKeys = []string{"resetTime", "lockoutUntil", "until"}

// RetryAfter returns the whole seconds until the block behind check ends, at least 1.
func RetryAfter(check *core.Check, now time.Time) (int64, bool) {
	for _, k := range retryKeys {
		until, ok := millis(check.Details[k])
		if !ok {
			continue
		}
		secs := int64(math.Ceil(float64(until-now.UnixMilli()) / 1000))
		if secs < 1 {
			secs = 1
		}
		return secs, true
	}
	return 0, false
}

// millis reads a numeric evidence value. Values decoded from JSON arrive as float64.
func millis(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
