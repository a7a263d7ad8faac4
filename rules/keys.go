package rules

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/KanavDutta/signalfence/core"
)

// Store keys follow security:<domain>:<scope>:<identifier>.
const (
	prefixRateLimit   = "security:ratelimit"
	prefixAuthFailure = "security:authfail"
	prefixBot         = "security:bot"
	prefixDDoS        = "security:ddos"
)

// RateLimitKey is the sliding-window key for ip under a matched path prefix ("" = default).
func RateLimitKey(scope, ip string) string {
	if scope == "" {
		return prefixRateLimit + ":default:" + ip
	}
	return prefixRateLimit + ":path:" + scope + ":" + ip
}

// AuthFailureKey holds the {attempts, lockoutUntil} state for ip.
func AuthFailureKey(ip string) string { return prefixAuthFailure + ":" + ip }

// TimingKey holds the last request timestamp for ip.
func TimingKey(ip string) string { return prefixBot + ":timing:" + ip }

// BehaviorKey holds the rolling behavior profile for ip.
func BehaviorKey(ip string) string { return prefixBot + ":behavior:" + ip }

// FingerprintKey holds first-seen data for a header fingerprint.
func FingerprintKey(hash string) string { return prefixBot + ":fingerprint:" + hash }

// FingerprintCountKey counts occurrences of a header fingerprint.
func FingerprintCountKey(hash string) string { return FingerprintKey(hash) + ":count" }

// DDoSIPKey is the per-IP window.
func DDoSIPKey(ip string) string { return prefixDDoS + ":" + ip }

// DDoSGlobalKey is the window across all IPs.
func DDoSGlobalKey() string { return prefixDDoS + ":global" }

// DDoSPathKey is the window for a normalized path.
func DDoSPathKey(path string) string { return prefixDDoS + ":path:" + path }

// DDoSMethodKey is the per-IP window for one HTTP method.
func DDoSMethodKey(method, ip string) string { return prefixDDoS + ":method:" + method + ":" + ip }

// fingerprintHeaders are stable across requests from the same client software.
var fingerprintHeaders = []string{
	"user-agent", "accept", "accept-language", "accept-encoding", "connection", "cache-control",
}

// Fingerprint hashes the stable request headers.
func Fingerprint(sc *core.SecurityContext) string {
	var b strings.Builder
	for _, h := range fingerprintHeaders {
		b.WriteString(h)
		b.WriteByte('=')
		b.WriteString(sc.Header(h))
		b.WriteByte('\n')
	}
	return strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

// PrefetchKeys lists the per-IP keys the rules read, in one batch.
func PrefetchKeys(sc *core.SecurityContext, cfg *core.Config) []string {
	scope, _ := cfg.RateLimit.Policy(sc.Path)
	fp := Fingerprint(sc)
	return []string{
		TimingKey(sc.IP),
		BehaviorKey(sc.IP),
		FingerprintKey(fp),
		FingerprintCountKey(fp),
		RateLimitKey(scope, sc.IP),
		AuthFailureKey(sc.IP),
	}
}

var (
	uuidSegment = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	hexSegment  = regexp.MustCompile(`^[0-9a-f]{16,}$`)
	numSegment  = regexp.MustCompile(`^[0-9]+$`)
)

// NormalizePath collapses identifiers so /users/42 and /users/43 share one DDoS window.
func NormalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.ToLower(path)
	if path == "" || path == "/" {
		return "/"
	}
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		if numSegment.MatchString(s) || uuidSegment.MatchString(s) || hexSegment.MatchString(s) {
			segs[i] = ":id"
		}
	}
	return "/" + strings.Join(segs, "/")
}
