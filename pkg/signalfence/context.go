package signalfence

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/KanavDutta/signalfence/core"
)

// maxFormBytes caps how much of a form body is inspected for honeypot fields.
const maxFormBytes = 64 << 10

// fallbackIP is used when no client address can be determined.
const fallbackIP = "127.0.0.1"

// ContextExtractor builds the SecurityContext for a request observed at now.
type ContextExtractor func(r *http.Request, now time.Time) (*core.SecurityContext, error)

// ExtractContext is the default ContextExtractor.
//
// The client IP comes from X-Forwarded-For (first entry), then X-Real-IP, then RemoteAddr,
// then loopback. A missing User-Agent becomes "unknown". Query parameters and URL-encoded
// form fields are collected for honeypot detection; the body is left readable for the
// next handler.
func ExtractContext(r *http.Request, now time.Time) (*core.SecurityContext, error) {
	if r == nil || r.URL == nil {
		return nil, fmt.Errorf("%w: nil request", ErrContextExtraction)
	}

	ua := strings.TrimSpace(r.UserAgent())
	if ua == "" {
		ua = "unknown"
	}
	path := r.URL.Path
	if path == "" {
		path = "/"
	}

	return &core.SecurityContext{
		IP:        ClientIP(r),
		UserAgent: ua,
		Path:      path,
		Method:    strings.ToUpper(r.Method),
		Timestamp: now.UnixMilli(),
		Headers:   flattenHeaders(r),
		Fields:    submittedFields(r),
	}, nil
}

// ClientIP returns the originating client address of r.
func ClientIP(r *http.Request) string {
	// X-Forwarded-For can be a comma-separated list of IPs
	// The first IP is the original client IP
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port in some edge cases
		ip = r.RemoteAddr
	}
	if ip == "" {
		return fallbackIP
	}
	return ip
}

func flattenHeaders(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.Header)+1)
	for name, values := range r.Header {
		out[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	if _, ok := out["host"]; !ok && r.Host != "" {
		out["host"] = r.Host
	}
	return out
}

func submittedFields(r *http.Request) map[string]string {
	fields := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}

	if r.Body == nil || r.Body == http.NoBody {
		return fields
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return fields
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/x-www-form-urlencoded" {
		return fields
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxFormBytes))
	// put back what was read, followed by anything past the limit
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(data), r.Body), r.Body}
	if err != nil {
		return fields
	}

	form, err := url.ParseQuery(string(data))
	if err != nil {
		return fields
	}
	for k, v := range form {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	return fields
}
