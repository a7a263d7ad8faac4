package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/KanavDutta/signalfence/core"
	"github.com/KanavDutta/signalfence/middleware"
)

// maxCheckBody caps the size of a POST /check body.
const maxCheckBody = 1 << 20

// Evaluator runs the security pipeline for a described request.
type Evaluator interface {
	Evaluate(ctx context.Context, sc *core.SecurityContext) *core.Decision
}

// Handler handles security check requests from proxies and other services
type Handler struct {
	engine Evaluator
	now    func() time.Time
}

// NewHandler creates a new API handler
func NewHandler(engine Evaluator) *Handler {
	return &Handler{engine: engine, now: time.Now}
}

// CheckRequest describes the request to evaluate
type CheckRequest struct {
	IP        string            `json:"ip"`                  // Required: client address
	Method    string            `json:"method,omitempty"`    // Default: GET
	Path      string            `json:"path,omitempty"`      // Default: /
	UserAgent string            `json:"userAgent,omitempty"` // Default: unknown
	Headers   map[string]string `json:"headers,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`    // Submitted form fields
	Timestamp int64             `json:"timestamp,omitempty"` // Unix ms, default: now
	Geo       *core.Geo         `json:"geo,omitempty"`
}

// CheckResponse is the decision for a described request
type CheckResponse struct {
	Allowed    bool           `json:"allowed"`
	Reason     core.CheckType `json:"reason,omitempty"`
	RetryAfter int64          `json:"retryAfter,omitempty"` // seconds
	Checks     []*core.Check  `json:"checks"`
	Metadata   core.Metadata  `json:"metadata"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SecurityContext builds the engine input, applying the same defaults as request extraction.
func (req *CheckRequest) SecurityContext() *core.SecurityContext {
	headers := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		headers[strings.ToLower(k)] = v
	}
	ua := strings.TrimSpace(req.UserAgent)
	if ua == "" {
		ua = headers["user-agent"]
	}
	if ua == "" {
		ua = "unknown"
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	path := req.Path
	if path == "" {
		path = "/"
	}
	fields := req.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	return &core.SecurityContext{
		IP:        req.IP,
		UserAgent: ua,
		Path:      path,
		Method:    method,
		Timestamp: req.Timestamp,
		Headers:   headers,
		Fields:    fields,
		Geo:       req.Geo,
	}
}

// Check handles POST /check requests
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST requests are allowed")
		return
	}

	// Parse request
	var req CheckRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCheckBody)).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	// Validate ip
	if strings.TrimSpace(req.IP) == "" {
		h.sendError(w, http.StatusBadRequest, "missing_ip", "ip is required")
		return
	}

	d := h.engine.Evaluate(r.Context(), req.SecurityContext())
	res := d.Result()

	// Build response
	response := CheckResponse{
		Allowed:  res.Allowed,
		Reason:   d.Reason(),
		Checks:   res.Checks,
		Metadata: res.Metadata,
	}

	// Set status code
	statusCode := http.StatusOK
	if d.IsDenied() {
		statusCode = middleware.StatusCode(d.Reason())
		if secs, ok := middleware.RetryAfter(d.Primary(), h.now()); ok {
			response.RetryAfter = secs
		}
	}

	writeJSON(w, statusCode, response)
}

func (h *Handler) sendError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
