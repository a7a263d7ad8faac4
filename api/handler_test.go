package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/KanavDutta/signalfence/audit"
	"github.com/KanavDutta/signalfence/core"
	"github.com/KanavDutta/signalfence/pkg/signalfence"
	"github.com/KanavDutta/signalfence/rules"
)

func newTestEngine(t *testing.T, max int) *signalfence.Engine {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := signalfence.NewConfig()
	cfg.RateLimit.Default = core.RateLimitPolicy{Max: max, Window: 10 * time.Minute}
	engine, err := signalfence.NewEngine(
		signalfence.WithConfig(cfg),
		signalfence.WithLogger(log),
		signalfence.WithScheduler(signalfence.InlineScheduler{}),
		signalfence.WithPrometheus(false),
		signalfence.WithRules(append(rules.RateLimitRules(), rules.BotRules()...)...),
	)
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	return engine
}

func postCheck(handler *Handler, reqBody any) *httptest.ResponseRecorder {
	body, _ := json.Marshal(reqBody)
	req := httptest.NewRequest(http.MethodPost, "/check", bytes.NewBuffer(body))
	w := httptest.NewRecorder()
	handler.Check(w, req)
	return w
}

func TestCheck_AllowsRequests(t *testing.T) {
	handler := NewHandler(newTestEngine(t, 10))

	w := postCheck(handler, CheckRequest{
		IP:        "203.0.113.10",
		Path:      "/products",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
		Headers:   map[string]string{"Accept": "text/html", "Accept-Language": "en"},
	})

	// Check response
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp CheckResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if !resp.Allowed {
		t.Error("Request should be allowed")
	}
	if resp.Reason != "" {
		t.Errorf("Reason = %q, want empty", resp.Reason)
	}
	if resp.Metadata.RuleCount != 6 {
		t.Errorf("RuleCount = %d, want 6", resp.Metadata.RuleCount)
	}
}

func TestCheck_BlocksWhenExceeded(t *testing.T) {
	handler := NewHandler(newTestEngine(t, 1))
	reqBody := CheckRequest{IP: "203.0.113.11", UserAgent: "Mozilla/5.0 (compatible; monitor)"}

	postCheck(handler, reqBody)
	// Clear the minimum interval between requests
	time.Sleep(150 * time.Millisecond)
	w := postCheck(handler, reqBody)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	var resp CheckResponse
	json.NewDecoder(w.Body).Decode(&resp)

	if resp.Allowed {
		t.Error("Request should be blocked")
	}
	if resp.Reason != core.CheckRateLimit {
		t.Errorf("Reason = %q, want RATE_LIMIT", resp.Reason)
	}
	if resp.RetryAfter <= 0 {
		t.Error("RetryAfter should be positive when blocked")
	}
}

func TestCheck_HoneypotForbidden(t *testing.T) {
	handler := NewHandler(newTestEngine(t, 10))

	w := postCheck(handler, CheckRequest{
		IP:     "203.0.113.12",
		Method: "post",
		Path:   "/signup",
		Fields: map[string]string{"hp_email": "bot@example.com"},
	})

	if w.Code != http.StatusForbidden {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestCheck_RequiresIP(t *testing.T) {
	handler := NewHandler(newTestEngine(t, 10))

	w := postCheck(handler, CheckRequest{Path: "/"})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCheck_RejectsBadInput(t *testing.T) {
	handler := NewHandler(newTestEngine(t, 10))

	req := httptest.NewRequest(http.MethodGet, "/check", nil)
	w := httptest.NewRecorder()
	handler.Check(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}

	req = httptest.NewRequest(http.MethodPost, "/check", bytes.NewBufferString("{not json"))
	w = httptest.NewRecorder()
	handler.Check(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCheckRequest_SecurityContext(t *testing.T) {
	req := CheckRequest{
		IP:      "203.0.113.13",
		Method:  "delete",
		Headers: map[string]string{"User-Agent": "curl/8.5.0", "X-Custom": "1"},
	}
	sc := req.SecurityContext()

	if sc.Method != "DELETE" {
		t.Errorf("Method = %q, want DELETE", sc.Method)
	}
	if sc.Path != "/" {
		t.Errorf("Path = %q, want /", sc.Path)
	}
	if sc.UserAgent != "curl/8.5.0" {
		t.Errorf("UserAgent = %q, want the header value", sc.UserAgent)
	}
	if sc.Header("x-custom") != "1" {
		t.Error("headers should be looked up case-insensitively")
	}
	if sc.Fields == nil {
		t.Error("Fields should never be nil")
	}
}

func TestMetricsHandler(t *testing.T) {
	engine := newTestEngine(t, 1)
	handler := NewHandler(engine)
	postCheck(handler, CheckRequest{IP: "203.0.113.14", UserAgent: "Mozilla/5.0 (compatible; monitor)"})
	time.Sleep(150 * time.Millisecond)
	postCheck(handler, CheckRequest{IP: "203.0.113.14", UserAgent: "Mozilla/5.0 (compatible; monitor)"})

	w := httptest.NewRecorder()
	NewMetricsHandler(engine.Metrics()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	var snap map[string]any
	json.NewDecoder(w.Body).Decode(&snap)
	if snap["totalRequests"] != float64(2) {
		t.Errorf("totalRequests = %v, want 2", snap["totalRequests"])
	}
	if snap["blockedRequests"] != float64(1) {
		t.Errorf("blockedRequests = %v, want 1", snap["blockedRequests"])
	}

	w = httptest.NewRecorder()
	NewMetricsHandler(engine.Metrics()).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

type stubEvents struct {
	limit  int
	events []*audit.Event
}

func (s *stubEvents) Recent(_ context.Context, limit int) []*audit.Event {
	s.limit = limit
	return s.events
}

func TestEventsHandler(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
	}{
		{"default limit", "", http.StatusOK, defaultEventLimit},
		{"explicit limit", "?limit=5", http.StatusOK, 5},
		{"capped limit", "?limit=5000", http.StatusOK, audit.MaxRecent},
		{"invalid limit", "?limit=abc", http.StatusBadRequest, 0},
		{"negative limit", "?limit=-1", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &stubEvents{}
			w := httptest.NewRecorder()
			NewEventsHandler(src).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events"+tt.query, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			if src.limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", src.limit, tt.wantLimit)
			}
			if tt.wantStatus == http.StatusOK && w.Body.String() != "[]\n" {
				t.Errorf("body = %q, want empty list", w.Body.String())
			}
		})
	}
}
