package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/KanavDutta/signalfence/audit"
	"github.com/KanavDutta/signalfence/metrics"
)

// defaultEventLimit is used when GET /events has no limit parameter
const defaultEventLimit = 50

// MetricsProvider defines the interface for getting metrics
type MetricsProvider interface {
	Snapshot(ctx context.Context) *metrics.Snapshot
}

// EventSource lists recent security events, newest first
type EventSource interface {
	Recent(ctx context.Context, limit int) []*audit.Event
}

// MetricsHandler handles GET /metrics requests
type MetricsHandler struct {
	provider MetricsProvider
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(provider MetricsProvider) *MetricsHandler {
	return &MetricsHandler{provider: provider}
}

// ServeHTTP handles the metrics endpoint
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*") // Allow dashboard to fetch
	writeJSON(w, http.StatusOK, h.provider.Snapshot(r.Context()))
}

// EventsHandler handles GET /events requests
type EventsHandler struct {
	source EventSource
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(source EventSource) *EventsHandler {
	return &EventsHandler{source: source}
}

// ServeHTTP returns up to ?limit= recent events (default 50, max audit.MaxRecent)
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_limit", Message: "limit must be a positive integer"})
			return
		}
		limit = min(n, audit.MaxRecent)
	}

	events := h.source.Recent(r.Context(), limit)
	if events == nil {
		events = []*audit.Event{}
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeJSON(w, http.StatusOK, events)
}
