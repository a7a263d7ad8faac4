package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/KanavDutta/signalfence/core"
)

var (
	requestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signalfence_requests_total",
		Help: "Total number of requests evaluated",
	})
	blockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signalfence_blocked_total",
		Help: "Total number of requests denied",
	})
	cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signalfence_deny_cache_hits_total",
		Help: "Total number of requests answered from the deny cache",
	})
	checksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signalfence_checks_total",
		Help: "Checks produced by rules, by type, severity and whether they blocked",
	}, []string{"type", "severity", "blocked"})
	evaluationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "signalfence_evaluation_seconds",
		Help:    "Time spent evaluating a request",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})
)

// Register registers Prometheus collectors. Call once per registry at startup.
func Register(registry prometheus.Registerer) {
	registry.MustRegister(requestsTotal, blockedTotal, cacheHitsTotal, checksTotal, evaluationSeconds)
}

// Observe records one evaluated request.
func Observe(res *core.Result, elapsed time.Duration) {
	requestsTotal.Inc()
	if !res.Allowed {
		blockedTotal.Inc()
	}
	if res.Metadata.CacheHit {
		cacheHitsTotal.Inc()
	}
	for _, c := range res.Checks {
		checksTotal.WithLabelValues(string(c.Type), string(c.Severity), strconv.FormatBool(c.Blocked)).Inc()
	}
	evaluationSeconds.Observe(elapsed.Seconds())
}
