package signalfence

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/KanavDutta/signalfence/audit"
	"github.com/KanavDutta/signalfence/core"
	"github.com/KanavDutta/signalfence/denycache"
	"github.com/KanavDutta/signalfence/metrics"
	"github.com/KanavDutta/signalfence/rules"
	"github.com/KanavDutta/signalfence/store"
)

// Engine decides whether requests may proceed. It is safe for concurrent use; each request
// is evaluated sequentially on the calling goroutine.
type Engine struct {
	config     *core.Config
	store      store.KV
	log        logrus.FieldLogger
	scheduler  store.Scheduler
	now        func() time.Time
	denyCache  *denycache.Manager
	recorder   *audit.Recorder
	notifier   audit.Notifier
	aggregator *metrics.Aggregator
	rules      []rules.Rule
	gate       func() bool
	extract    ContextExtractor
	prometheus bool
}

// NewEngine creates an Engine with the given options.
// If no options are provided, it uses the default configuration over an in-memory store.
//
// Example:
//
//	engine, err := NewEngine(
//	    WithConfigFile("security.yaml"),
//	    WithStore(redisStore),
//	)
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		config:     core.NewConfig(),
		now:        time.Now,
		extract:    ExtractContext,
		prometheus: true,
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if err := e.config.Validate(); err != nil {
		return nil, err
	}

	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	if e.store == nil {
		e.store = store.NewMemoryStoreWithClock(e.now)
	}
	if e.scheduler == nil {
		e.scheduler = NewGoScheduler(e.log, 0)
	}
	if e.denyCache == nil {
		m, err := denycache.New(e.config, e.store, e.log, e.now)
		if err != nil {
			return nil, err
		}
		e.denyCache = m
	}
	if e.notifier == nil && len(e.config.Alerts.URLs) > 0 {
		e.notifier = audit.NewShoutrrrNotifier(e.config.Alerts, e.log)
	}
	if e.gate == nil {
		e.gate = envGate(e.config.Platform.RequireEnv)
	}
	if e.rules == nil {
		e.rules = rules.All()
	}
	e.rules = rules.Sort(e.rules)
	e.recorder = audit.NewRecorder(e.store, e.log)
	e.aggregator = metrics.NewAggregator(e.store, e.now)

	return e, nil
}

// envGate is open when name is empty or set in the environment.
func envGate(name string) func() bool {
	if name == "" {
		return func() bool { return true }
	}
	_, present := os.LookupEnv(name)
	return func() bool { return present }
}

// Config returns the engine configuration. It must not be modified.
func (e *Engine) Config() *core.Config { return e.config }

// Store returns the KV store the engine writes to.
func (e *Engine) Store() store.KV { return e.store }

// Recorder returns the audit event recorder.
func (e *Engine) Recorder() *audit.Recorder { return e.recorder }

// Metrics returns the counters aggregator.
func (e *Engine) Metrics() *metrics.Aggregator { return e.aggregator }

// Start begins background maintenance such as in-memory deny-cache pruning.
// Returns a function to stop it.
func (e *Engine) Start() func() {
	return e.denyCache.Start()
}

// Shutdown waits for outstanding background writes when the engine owns its scheduler.
func (e *Engine) Shutdown(ctx context.Context) error {
	if s, ok := e.scheduler.(*GoScheduler); ok {
		return s.Wait(ctx)
	}
	return nil
}

// HealthCheck pings the store when it supports it.
func (e *Engine) HealthCheck(ctx context.Context) error {
	p, ok := e.store.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Protect evaluates an HTTP request. It never fails: any internal error allows the request.
func (e *Engine) Protect(r *http.Request) *core.Decision {
	ctx := context.Background()
	if r != nil {
		ctx = r.Context()
	}
	return e.run(ctx, func(now time.Time) (*core.SecurityContext, error) {
		return e.extract(r, now)
	})
}

// Evaluate runs the pipeline for a prebuilt context. A zero Timestamp, or one ahead of the
// engine clock, is set to now so callers cannot score shared windows in the future.
func (e *Engine) Evaluate(ctx context.Context, sc *core.SecurityContext) *core.Decision {
	return e.run(ctx, func(now time.Time) (*core.SecurityContext, error) {
		if sc == nil {
			return nil, fmt.Errorf("%w: nil context", ErrContextExtraction)
		}
		if sc.Timestamp == 0 || sc.Timestamp > now.UnixMilli() {
			cp := *sc
			cp.Timestamp = now.UnixMilli()
			return &cp, nil
		}
		return sc, nil
	})
}

func (e *Engine) run(ctx context.Context, build func(now time.Time) (*core.SecurityContext, error)) (decision *core.Decision) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("panic", r).Error("security evaluation failed, allowing request")
			decision = core.NewDecision(core.AllowAll())
		}
	}()

	if !e.gate() {
		return core.NewDecision(core.AllowAll())
	}

	start := e.now()
	sc, err := build(start)
	if err != nil {
		e.log.WithError(err).Warn("security evaluation skipped, allowing request")
		return core.NewDecision(core.AllowAll())
	}
	return core.NewDecision(e.evaluate(ctx, sc, start))
}

func (e *Engine) evaluate(ctx context.Context, sc *core.SecurityContext, start time.Time) *core.Result {
	res := &core.Result{Allowed: true, Checks: []*core.Check{}}
	live := e.config.Mode == core.ModeLive

	if entry := e.denyCache.Check(ctx, sc); entry != nil {
		res.Checks = append(res.Checks, entry.Check())
		res.Metadata.CacheHit = true
		res.Allowed = !live
		e.finish(sc, res, start, false)
		return res
	}

	cache := rules.NewCache(e.store)
	cache.Prefetch(ctx, rules.PrefetchKeys(sc, e.config)...)
	opts := &rules.Options{
		Config:    e.config,
		Logger:    e.log,
		Store:     e.store,
		Cache:     cache,
		Scheduler: e.scheduler,
	}

	for _, r := range e.rules {
		if !r.Enabled() || e.config.RuleDisabled(r.Name()) {
			continue
		}
		res.Metadata.RuleCount++

		check := e.evaluateRule(ctx, r, sc, opts)
		if check == nil {
			continue
		}
		res.Checks = append(res.Checks, check)
		if !check.Blocked {
			continue
		}

		e.blocked(sc, check)
		if live {
			res.Allowed = false
			break
		}
	}

	e.finish(sc, res, start, true)
	return res
}

// evaluateRule runs one rule; an error or panic counts as no opinion.
func (e *Engine) evaluateRule(ctx context.Context, r rules.Rule, sc *core.SecurityContext, opts *rules.Options) (check *core.Check) {
	log := e.log.WithFields(logrus.Fields{"rule": r.Name(), "ip": sc.IP, "path": sc.Path})
	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", rec).Error("rule panicked")
			check = nil
		}
	}()

	check, err := r.Evaluate(ctx, sc, opts)
	if err != nil {
		log.WithError(err).Warn("rule failed")
		return nil
	}
	return check
}

// blocked schedules the audit event, alert and deny-cache entry for a blocked check.
func (e *Engine) blocked(sc *core.SecurityContext, check *core.Check) {
	ev := audit.NewEvent(sc, check, e.config.Mode)
	store.Async(e.scheduler, func(ctx context.Context) {
		e.recorder.Record(ctx, ev)
		if e.notifier != nil {
			_ = e.notifier.Notify(ctx, ev)
		}
	})

	if reason, ok := denycache.ReasonFor(check.Type); ok {
		store.Async(e.scheduler, func(ctx context.Context) {
			e.denyCache.Store(ctx, sc, reason, check)
		})
	}
}

func (e *Engine) finish(sc *core.SecurityContext, res *core.Result, start time.Time, aggregate bool) {
	elapsed := e.now().Sub(start)
	res.Metadata.ProcessingTimeMs = elapsed.Milliseconds()

	if aggregate {
		store.Async(e.scheduler, func(ctx context.Context) {
			e.aggregator.Record(ctx, res)
		})
	}
	if e.prometheus {
		metrics.Observe(res, elapsed)
	}

	entry := e.log.WithFields(logrus.Fields{
		"ip":        sc.IP,
		"method":    sc.Method,
		"path":      sc.Path,
		"allowed":   res.Allowed,
		"checks":    len(res.Checks),
		"rules":     res.Metadata.RuleCount,
		"cache_hit": res.Metadata.CacheHit,
		"latency":   elapsed,
	})
	if first := res.FirstBlocked(); first != nil {
		entry.WithFields(logrus.Fields{"reason": first.Type, "rule": first.RuleID}).Info("request flagged")
		return
	}
	entry.Debug("request evaluated")
}
