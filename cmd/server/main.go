package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/KanavDutta/signalfence/api"
	"github.com/KanavDutta/signalfence/core"
	"github.com/KanavDutta/signalfence/logger"
	"github.com/KanavDutta/signalfence/metrics"
	"github.com/KanavDutta/signalfence/pkg/signalfence"
	"github.com/KanavDutta/signalfence/store"
)

const version = "2.0.0"

var rootCmd = &cobra.Command{
	Use:          "signalfence",
	Short:        "SignalFence request admission service",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [config.yaml]",
	Short: "Validate a security configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := signalfence.LoadConfigFromFile(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (mode %s)\n", args[0], cfg.Mode)
		return nil
	},
}

func init() {
	cobra.OnInitialize(func() {
		viper.AutomaticEnv()
		viper.SetEnvPrefix("SIGNALFENCE")
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	})

	flags := rootCmd.PersistentFlags()
	flags.StringP("port", "p", "8080", "HTTP listen port")
	flags.StringP("config", "c", "", "Security configuration file (YAML)")
	flags.String("mode", "", "Override the configured mode (LIVE or DRY_RUN)")
	flags.String("redis-addr", "", "Redis address (e.g. localhost:6379); in-memory store when empty")
	flags.String("redis-url", "", "Redis URL (redis://...), takes precedence over --redis-addr")
	flags.String("redis-password", "", "Redis password")
	flags.String("log-level", "", "Override logging.level (debug, info, warn, error)")
	flags.String("log-file", "", "Also write logs to this file, rotated")
	for _, name := range []string{"port", "config", "mode", "redis-addr", "redis-url", "redis-password", "log-level", "log-file"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(validateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setupLogging(level string) error {
	var out io.Writer = os.Stdout
	if file := viper.GetString("log-file"); file != "" {
		rotator := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		// Log to both stdout and file
		out = io.MultiWriter(os.Stdout, rotator)
	}
	return logger.Init(level, out)
}

func loadConfig() (*signalfence.Config, error) {
	cfg := signalfence.NewConfig()
	if path := viper.GetString("config"); path != "" {
		loaded, err := signalfence.LoadConfigFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if mode := viper.GetString("mode"); mode != "" {
		cfg.Mode = core.Mode(strings.ToUpper(mode))
	}
	if viper.IsSet("log-level") {
		cfg.Logging.Level = viper.GetString("log-level")
	}
	return cfg, cfg.Validate()
}

// openStore connects to Redis when configured, otherwise falls back to memory.
func openStore(ctx context.Context, cfg *signalfence.Config) (store.KV, func(), error) {
	log := logger.Log()
	addr, url := viper.GetString("redis-addr"), viper.GetString("redis-url")
	if addr == "" && url == "" {
		log.Warn("using in-memory storage (not suitable for multiple instances)")
		return store.NewMemoryStore(), func() {}, nil
	}

	redisStore, err := store.NewRedisStore(store.RedisConfig{
		Addr:     addr,
		URL:      url,
		Password: viper.GetString("redis-password"),
		Timeout:  cfg.Store.Timeout,
		Logger:   log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	if err := redisStore.Ping(ctx); err != nil {
		_ = redisStore.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.WithField("addr", addr).Info("connected to redis")
	return redisStore, func() { _ = redisStore.Close() }, nil
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		logger.Log().WithError(err).Error("invalid configuration")
		return err
	}
	if err := setupLogging(cfg.Logging.Level); err != nil {
		return err
	}
	log := logger.Log()

	kv, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("storage unavailable")
		return err
	}
	defer closeStore()

	engine, err := signalfence.NewEngine(
		signalfence.WithConfig(cfg),
		signalfence.WithStore(kv),
		signalfence.WithLogger(log),
	)
	if err != nil {
		return err
	}
	stopMaintenance := engine.Start()
	defer stopMaintenance()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	srv := &http.Server{
		Addr:              ":" + viper.GetString("port"),
		Handler:           newMux(engine, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.WithFields(map[string]any{
		"addr":    srv.Addr,
		"mode":    cfg.Mode,
		"version": version,
	}).Info("signalfence listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		// flush deferred writes before the store is closed
		return engine.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newMux(engine *signalfence.Engine, gatherer prometheus.Gatherer) *http.ServeMux {
	handler := api.NewHandler(engine)
	mux := http.NewServeMux()
	mux.HandleFunc("/check", handler.Check)
	mux.Handle("/metrics", api.NewMetricsHandler(engine.Metrics()))
	mux.Handle("/metrics/prometheus", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/events", api.NewEventsHandler(engine.Recorder()))
	mux.HandleFunc("/health", healthHandler(engine))
	mux.HandleFunc("/dashboard", dashboardHandler)
	mux.HandleFunc("/", rootHandler)
	return mux
}

func healthHandler(engine *signalfence.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "healthy", http.StatusOK
		if err := engine.HealthCheck(r.Context()); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]string{
			"status":  status,
			"service": "signalfence",
			"version": version,
		})
	}
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "SignalFence Request Admission Service",
		"version": version,
		"endpoints": map[string]string{
			"POST /check":             "Evaluate a described request",
			"GET /metrics":            "Security counters (JSON)",
			"GET /metrics/prometheus": "Prometheus metrics",
			"GET /events":             "Recent security events",
			"GET /dashboard":          "Dashboard (HTML)",
			"GET /health":             "Health check",
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
