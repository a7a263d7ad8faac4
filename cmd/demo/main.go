package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/KanavDutta/signalfence/cmd/demo/handlers"
	"github.com/KanavDutta/signalfence/core"
	"github.com/KanavDutta/signalfence/logger"
	"github.com/KanavDutta/signalfence/middleware"
	"github.com/KanavDutta/signalfence/pkg/signalfence"
)

func main() {
	// Command-line flags
	port := flag.String("port", "8080", "Port to run the server on")
	configFile := flag.String("config", "cmd/demo/config.yaml", "Path to configuration file")
	dryRun := flag.Bool("dry-run", false, "Report would-be blocks instead of enforcing them")
	flag.Parse()

	// Print banner
	printBanner()

	engine, err := newEngine(*configFile, *dryRun, os.Stdout)
	if err != nil {
		logger.Log().WithError(err).Fatal("failed to start security engine")
	}
	log := logger.Log()

	// Start deny cache pruning
	stop := engine.Start()
	defer stop()

	// Start server
	addr := ":" + *port
	log.WithField("addr", "http://localhost"+addr).Info("starting demo server, press Ctrl+C to stop")

	if err := http.ListenAndServe(addr, newMux(engine, *port)); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}

// newEngine loads configFile, initializes the global logger on out and builds the engine.
func newEngine(configFile string, dryRun bool, out io.Writer) (*signalfence.Engine, error) {
	logger.Log().WithField("config", configFile).Info("loading configuration")
	cfg, err := signalfence.LoadConfigFromFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if dryRun {
		cfg.Mode = core.ModeDryRun
	}
	if err := logger.Init(cfg.Logging.Level, out); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	engine, err := signalfence.NewEngine(
		signalfence.WithConfig(cfg),
		signalfence.WithLogger(logger.Log()),
	)
	if err != nil {
		return nil, err
	}
	logger.Log().WithField("mode", cfg.Mode).Info("security engine initialized")
	return engine, nil
}

func newMux(engine *signalfence.Engine, port string) http.Handler {
	protect := middleware.Protect(engine)
	mux := http.NewServeMux()

	// Health check endpoint (not protected)
	mux.HandleFunc("/health", handlers.Health)

	// Protected endpoints
	mux.Handle("/api/search", protect(http.HandlerFunc(handlers.Search)))
	mux.Handle("/api/login", protect(http.HandlerFunc(handlers.Login)))
	mux.Handle("/api/update", protect(http.HandlerFunc(handlers.Update)))
	mux.Handle("/signup", protect(http.HandlerFunc(handlers.Signup)))

	// Root endpoint
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, `SignalFence Demo Server

Available endpoints:
  GET  /health       - Health check (not protected)
  GET  /api/search   - Search endpoint (100 req/min)
  POST /api/login    - Login endpoint (locked out after 5 attempts)
  PUT  /api/update   - Update resource (30 req/min)
  GET  /signup       - Sign-up form with a hidden honeypot field

Try it:
  curl http://localhost:%[1]s/health
  curl http://localhost:%[1]s/api/search?q=test
  curl -X POST -d 'username=demo&password=wrong' http://localhost:%[1]s/api/login
  curl -X POST -d 'email=a@b.c&website=spam' http://localhost:%[1]s/signup

Response headers:
  X-Security-Reason      - Why the request was denied
  X-Security-Would-Block - What would have blocked it (DRY_RUN)
  Retry-After            - Seconds to wait (when the block has an end)
`, port)
	})
	return mux
}

func printBanner() {
	banner := `
╔═══════════════════════════════════════════════════════╗
║                                                       ║
║   ███████╗██╗ ██████╗ ███╗   ██╗ █████╗ ██╗          ║
║   ██╔════╝██║██╔════╝ ████╗  ██║██╔══██╗██║          ║
║   ███████╗██║██║  ███╗██╔██╗ ██║███████║██║          ║
║   ╚════██║██║██║   ██║██║╚██╗██║██╔══██║██║          ║
║   ███████║██║╚██████╔╝██║ ╚████║██║  ██║███████╗     ║
║   ╚══════╝╚═╝ ╚═════╝ ╚═╝  ╚═══╝╚═╝  ╚═╝╚══════╝     ║
║                                                       ║
║             FENCE - Demo Server                       ║
║                                                       ║
║   Request Admission & Abuse Detection                ║
║   Rate limits | Lockouts | Bots | DDoS               ║
║                                                       ║
╚═══════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
}
