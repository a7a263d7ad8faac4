// Package signalfence decides, per HTTP request, whether the request may proceed.
//
// Each request is reduced to a SecurityContext (client IP, method, path, headers, submitted
// form fields) and run through a prioritized list of rules covering rate limiting, auth
// failure lockouts, bot detection and DDoS protection. Counters and state live in a shared
// key-value store, so several instances behind a load balancer see the same traffic.
//
// # Quick Start
//
//	engine, err := signalfence.NewEngine(
//	    signalfence.WithConfigFile("security.yaml"),
//	    signalfence.WithStore(redisStore),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Start()()
//
//	decision := engine.Protect(r)
//	if decision.IsDenied() {
//	    fmt.Printf("blocked: %s\n", decision.Reason())
//	}
//
// # HTTP Middleware
//
// The middleware package wraps net/http handlers and gin routers around an Engine:
//
//	http.Handle("/", middleware.Protect(engine)(yourHandler))
//
// Denied requests get 429 for rate limiting and DDoS, 403 for everything else, with a
// Retry-After header when the block has a known end.
//
// # Modes
//
// In LIVE mode evaluation stops at the first blocked check and the request is denied.
// In DRY_RUN mode every rule runs, blocked checks are still recorded, cached and alerted,
// and the request is always allowed.
//
// # Configuration
//
// Example YAML configuration:
//
//	mode: LIVE
//
//	rate_limit:
//	  default:
//	    max: 100
//	    window: 1m
//	  path_overrides:
//	    "/api/login":
//	      max: 5
//	      window: 5m
//
//	auth_failure:
//	  path_overrides:
//	    "/login":
//	      max_attempts: 5
//	      lockout_duration: 15m
//
//	bot: HIGH          # or a mapping with block_severity, min_interval, honeypot_fields...
//
//	ddos:
//	  threshold: 100
//	  window: 1m
//
//	deny_cache:
//	  backend: kv      # or memory
//	  include_path: false
//
//	alerts:
//	  urls: ["slack://token@channel"]
//	  severities: [CRITICAL]
//
// Omitted sections keep their defaults (see NewConfig).
//
// # Failure Handling
//
// The engine fails open. Store timeouts read as empty values, a failing rule has no
// opinion, and any unexpected error allows the request. Bookkeeping writes (window
// entries, audit events, deny-cache entries, counters) are handed to a store.Scheduler and
// never delay the decision.
//
// # Testing
//
// Run tests with coverage and race detection:
//
//	go test -v -race -cover ./...
//
package signalfence
