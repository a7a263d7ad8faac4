package signalfence

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/KanavDutta/signalfence/audit"
	"github.com/KanavDutta/signalfence/denycache"
	"github.com/KanavDutta/signalfence/rules"
	"github.com/KanavDutta/signalfence/store"
)

// Option is a functional option for configuring an Engine.
type Option func(*Engine) error

// WithStore sets the KV store shared by rules, deny cache, audit and metrics.
// If not provided, an in-memory store is used.
func WithStore(kv store.KV) Option {
	return func(e *Engine) error {
		if kv == nil {
			return fmt.Errorf("%w: store cannot be nil", ErrInvalidConfig)
		}
		e.store = kv
		return nil
	}
}

// WithConfig sets the security configuration.
func WithConfig(config *Config) Option {
	return func(e *Engine) error {
		if config == nil {
			return fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
		}
		if err := config.Validate(); err != nil {
			return err
		}
		e.config = config
		return nil
	}
}

// WithConfigFile loads configuration from a YAML file.
func WithConfigFile(path string) Option {
	return func(e *Engine) error {
		config, err := LoadConfigFromFile(path)
		if err != nil {
			return err
		}
		e.config = config
		return nil
	}
}

// WithLogger sets the logger. Defaults to the standard logrus logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) error {
		if log == nil {
			return fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfig)
		}
		e.log = log
		return nil
	}
}

// WithScheduler sets how bookkeeping writes are run after the decision is returned.
// Defaults to a GoScheduler.
func WithScheduler(s store.Scheduler) Option {
	return func(e *Engine) error {
		if s == nil {
			return fmt.Errorf("%w: scheduler cannot be nil", ErrInvalidConfig)
		}
		e.scheduler = s
		return nil
	}
}

// WithClock sets the time source used for timestamps, windows and deny-cache expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) error {
		if now == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfig)
		}
		e.now = now
		return nil
	}
}

// WithDenyCache sets a prebuilt deny-cache manager instead of the one derived from config.
func WithDenyCache(m *denycache.Manager) Option {
	return func(e *Engine) error {
		if m == nil {
			return fmt.Errorf("%w: deny cache cannot be nil", ErrInvalidConfig)
		}
		e.denyCache = m
		return nil
	}
}

// WithNotifier sets the outward alert notifier. By default shoutrrr is used when alert
// URLs are configured.
func WithNotifier(n audit.Notifier) Option {
	return func(e *Engine) error {
		e.notifier = n
		return nil
	}
}

// WithPlatformGate replaces the environment gate. When gate returns false the request is
// allowed without any evaluation.
func WithPlatformGate(gate func() bool) Option {
	return func(e *Engine) error {
		if gate == nil {
			return fmt.Errorf("%w: platform gate cannot be nil", ErrInvalidConfig)
		}
		e.gate = gate
		return nil
	}
}

// WithRules replaces the built-in rule set.
func WithRules(rs ...rules.Rule) Option {
	return func(e *Engine) error {
		if len(rs) == 0 {
			return fmt.Errorf("%w: at least one rule is required", ErrInvalidConfig)
		}
		e.rules = rs
		return nil
	}
}

// WithContextExtractor sets how a SecurityContext is built from a request.
func WithContextExtractor(fn ContextExtractor) Option {
	return func(e *Engine) error {
		if fn == nil {
			return fmt.Errorf("%w: context extractor cannot be nil", ErrInvalidConfig)
		}
		e.extract = fn
		return nil
	}
}

// WithPrometheus turns Prometheus observation on or off. Defaults to on.
func WithPrometheus(enabled bool) Option {
	return func(e *Engine) error {
		e.prometheus = enabled
		return nil
	}
}
