// Package signalfence re-exports the engine and middleware for single-import use.
package signalfence

import (
	"github.com/KanavDutta/signalfence/core"
	"github.com/KanavDutta/signalfence/middleware"
	sf "github.com/KanavDutta/signalfence/pkg/signalfence"
)

// Re-export main types for convenience
type (
	Engine          = sf.Engine
	Option          = sf.Option
	Config          = sf.Config
	Decision        = core.Decision
	SecurityContext = core.SecurityContext
)

var (
	// NewEngine creates a new security engine
	NewEngine = sf.NewEngine
	// NewConfig returns the default configuration
	NewConfig = sf.NewConfig
	// Protect is the net/http middleware
	Protect = middleware.Protect
	// Gin is the gin middleware
	Gin = middleware.Gin
)
