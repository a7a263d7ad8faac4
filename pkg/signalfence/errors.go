package signalfence

import (
	"errors"

	"github.com/KanavDutta/signalfence/core"
)

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = core.ErrInvalidConfig

	// ErrInvalidMode is returned for a mode other than DRY_RUN or LIVE
	ErrInvalidMode = core.ErrInvalidMode

	// ErrInvalidThreshold is returned when a limit or threshold is not positive
	ErrInvalidThreshold = core.ErrInvalidThreshold

	// ErrInvalidWindow is returned when a window or duration is not positive
	ErrInvalidWindow = core.ErrInvalidWindow

	// ErrContextExtraction is returned when no security context can be built from a request
	ErrContextExtraction = errors.New("failed to extract security context from request")

	// ErrStoreUnavailable is returned by health checks when the store cannot be reached
	ErrStoreUnavailable = errors.New("store unavailable")
)
