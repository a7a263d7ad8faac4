package core

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidMode is returned for a mode other than DRY_RUN or LIVE
	ErrInvalidMode = errors.New("mode must be DRY_RUN or LIVE")

	// ErrInvalidThreshold is returned when a limit or threshold is not positive
	ErrInvalidThreshold = errors.New("threshold must be positive")

	// ErrInvalidWindow is returned when a window or duration is not positive
	ErrInvalidWindow = errors.New("window must be positive")
)
