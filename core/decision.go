package core

// Decision is a read-only view over a Result.
type Decision struct {
	result  *Result
	primary *Check
}

// NewDecision wraps a result. A nil result is treated as fail-open.
func NewDecision(result *Result) *Decision {
	if result == nil {
		result = AllowAll()
	}
	return &Decision{result: result, primary: result.FirstBlocked()}
}

// IsAllowed reports whether the request may proceed.
func (d *Decision) IsAllowed() bool { return d.result.Allowed }

// IsDenied is the negation of IsAllowed.
func (d *Decision) IsDenied() bool { return !d.result.Allowed }

// IsRateLimit reports whether the primary reason is rate limiting.
func (d *Decision) IsRateLimit() bool { return d.reasonIs(CheckRateLimit) }

// IsAuthFailure reports whether the primary reason is an auth-failure lockout.
func (d *Decision) IsAuthFailure() bool { return d.reasonIs(CheckAuthFailure) }

// IsBot reports whether the primary reason is bot detection.
func (d *Decision) IsBot() bool { return d.reasonIs(CheckBotDetection) }

// IsDDoS reports whether the primary reason is DDoS protection.
func (d *Decision) IsDDoS() bool { return d.reasonIs(CheckDDoSProtection) }

// Reason returns the type of the first blocked check, or "" when nothing blocked.
func (d *Decision) Reason() CheckType {
	if d.primary == nil {
		return ""
	}
	return d.primary.Type
}

// Primary returns the first blocked check, or nil.
func (d *Decision) Primary() *Check { return d.primary }

// Result returns the underlying result.
func (d *Decision) Result() *Result { return d.result }

// Checks returns every check produced for the request.
func (d *Decision) Checks() []*Check { return d.result.Checks }

func (d *Decision) reasonIs(t CheckType) bool {
	return d.primary != nil && d.primary.Type == t
}
