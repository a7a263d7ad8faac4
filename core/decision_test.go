package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecision_AllowedIsNotDenied(t *testing.T) {
	results := []*Result{
		nil,
		AllowAll(),
		{Allowed: false, Checks: []*Check{NewCheck(CheckRateLimit, "rate-limit", SeverityHigh, true, "too many", nil)}},
		{Allowed: true, Checks: []*Check{NewCheck(CheckBotDetection, "bot-user-agent", SeverityMedium, false, "curl", nil)}},
	}

	for _, r := range results {
		d := NewDecision(r)
		assert.Equal(t, d.IsAllowed(), !d.IsDenied())
	}
}

func TestDecision_PrimaryReasonIsFirstBlockedCheck(t *testing.T) {
	result := &Result{
		Allowed: false,
		Checks: []*Check{
			NewCheck(CheckBotDetection, "bot-user-agent", SeverityMedium, false, "short user agent", nil),
			NewCheck(CheckDDoSProtection, "ddos-ip", SeverityHigh, true, "flood", nil),
			NewCheck(CheckRateLimit, "rate-limit", SeverityHigh, true, "too many", nil),
		},
	}

	d := NewDecision(result)

	assert.True(t, d.IsDenied())
	assert.True(t, d.IsDDoS())
	assert.False(t, d.IsRateLimit())
	assert.False(t, d.IsBot())
	assert.False(t, d.IsAuthFailure())
	assert.Equal(t, CheckDDoSProtection, d.Reason())
	assert.Equal(t, "ddos-ip", d.Primary().RuleID)
}

func TestDecision_NoBlockedCheckHasNoReason(t *testing.T) {
	d := NewDecision(AllowAll())

	assert.True(t, d.IsAllowed())
	assert.Empty(t, d.Reason())
	assert.Nil(t, d.Primary())
	assert.Empty(t, d.Checks())
}

func TestNewCheck_ConclusionMirrorsBlocked(t *testing.T) {
	assert.Equal(t, ConclusionDeny, NewCheck(CheckRateLimit, "r", SeverityHigh, true, "", nil).Conclusion)
	assert.Equal(t, ConclusionAllow, NewCheck(CheckRateLimit, "r", SeverityHigh, false, "", nil).Conclusion)
}
