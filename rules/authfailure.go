package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/KanavDutta/signalfence/core"
)

// Auth-failure rule names
const (
	RuleAuthFailureDetection   = "auth-failure-detection"
	RuleAuthFailurePostProcess = "auth-failure-post-process"
	RuleAuthFailureCleanup     = "auth-failure-cleanup"
)

// AuthState is the per-IP failure record stored under AuthFailureKey.
type AuthState struct {
	Attempts     int   `json:"attempts"`
	LockoutUntil int64 `json:"lockoutUntil"`
	LastAttempt  int64 `json:"lastAttempt"`
}

// Locked reports whether the lockout is still running at now (ms).
func (s *AuthState) Locked(now int64) bool {
	return s.LockoutUntil > now
}

// AuthFailureRules returns the auth-failure category. Cleanup runs first so an expired
// lockout is gone before detection and post-processing look at it.
func AuthFailureRules() []Rule {
	return []Rule{
		New(RuleAuthFailureCleanup, "Removes expired lockouts", 78, core.CheckAuthFailure, evaluateAuthCleanup),
		New(RuleAuthFailureDetection, "Blocks IPs locked out of an auth path", 76, core.CheckAuthFailure, evaluateAuthDetection),
		New(RuleAuthFailurePostProcess, "Counts POSTs to auth paths and locks repeat offenders", 74, core.CheckAuthFailure, evaluateAuthPostProcess),
	}
}

func loadAuthState(ctx context.Context, opts *Options, ip string) (*AuthState, error) {
	raw, ok := opts.Cache.Get(ctx, AuthFailureKey(ip))
	if !ok {
		return nil, nil
	}
	var st AuthState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode auth state: %w", err)
	}
	return &st, nil
}

func evaluateAuthCleanup(ctx context.Context, sc *core.SecurityContext, opts *Options) (*core.Check, error) {
	st, err := loadAuthState(ctx, opts, sc.IP)
	if err != nil || st == nil {
		return nil, err
	}
	if st.LockoutUntil == 0 || st.Locked(sc.Timestamp) {
		return nil, nil
	}

	key := AuthFailureKey(sc.IP)
	opts.Store.Delete(ctx, key)
	opts.Cache.Forget(key)
	opts.log(RuleAuthFailureCleanup, sc).WithField("attempts", st.Attempts).Info("expired lockout removed")
	return nil, nil
}

func evaluateAuthDetection(ctx context.Context, sc *core.SecurityContext, opts *Options) (*core.Check, error) {
	scope, _, ok := opts.Config.AuthFailure.Policy(sc.Path)
	if !ok {
		return nil, nil
	}
	st, err := loadAuthState(ctx, opts, sc.IP)
	if err != nil || st == nil || !st.Locked(sc.Timestamp) {
		return nil, err
	}

	return core.NewCheck(core.CheckAuthFailure, RuleAuthFailureDetection, core.SeverityHigh, true,
		fmt.Sprintf("locked out of %s after %d failed attempts", scope, st.Attempts),
		map[string]any{
			"attempts":     st.Attempts,
			"lockoutUntil": st.LockoutUntil,
			"remainingMs":  st.LockoutUntil - sc.Timestamp,
			"scope":        scope,
		}), nil
}

func evaluateAuthPostProcess(ctx context.Context, sc *core.SecurityContext, opts *Options) (*core.Check, error) {
	if sc.Method != http.MethodPost {
		return nil, nil
	}
	scope, policy, ok := opts.Config.AuthFailure.Policy(sc.Path)
	if !ok {
		return nil, nil
	}
	st, err := loadAuthState(ctx, opts, sc.IP)
	if err != nil {
		return nil, err
	}
	if st == nil || (st.LockoutUntil != 0 && !st.Locked(sc.Timestamp)) {
		st = &AuthState{}
	}

	st.Attempts++
	st.LastAttempt = sc.Timestamp

	var check *core.Check
	switch {
	case st.Attempts >= policy.MaxAttempts:
		st.LockoutUntil = sc.Timestamp + policy.LockoutDuration.Milliseconds()
		check = core.NewCheck(core.CheckAuthFailure, RuleAuthFailurePostProcess, core.SeverityCritical, true,
			fmt.Sprintf("too many failed attempts on %s, locked for %s", scope, policy.LockoutDuration),
			map[string]any{
				"attempts":     st.Attempts,
				"maxAttempts":  policy.MaxAttempts,
				"lockoutUntil": st.LockoutUntil,
				"scope":        scope,
			})
	case st.Attempts >= 2:
		check = core.NewCheck(core.CheckAuthFailure, RuleAuthFailurePostProcess, core.SeverityMedium, false,
			fmt.Sprintf("%d failed attempts on %s", st.Attempts, scope),
			map[string]any{
				"attempts":    st.Attempts,
				"maxAttempts": policy.MaxAttempts,
				"remaining":   policy.MaxAttempts - st.Attempts,
				"scope":       scope,
			})
	}

	data, err := json.Marshal(st)
	if err != nil {
		return check, err
	}
	key := AuthFailureKey(sc.IP)
	opts.Cache.Put(key, string(data))
	opts.Defer(func(ctx context.Context) {
		opts.Store.Set(ctx, key, string(data), policy.LockoutDuration)
	})
	return check, nil
}
