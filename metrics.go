package auth

import "sync/atomic"

// MetricID identifies one outcome counter.
type MetricID uint8

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricLoginLockout
	MetricTwoFactorChallenge
	MetricTwoFactorSuccess
	MetricTwoFactorFailure
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshRateLimited
	MetricRefreshReuseBlocked
	MetricRegisterSuccess
	MetricRegisterConflict
	MetricEmailVerified
	MetricEmailVerificationFailure
	MetricResetRequested
	MetricResetSuccess
	MetricResetFailure
	MetricPasswordChangeSuccess
	MetricPasswordChangeFailure
	MetricSocialLoginSuccess
	MetricSocialLoginFailure
	MetricSessionCreated
	MetricSessionsInvalidated

	metricCount
)

// MetricDef names a counter for exporters.
type MetricDef struct {
	ID   MetricID
	Name string
	Help string
}

// MetricDefs returns the exporter-facing definition of every counter, in
// MetricID order.
func MetricDefs() []MetricDef {
	return []MetricDef{
		{MetricLoginSuccess, "auth_login_success_total", "Successful password logins."},
		{MetricLoginFailure, "auth_login_failure_total", "Failed password logins (unknown user, bad password, disabled account)."},
		{MetricLoginRateLimited, "auth_login_rate_limited_total", "Logins rejected by the per-IP throttle."},
		{MetricLoginLockout, "auth_login_lockout_total", "Logins rejected by the identifier+IP lockout."},
		{MetricTwoFactorChallenge, "auth_two_factor_challenge_total", "Logins deferred to a two-factor challenge."},
		{MetricTwoFactorSuccess, "auth_two_factor_success_total", "Completed two-factor verifications."},
		{MetricTwoFactorFailure, "auth_two_factor_failure_total", "Rejected two-factor codes."},
		{MetricRefreshSuccess, "auth_refresh_success_total", "Successful refresh-token exchanges."},
		{MetricRefreshFailure, "auth_refresh_failure_total", "Rejected refresh tokens."},
		{MetricRefreshRateLimited, "auth_refresh_rate_limited_total", "Refreshes rejected by the per-IP throttle."},
		{MetricRefreshReuseBlocked, "auth_refresh_reuse_blocked_total", "Replays of rotated refresh tokens."},
		{MetricRegisterSuccess, "auth_register_success_total", "Created accounts."},
		{MetricRegisterConflict, "auth_register_conflict_total", "Registrations rejected for duplicate username or email."},
		{MetricEmailVerified, "auth_email_verified_total", "Completed email verifications."},
		{MetricEmailVerificationFailure, "auth_email_verification_failure_total", "Unknown or expired verification tokens."},
		{MetricResetRequested, "auth_password_reset_requested_total", "Stored password-reset tokens."},
		{MetricResetSuccess, "auth_password_reset_success_total", "Completed password resets."},
		{MetricResetFailure, "auth_password_reset_failure_total", "Unknown or expired reset tokens."},
		{MetricPasswordChangeSuccess, "auth_password_change_success_total", "Completed password changes."},
		{MetricPasswordChangeFailure, "auth_password_change_failure_total", "Password changes rejected for a wrong current password."},
		{MetricSocialLoginSuccess, "auth_social_login_success_total", "Successful social logins."},
		{MetricSocialLoginFailure, "auth_social_login_failure_total", "Rejected social logins."},
		{MetricSessionCreated, "auth_session_created_total", "Registered sessions."},
		{MetricSessionsInvalidated, "auth_sessions_invalidated_total", "Sessions removed by bulk invalidation."},
	}
}

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds one padded atomic counter per MetricID. When disabled all
// operations are no-ops. Increments are lock-free and allocation-free.
type Metrics struct {
	enabled  bool
	counters [metricCount]paddedCounter
}

// NewMetrics creates a Metrics instance.
func NewMetrics(enabled bool) *Metrics {
	return &Metrics{enabled: enabled}
}

// Inc increments a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Add increments a counter by n.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies every counter.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricCount)}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return snap
}
