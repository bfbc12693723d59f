package internaldefs

import (
	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef binds a counter ID to its exported name.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram ID to its exported name.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: goGuard.MetricLoginSuccess, Name: "goguard_login_success_total", Help: "Successful login attempts."},
	{ID: goGuard.MetricLoginFailure, Name: "goguard_login_failure_total", Help: "Failed login attempts."},
	{ID: goGuard.MetricLoginRejectedLocked, Name: "goguard_login_rejected_locked_total", Help: "Login attempts refused while the account was locked."},
	{ID: goGuard.MetricAccountLocked, Name: "goguard_account_locked_total", Help: "Lockouts triggered by repeated failures."},
	{ID: goGuard.MetricSessionStarted, Name: "goguard_session_started_total", Help: "Started sessions."},
	{ID: goGuard.MetricSessionEnded, Name: "goguard_session_ended_total", Help: "Sessions ended by logout."},
	{ID: goGuard.MetricSessionWarning, Name: "goguard_session_warning_total", Help: "Inactivity warnings shown."},
	{ID: goGuard.MetricSessionExpired, Name: "goguard_session_expired_total", Help: "Sessions expired by inactivity."},
	{ID: goGuard.MetricSessionResumed, Name: "goguard_session_resumed_total", Help: "Sessions resumed from persisted markers."},
	{ID: goGuard.MetricPasswordRejected, Name: "goguard_password_rejected_total", Help: "Passwords rejected by the complexity policy."},
	{ID: goGuard.MetricPasswordChanged, Name: "goguard_password_changed_total", Help: "Accepted password changes."},
	{ID: goGuard.MetricMFAEnabled, Name: "goguard_mfa_enabled_total", Help: "Completed MFA enrollments."},
	{ID: goGuard.MetricMFADisabled, Name: "goguard_mfa_disabled_total", Help: "MFA disable operations."},
	{ID: goGuard.MetricMFASuccess, Name: "goguard_mfa_success_total", Help: "Accepted one-time codes."},
	{ID: goGuard.MetricMFAFailure, Name: "goguard_mfa_failure_total", Help: "Rejected one-time codes."},
	{ID: goGuard.MetricBackupCodeUsed, Name: "goguard_backup_code_used_total", Help: "Consumed backup codes."},
	{ID: goGuard.MetricBackupCodeFailed, Name: "goguard_backup_code_failed_total", Help: "Rejected backup codes."},
	{ID: goGuard.MetricBackupCodeRegenerated, Name: "goguard_backup_code_regenerated_total", Help: "Backup-code pool regenerations."},
	{ID: goGuard.MetricQuestionsSaved, Name: "goguard_questions_saved_total", Help: "Security-question sets saved."},
	{ID: goGuard.MetricQuestionsVerified, Name: "goguard_questions_verified_total", Help: "Successful security-question checks."},
	{ID: goGuard.MetricQuestionsFailed, Name: "goguard_questions_failed_total", Help: "Failed security-question checks."},
	{ID: goGuard.MetricBiometricEnabled, Name: "goguard_biometric_enabled_total", Help: "Biometric opt-ins."},
	{ID: goGuard.MetricBiometricFailure, Name: "goguard_biometric_failure_total", Help: "Rejected or failed biometric prompts."},
	{ID: goGuard.MetricPHIGranted, Name: "goguard_phi_granted_total", Help: "PHI reads granted by the access gate."},
	{ID: goGuard.MetricPHIDenied, Name: "goguard_phi_denied_total", Help: "PHI reads denied by the access gate."},
	{ID: goGuard.MetricStoreFailure, Name: "goguard_store_failure_total", Help: "Swallowed persistence failures."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricPHIGateLatency, Name: "goguard_phi_gate_latency_seconds", Help: "PHI access gate latency."},
}

// HistogramBounds are the upper bounds of the eight latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in instrument-name form.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
