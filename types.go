package goGuard

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/internal/access"
	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/mfa"
	"github.com/MrEthical07/goGuard/internal/questions"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/session"
)

// MFAStep is the position in the MFA enrollment flow.
type MFAStep uint8

const (
	MFAStepNone MFAStep = iota
	MFAStepSetup
	MFAStepVerify
	MFAStepBackup
)

func (s MFAStep) String() string {
	switch s {
	case MFAStepNone:
		return "none"
	case MFAStepSetup:
		return "setup"
	case MFAStepVerify:
		return "verify"
	case MFAStepBackup:
		return "backup"
	default:
		return "unknown"
	}
}

// QuestionStep is the position in the security-question flow.
type QuestionStep uint8

const (
	QuestionStepNone QuestionStep = iota
	QuestionStepSetup
	QuestionStepVerify
)

func (s QuestionStep) String() string {
	switch s {
	case QuestionStepNone:
		return "none"
	case QuestionStepSetup:
		return "setup"
	case QuestionStepVerify:
		return "verify"
	default:
		return "unknown"
	}
}

// BiometricType is the kind of sensor reported by a [BiometricSensor].
type BiometricType uint8

const (
	BiometricNone BiometricType = iota
	BiometricFingerprint
	BiometricFace
	BiometricIris
)

func (b BiometricType) String() string {
	switch b {
	case BiometricFingerprint:
		return "fingerprint"
	case BiometricFace:
		return "face"
	case BiometricIris:
		return "iris"
	default:
		return "none"
	}
}

// EventType classifies a [SecurityEvent].
type EventType string

const (
	EventLogin          EventType = "login"
	EventLogout         EventType = "logout"
	EventLockout        EventType = "lockout"
	EventMFASetup       EventType = "mfa_setup"
	EventPasswordChange EventType = "password_change"
	EventSessionTimeout EventType = "session_timeout"
	EventBiometricSetup EventType = "biometric_setup"
)

// SecurityEvent is an immutable record of a security-relevant action. Only
// the latest is kept in [SecurityState]; every event is forwarded to the
// audit trail and the local mirror log.
type SecurityEvent struct {
	Type      EventType
	Timestamp time.Time
	Details   map[string]string
}

// AlertKind is the severity of a [SecurityAlert].
type AlertKind string

const (
	AlertWarning AlertKind = "warning"
	AlertError   AlertKind = "error"
	AlertInfo    AlertKind = "info"
)

// SecurityAlert is one entry in the alert sequence. Alerts are only ever
// marked dismissed; ClearSecurityAlerts empties the sequence.
type SecurityAlert struct {
	ID        string
	Kind      AlertKind
	Title     string
	Message   string
	Timestamp time.Time
	Dismissed bool
}

// SecurityState is the single observable value owned by the Provider. It is
// replaced on every action and handed out by value.
type SecurityState struct {
	IsSessionActive       bool
	SessionTimeRemaining  time.Duration
	IsSessionWarningShown bool

	LoginAttempts         int
	IsAccountLocked       bool
	LockoutTimeRemaining  time.Duration
	RequirePasswordChange bool

	IsMFAEnabled         bool
	IsMFARequired        bool
	MFAStep              MFAStep
	BackupCodesRemaining int

	HasSecurityQuestions bool
	SecurityQuestionStep QuestionStep

	IsBiometricAvailable bool
	IsBiometricEnabled   bool
	BiometricType        BiometricType

	LastSecurityEvent *SecurityEvent
	SecurityAlerts    []SecurityAlert
}

func (s SecurityState) clone() SecurityState {
	out := s
	if s.LastSecurityEvent != nil {
		ev := *s.LastSecurityEvent
		ev.Details = cloneDetails(s.LastSecurityEvent.Details)
		out.LastSecurityEvent = &ev
	}
	if s.SecurityAlerts != nil {
		out.SecurityAlerts = append([]SecurityAlert(nil), s.SecurityAlerts...)
	}
	return out
}

func cloneDetails(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// LoginStatus is the result class of [Provider.HandleLoginAttempt].
type LoginStatus uint8

const (
	LoginSucceeded LoginStatus = iota
	LoginFailed
	// LoginLocked means the identifier is locked out, either already or as a
	// result of this attempt.
	LoginLocked
)

func (s LoginStatus) String() string {
	switch s {
	case LoginSucceeded:
		return "succeeded"
	case LoginFailed:
		return "failed"
	case LoginLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// LoginOutcome reports what a login attempt did to the ledger.
type LoginOutcome struct {
	Status            LoginStatus
	Attempts          int
	RemainingAttempts int
	LockoutRemaining  time.Duration
	// MFARequired is set on success when the account has MFA enabled.
	MFARequired bool
}

// Collaborators and value types re-exported from internal packages.
type (
	Alerter          = session.Alerter
	AlertButton      = session.Button
	SecurityQuestion = questions.Question
	QuestionPrompt   = questions.Prompt
	MFAEnrollment    = mfa.Enrollment
	AccessDecision   = access.Decision
	PasswordResult   = password.PolicyResult
	AuditAppender    = audit.Appender
	AuditRecord      = audit.Record
)

// BiometricSensor is the platform biometric collaborator.
type BiometricSensor interface {
	// Capability reports the enrolled sensor type, or BiometricNone.
	Capability(ctx context.Context) (BiometricType, error)
	Authenticate(ctx context.Context, prompt string) (bool, error)
}

// CodeVerifier checks a live one-time code delivered out of band (SMS or an
// external TOTP service). When none is configured the Provider verifies
// against its own TOTP secret.
type CodeVerifier interface {
	Verify(ctx context.Context, code string) (bool, error)
}
