package goGuard

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/goGuard/internal/access"
	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/clock"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/internal/mfa"
	"github.com/MrEthical07/goGuard/internal/questions"
	"github.com/MrEthical07/goGuard/kv"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/session"
)

// biometricEnabledKey persists the user's biometric opt-in.
const biometricEnabledKey = "biometric_enabled"

// Provider is the composition root. It owns the only [SecurityState] and is
// the sole writer of it; every other component reports back through return
// values or listener callbacks.
//
// Provider methods are safe for concurrent use. Collaborator callbacks
// (alerts, subscribers) are always invoked without internal locks held.
type Provider struct {
	config Config

	store     kv.Store
	clock     clock.Clock
	alerter   Alerter
	verifier  CodeVerifier
	biometric BiometricSensor
	logger    *slog.Logger
	metrics   *Metrics
	policy    password.Policy

	session   *session.Manager
	ledger    *limiters.LoginAttemptLedger
	codes     *limiters.CodeLimiter
	mfa       *mfa.Manager
	questions *questions.Store
	gate      *access.Gate

	audit        *audit.Logger
	dispatcher   *audit.Dispatcher
	appenderSink *audit.AppenderSink
	mirror       *audit.Mirror

	unsubscribeSession func()

	mu             sync.Mutex
	state          SecurityState
	subs           map[uint64]func(SecurityState)
	nextSub        uint64
	warningAlertID string
	closed         bool
	closeOnce      sync.Once
}

// init resolves the persisted flags concurrently and folds them into one
// state update. Store failures read as absence; only cancellation of ctx is
// returned.
func (p *Provider) init(ctx context.Context) error {
	var (
		mfaEnabled   bool
		codesLeft    int
		hasQuestions bool
		resumed      bool
		bioType      BiometricType
		bioEnabled   bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		enabled, err := p.mfa.Enabled(gctx)
		if err != nil {
			p.warn("mfa flag read failed", err)
			return gctx.Err()
		}
		mfaEnabled = enabled
		if !enabled {
			return nil
		}
		codes, err := p.mfa.BackupCodes(gctx)
		if err != nil {
			p.warn("backup code read failed", err)
			return gctx.Err()
		}
		codesLeft = len(codes)
		return nil
	})
	g.Go(func() error {
		hasQuestions = p.questions.Exists(gctx)
		return gctx.Err()
	})
	g.Go(func() error {
		resumed = p.session.Resume(gctx)
		return gctx.Err()
	})
	g.Go(func() error {
		bioType = p.biometricCapability(gctx)
		if bioType == BiometricNone {
			return nil
		}
		v, ok, err := p.store.Get(gctx, biometricEnabledKey)
		if err != nil {
			p.warn("biometric flag read failed", err)
			return gctx.Err()
		}
		bioEnabled = ok && v == "true"
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if resumed {
		p.metrics.Inc(MetricSessionResumed)
	}
	remaining := p.session.TimeUntilExpiry()
	p.update(func(s *SecurityState) {
		s.IsMFAEnabled = mfaEnabled
		s.BackupCodesRemaining = codesLeft
		s.HasSecurityQuestions = hasQuestions
		s.IsSessionActive = resumed && remaining > 0
		s.SessionTimeRemaining = remaining
		s.BiometricType = bioType
		s.IsBiometricAvailable = bioType != BiometricNone
		s.IsBiometricEnabled = bioEnabled
	})
	return nil
}

// State returns a copy of the current state.
func (p *Provider) State() SecurityState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

// Subscribe registers fn for every state replacement and returns a function
// that removes it. fn receives its own copy.
func (p *Provider) Subscribe(fn func(SecurityState)) func() {
	p.mu.Lock()
	p.nextSub++
	id := p.nextSub
	p.subs[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

// Close unregisters the session listener, stops the session timers, unbinds
// the lifecycle source and flushes the audit dispatcher. The persisted
// session is kept so the next Provider can resume it. Close is idempotent.
func (p *Provider) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.subs = make(map[uint64]func(SecurityState))
		p.mu.Unlock()

		if p.unsubscribeSession != nil {
			p.unsubscribeSession()
		}
		p.session.Close()
		p.dispatcher.Close()
	})
}

// MetricsSnapshot returns the in-process counters.
func (p *Provider) MetricsSnapshot() MetricsSnapshot {
	return p.metrics.Snapshot()
}

// AuditDropped returns the number of audit records lost to a full queue or a
// failed append.
func (p *Provider) AuditDropped() uint64 {
	n := p.dispatcher.Dropped()
	if p.appenderSink != nil {
		n += p.appenderSink.Failures()
	}
	return n
}

// SecurityEventLog returns the local mirror of recent security events.
func (p *Provider) SecurityEventLog(ctx context.Context) ([]audit.MirrorEntry, error) {
	return p.mirror.SecurityEvents(ctx)
}

// FailedAttemptLog returns the local mirror of recent failed login attempts.
func (p *Provider) FailedAttemptLog(ctx context.Context) ([]audit.MirrorEntry, error) {
	return p.mirror.FailedAttempts(ctx)
}

/*
====================================
ALERTS
====================================
*/

// AddSecurityAlert appends an alert and returns its id.
func (p *Provider) AddSecurityAlert(kind AlertKind, title, message string) string {
	a := SecurityAlert{
		ID:        uuid.NewString(),
		Kind:      kind,
		Title:     title,
		Message:   message,
		Timestamp: p.clock.Now(),
	}
	p.update(func(s *SecurityState) {
		s.SecurityAlerts = append(s.SecurityAlerts, a)
	})
	return a.ID
}

// DismissSecurityAlert marks the alert dismissed. It stays in the sequence.
func (p *Provider) DismissSecurityAlert(id string) error {
	found := false
	p.update(func(s *SecurityState) {
		for i := range s.SecurityAlerts {
			if s.SecurityAlerts[i].ID == id {
				s.SecurityAlerts[i].Dismissed = true
				found = true
				return
			}
		}
	})
	if !found {
		return ErrAlertNotFound
	}
	return nil
}

// ClearSecurityAlerts empties the alert sequence.
func (p *Provider) ClearSecurityAlerts() {
	p.update(func(s *SecurityState) {
		s.SecurityAlerts = nil
	})
}

// raise records an alert in state and shows it on the alert surface.
func (p *Provider) raise(kind AlertKind, title, message string, buttons []AlertButton) string {
	id := p.AddSecurityAlert(kind, title, message)
	if p.alerter != nil {
		p.alerter.Show(title, message, buttons)
	}
	return id
}

/*
====================================
STATE / EVENTS
====================================
*/

// update applies fn to a copy of the state, stores the copy and notifies
// subscribers outside the lock.
func (p *Provider) update(fn func(*SecurityState)) {
	p.mu.Lock()
	next := p.state.clone()
	fn(&next)
	p.state = next
	subs := make([]func(SecurityState), 0, len(p.subs))
	for id := uint64(1); id <= p.nextSub; id++ {
		if f, ok := p.subs[id]; ok {
			subs = append(subs, f)
		}
	}
	p.mu.Unlock()

	for _, f := range subs {
		f(next.clone())
	}
}

func (p *Provider) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Provider) newEvent(typ EventType, details map[string]string) SecurityEvent {
	return SecurityEvent{Type: typ, Timestamp: p.clock.Now(), Details: cloneDetails(details)}
}

// forward writes ev to the mirror log and the audit trail. Failures are
// logged and dropped.
func (p *Provider) forward(ctx context.Context, ev SecurityEvent, userID string) {
	entry := audit.MirrorEntry{
		Type:       string(ev.Type),
		Identifier: userID,
		Timestamp:  ev.Timestamp,
		Details:    cloneDetails(ev.Details),
	}
	if err := p.mirror.RecordSecurityEvent(ctx, entry); err != nil {
		p.metrics.Inc(MetricStoreFailure)
		p.warn("security event mirror write failed", err)
	}

	switch ev.Type {
	case EventLogin:
		p.audit.LogLogin(ctx, userID)
	case EventLogout:
		p.audit.LogLogout(ctx, userID)
	case EventSessionTimeout:
		p.audit.LogSessionTimeout(ctx, userID, ev.Details["session_id"])
	default:
		p.audit.LogSecurityEvent(ctx, userID, string(ev.Type), ev.Details)
	}
}

// recordFailedAttempt is the ledger's attempt recorder.
func (p *Provider) recordFailedAttempt(ctx context.Context, identifier string, attempts int, at time.Time) {
	entry := audit.MirrorEntry{
		Type:       "failed_login",
		Identifier: identifier,
		Timestamp:  at,
		Details:    map[string]string{"attempts": strconv.Itoa(attempts)},
	}
	if err := p.mirror.RecordFailedAttempt(ctx, entry); err != nil {
		p.metrics.Inc(MetricStoreFailure)
		p.warn("failed attempt mirror write failed", err)
	}
	p.audit.LogFailedAuth(ctx, identifier, "invalid credentials")
}

func (p *Provider) currentSessionID() string {
	if p.session == nil {
		return ""
	}
	return p.session.SessionID()
}

func (p *Provider) currentUserID() string {
	if p.session == nil {
		return ""
	}
	snap := p.session.Snapshot()
	if snap.State != session.StateActive && snap.State != session.StateWarned {
		return ""
	}
	return snap.UserID
}

func (p *Provider) warn(msg string, err error) {
	p.logger.Warn(msg, slog.String("error", err.Error()))
}
