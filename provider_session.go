package goGuard

import (
	"context"
	"fmt"
	"math"
	"time"
)

// StartSession begins a session for userID and returns its id. Starting
// while a session is live restarts it.
func (p *Provider) StartSession(ctx context.Context, userID string) (string, error) {
	if p.isClosed() {
		return "", ErrProviderClosed
	}
	if userID == "" {
		return "", ErrIdentifierRequired
	}

	sid := p.session.Start(ctx, userID)
	p.metrics.Inc(MetricSessionStarted)
	p.audit.LogSessionStart(ctx, userID, sid)

	timeout := p.config.Session.Timeout
	p.dismissWarningAlert()
	p.update(func(s *SecurityState) {
		s.IsSessionActive = true
		s.SessionTimeRemaining = timeout
		s.IsSessionWarningShown = false
	})
	return sid, nil
}

// EndSession ends the live session, clears the persisted markers and emits
// a logout event. Ending an already ended session does nothing.
func (p *Provider) EndSession(ctx context.Context) {
	snap := p.session.Snapshot()
	if !p.session.End(ctx) {
		return
	}
	p.metrics.Inc(MetricSessionEnded)
	p.audit.LogSessionEnd(ctx, snap.UserID, snap.SessionID)

	ev := p.newEvent(EventLogout, map[string]string{"session_id": snap.SessionID})
	p.dismissWarningAlert()
	p.update(func(s *SecurityState) {
		s.IsSessionActive = false
		s.SessionTimeRemaining = 0
		s.IsSessionWarningShown = false
		s.IsMFARequired = false
		s.LastSecurityEvent = &ev
	})
	p.forward(ctx, ev, snap.UserID)
}

// ExtendSession is the user's explicit "continue" choice after a warning.
func (p *Provider) ExtendSession(ctx context.Context) {
	p.session.Extend(ctx)
	p.afterActivity()
}

// UpdateActivity records user activity. It is a no-op without a live session.
func (p *Provider) UpdateActivity(ctx context.Context) {
	p.session.UpdateActivity(ctx)
	p.afterActivity()
}

func (p *Provider) afterActivity() {
	if !p.session.Active() {
		return
	}
	remaining := p.session.TimeUntilExpiry()
	p.dismissWarningAlert()
	p.update(func(s *SecurityState) {
		s.IsSessionActive = true
		s.SessionTimeRemaining = remaining
		s.IsSessionWarningShown = false
	})
}

// CheckSession checks the session against the persisted activity stamp. An
// elapsed session runs the expiry path and reports false.
func (p *Provider) CheckSession(ctx context.Context) bool {
	if !p.session.Check(ctx) {
		return false
	}
	remaining := p.session.TimeUntilExpiry()
	p.update(func(s *SecurityState) {
		s.SessionTimeRemaining = remaining
	})
	return true
}

// SessionUserID returns the user of the live session, or "" when none is live.
func (p *Provider) SessionUserID() string {
	return p.currentUserID()
}

// SessionTimeRemaining returns the live inactivity budget.
func (p *Provider) SessionTimeRemaining() time.Duration {
	return p.session.TimeUntilExpiry()
}

func (p *Provider) onSessionWarning(remaining time.Duration) {
	p.metrics.Inc(MetricSessionWarning)
	p.update(func(s *SecurityState) {
		s.IsSessionActive = true
		s.IsSessionWarningShown = true
		s.SessionTimeRemaining = remaining
	})

	minutes := int(math.Ceil(remaining.Minutes()))
	id := p.raise(AlertWarning, "Session Expiring",
		fmt.Sprintf("Your session will expire in %d minute(s) due to inactivity.", minutes),
		[]AlertButton{
			{Label: "Continue Session", Action: func() { p.ExtendSession(context.Background()) }},
			{Label: "Logout", Action: func() { p.EndSession(context.Background()) }},
		})

	p.mu.Lock()
	p.warningAlertID = id
	p.mu.Unlock()
}

// onSessionExpired leaves RequirePasswordChange untouched.
func (p *Provider) onSessionExpired() {
	snap := p.session.Snapshot()
	ctx := context.Background()
	p.metrics.Inc(MetricSessionExpired)

	ev := p.newEvent(EventSessionTimeout, map[string]string{"session_id": snap.SessionID})
	p.dismissWarningAlert()
	p.update(func(s *SecurityState) {
		s.IsSessionActive = false
		s.SessionTimeRemaining = 0
		s.IsSessionWarningShown = false
		s.IsMFARequired = false
		s.LastSecurityEvent = &ev
	})
	p.forward(ctx, ev, snap.UserID)

	p.raise(AlertInfo, "Session Expired",
		"Your session has expired due to inactivity. Please log in again.",
		[]AlertButton{{Label: "OK"}})
}

func (p *Provider) dismissWarningAlert() {
	p.mu.Lock()
	id := p.warningAlertID
	p.warningAlertID = ""
	p.mu.Unlock()
	if id != "" {
		_ = p.DismissSecurityAlert(id)
	}
}
