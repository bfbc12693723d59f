package goGuard

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/password"
)

// HandleLoginAttempt applies the lockout policy to one credential check made
// elsewhere. success reports whether the password was correct.
//
// A locked identifier is refused without touching the ledger. A failure
// increments the counter and locks once it reaches Lockout.MaxAttempts. A
// success resets counter and lockout together.
func (p *Provider) HandleLoginAttempt(ctx context.Context, identifier string, success bool) (LoginOutcome, error) {
	if p.isClosed() {
		return LoginOutcome{}, ErrProviderClosed
	}
	if identifier == "" {
		return LoginOutcome{}, ErrIdentifierRequired
	}

	if p.ledger.IsLocked(ctx, identifier) {
		return p.rejectLocked(ctx, identifier), nil
	}
	if success {
		return p.loginSucceeded(ctx, identifier), nil
	}
	return p.loginFailed(ctx, identifier), nil
}

func (p *Provider) rejectLocked(ctx context.Context, identifier string) LoginOutcome {
	remaining := p.ledger.LockoutRemaining(ctx, identifier)
	attempts := p.ledger.Attempts(ctx, identifier)
	p.metrics.Inc(MetricLoginRejectedLocked)

	p.update(func(s *SecurityState) {
		s.LoginAttempts = attempts
		s.IsAccountLocked = true
		s.LockoutTimeRemaining = remaining
	})
	p.raise(AlertError, "Account Locked", lockoutMessage(remaining), []AlertButton{{Label: "OK"}})

	return LoginOutcome{
		Status:           LoginLocked,
		Attempts:         attempts,
		LockoutRemaining: remaining,
	}
}

func (p *Provider) loginSucceeded(ctx context.Context, identifier string) LoginOutcome {
	if err := p.ledger.Reset(ctx, identifier); err != nil {
		p.metrics.Inc(MetricStoreFailure)
		p.warn("login attempt reset failed", err)
	}
	p.metrics.Inc(MetricLoginSuccess)

	mfaRequired := p.State().IsMFAEnabled
	ev := p.newEvent(EventLogin, map[string]string{"identifier": identifier})
	p.update(func(s *SecurityState) {
		s.LoginAttempts = 0
		s.IsAccountLocked = false
		s.LockoutTimeRemaining = 0
		s.IsMFARequired = mfaRequired
		s.LastSecurityEvent = &ev
	})
	p.forward(ctx, ev, identifier)

	return LoginOutcome{
		Status:            LoginSucceeded,
		RemainingAttempts: p.config.Lockout.MaxAttempts,
		MFARequired:       mfaRequired,
	}
}

func (p *Provider) loginFailed(ctx context.Context, identifier string) LoginOutcome {
	attempts, err := p.ledger.Increment(ctx, identifier)
	if err != nil {
		p.metrics.Inc(MetricStoreFailure)
		p.warn("login attempt write failed", err)
	}
	p.metrics.Inc(MetricLoginFailure)

	limit := p.config.Lockout.MaxAttempts
	if attempts < limit {
		p.update(func(s *SecurityState) {
			s.LoginAttempts = attempts
		})
		return LoginOutcome{
			Status:            LoginFailed,
			Attempts:          attempts,
			RemainingAttempts: limit - attempts,
		}
	}

	if _, err := p.ledger.Lock(ctx, identifier); err != nil {
		p.metrics.Inc(MetricStoreFailure)
		p.warn("lockout write failed", err)
	}
	p.metrics.Inc(MetricAccountLocked)

	remaining := p.config.Lockout.Duration
	ev := p.newEvent(EventLockout, map[string]string{
		"identifier": identifier,
		"attempts":   strconv.Itoa(attempts),
	})
	p.update(func(s *SecurityState) {
		s.LoginAttempts = attempts
		s.IsAccountLocked = true
		s.LockoutTimeRemaining = remaining
		s.LastSecurityEvent = &ev
	})
	p.forward(ctx, ev, identifier)
	p.raise(AlertError, "Account Locked", lockoutMessage(remaining), []AlertButton{{Label: "OK"}})

	return LoginOutcome{
		Status:           LoginLocked,
		Attempts:         attempts,
		LockoutRemaining: remaining,
	}
}

// RefreshLockout recomputes the lockout fields for identifier, clearing them
// once the lockout has elapsed.
func (p *Provider) RefreshLockout(ctx context.Context, identifier string) {
	locked := p.ledger.IsLocked(ctx, identifier)
	remaining := p.ledger.LockoutRemaining(ctx, identifier)
	attempts := p.ledger.Attempts(ctx, identifier)
	p.update(func(s *SecurityState) {
		s.IsAccountLocked = locked
		s.LockoutTimeRemaining = remaining
		s.LoginAttempts = attempts
	})
}

// lockoutMessage rounds the remaining time up to whole minutes.
func lockoutMessage(remaining time.Duration) string {
	minutes := int(math.Ceil(remaining.Minutes()))
	return fmt.Sprintf("Too many failed login attempts. Please try again in %d minute(s).", minutes)
}

/*
====================================
PASSWORD
====================================
*/

// ValidatePassword checks pw against the configured policy. Violations are
// also surfaced as one alert.
func (p *Provider) ValidatePassword(pw string) PasswordResult {
	res := p.policy.ValidateComplexity(pw)
	if !res.Valid {
		p.metrics.Inc(MetricPasswordRejected)
		p.raise(AlertError, "Password Requirements", strings.Join(res.Errors, "\n"), []AlertButton{{Label: "OK"}})
	}
	return res
}

// ChangePassword validates pw and, when it passes, records the change and
// clears RequirePasswordChange. Storing the credential belongs to the
// backend; the returned error wraps ErrPasswordPolicy on violation.
func (p *Provider) ChangePassword(ctx context.Context, pw string) error {
	if p.isClosed() {
		return ErrProviderClosed
	}
	res := p.ValidatePassword(pw)
	if !res.Valid {
		return fmt.Errorf("%w: %s", ErrPasswordPolicy, strings.Join(res.Errors, "; "))
	}
	p.metrics.Inc(MetricPasswordChanged)

	ev := p.newEvent(EventPasswordChange, nil)
	p.update(func(s *SecurityState) {
		s.RequirePasswordChange = false
		s.LastSecurityEvent = &ev
	})
	p.forward(ctx, ev, p.currentUserID())
	return nil
}

// SetRequirePasswordChange flags that the user must choose a new password.
func (p *Provider) SetRequirePasswordChange(required bool) {
	p.update(func(s *SecurityState) {
		s.RequirePasswordChange = required
	})
}

// PasswordPolicy returns the configured validator.
func (p *Provider) PasswordPolicy() password.Policy {
	return p.policy
}
