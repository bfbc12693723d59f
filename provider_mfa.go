package goGuard

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/internal/mfa"
)

// BeginMFASetup provisions a TOTP secret for account and enters the setup
// step. Any previous secret is replaced.
func (p *Provider) BeginMFASetup(ctx context.Context, account string) (MFAEnrollment, error) {
	if p.isClosed() {
		return MFAEnrollment{}, ErrProviderClosed
	}
	enr, err := p.mfa.BeginTOTP(ctx, account)
	if err != nil {
		return MFAEnrollment{}, mapMFAError(err)
	}
	p.setMFAStep(MFAStepSetup)
	return enr, nil
}

// ContinueMFASetup moves from setup to verify once the secret is scanned.
func (p *Provider) ContinueMFASetup() error {
	if p.State().MFAStep != MFAStepSetup {
		return ErrInvalidStep
	}
	p.setMFAStep(MFAStepVerify)
	return nil
}

// VerifyMFASetup checks the first code from the new factor. On success it
// generates the backup-code pool, enters the backup step and returns the
// codes for display.
func (p *Provider) VerifyMFASetup(ctx context.Context, code string) ([]string, error) {
	if p.State().MFAStep != MFAStepVerify {
		return nil, ErrInvalidStep
	}
	ok, err := p.checkLimitedCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMFACodeInvalid
	}

	codes, err := p.mfa.GenerateBackupCodes(ctx, p.config.MFA.BackupCodeCount)
	if err != nil {
		return nil, mapMFAError(err)
	}
	p.update(func(s *SecurityState) {
		s.MFAStep = MFAStepBackup
		s.BackupCodesRemaining = len(codes)
	})
	return codes, nil
}

// CompleteMFASetup enables MFA. It is only valid after backup codes have
// been generated in VerifyMFASetup.
func (p *Provider) CompleteMFASetup(ctx context.Context) error {
	if p.State().MFAStep != MFAStepBackup {
		return ErrInvalidStep
	}
	if err := p.mfa.SetEnabled(ctx, true); err != nil {
		return mapMFAError(err)
	}
	p.metrics.Inc(MetricMFAEnabled)

	ev := p.newEvent(EventMFASetup, map[string]string{"enabled": "true"})
	p.update(func(s *SecurityState) {
		s.IsMFAEnabled = true
		s.MFAStep = MFAStepNone
		s.LastSecurityEvent = &ev
	})
	p.forward(ctx, ev, p.currentUserID())
	return nil
}

// CancelMFASetup abandons an unfinished enrollment.
func (p *Provider) CancelMFASetup() {
	p.setMFAStep(MFAStepNone)
}

// DisableMFA clears the flag, the secret and the backup-code pool.
func (p *Provider) DisableMFA(ctx context.Context) error {
	if p.isClosed() {
		return ErrProviderClosed
	}
	if err := p.mfa.Clear(ctx); err != nil {
		return mapMFAError(err)
	}
	p.metrics.Inc(MetricMFADisabled)

	ev := p.newEvent(EventMFASetup, map[string]string{"enabled": "false"})
	p.update(func(s *SecurityState) {
		s.IsMFAEnabled = false
		s.IsMFARequired = false
		s.MFAStep = MFAStepNone
		s.BackupCodesRemaining = 0
		s.LastSecurityEvent = &ev
	})
	p.forward(ctx, ev, p.currentUserID())
	return nil
}

// VerifyMFACode checks a login-time code and clears IsMFARequired on success.
func (p *Provider) VerifyMFACode(ctx context.Context, code string) (bool, error) {
	if p.isClosed() {
		return false, ErrProviderClosed
	}
	ok, err := p.checkLimitedCode(ctx, code)
	if err != nil {
		return false, err
	}
	if !ok {
		p.audit.LogFailedAuth(ctx, p.currentUserID(), "invalid mfa code")
		return false, nil
	}
	p.update(func(s *SecurityState) {
		s.IsMFARequired = false
	})
	return true, nil
}

// UseBackupCode consumes code from the pool. A code validates at most once.
func (p *Provider) UseBackupCode(ctx context.Context, code string) (bool, error) {
	if p.isClosed() {
		return false, ErrProviderClosed
	}
	if err := p.codes.Check(ctx, limiters.ChannelBackup); err != nil {
		return false, mapLimiterError(err)
	}
	ok, err := p.mfa.UseBackupCode(ctx, code)
	if err != nil {
		return false, mapMFAError(err)
	}
	if !ok {
		p.metrics.Inc(MetricBackupCodeFailed)
		p.audit.LogFailedAuth(ctx, p.currentUserID(), "invalid backup code")
		if err := p.codes.RecordFailure(ctx, limiters.ChannelBackup); err != nil && !errors.Is(err, limiters.ErrCodeRateLimited) {
			p.warn("backup code limiter write failed", err)
		}
		return false, nil
	}
	p.metrics.Inc(MetricBackupCodeUsed)
	p.resetCodes(ctx, limiters.ChannelBackup)

	left := p.backupCodesLeft(ctx)
	p.update(func(s *SecurityState) {
		s.IsMFARequired = false
		s.BackupCodesRemaining = left
	})
	if left == 0 {
		p.raise(AlertWarning, "Backup Codes Used",
			"You have used all of your backup codes. Generate a new set to keep account recovery available.", nil)
	}
	return true, nil
}

// RegenerateBackupCodes replaces the pool; every earlier code stops working.
func (p *Provider) RegenerateBackupCodes(ctx context.Context) ([]string, error) {
	if p.isClosed() {
		return nil, ErrProviderClosed
	}
	if !p.State().IsMFAEnabled {
		return nil, ErrMFANotEnabled
	}
	codes, err := p.mfa.GenerateBackupCodes(ctx, p.config.MFA.BackupCodeCount)
	if err != nil {
		return nil, mapMFAError(err)
	}
	p.metrics.Inc(MetricBackupCodeRegenerated)
	p.update(func(s *SecurityState) {
		s.BackupCodesRemaining = len(codes)
	})
	return codes, nil
}

// checkLimitedCode runs checkCode behind the TOTP channel limiter and keeps
// the success and failure counters.
func (p *Provider) checkLimitedCode(ctx context.Context, code string) (bool, error) {
	if err := p.codes.Check(ctx, limiters.ChannelTOTP); err != nil {
		return false, mapLimiterError(err)
	}
	ok, err := p.checkCode(ctx, code)
	if err != nil {
		return false, err
	}
	if !ok {
		p.metrics.Inc(MetricMFAFailure)
		if err := p.codes.RecordFailure(ctx, limiters.ChannelTOTP); err != nil && !errors.Is(err, limiters.ErrCodeRateLimited) {
			p.warn("mfa code limiter write failed", err)
		}
		return false, nil
	}
	p.metrics.Inc(MetricMFASuccess)
	p.resetCodes(ctx, limiters.ChannelTOTP)
	return true, nil
}

func (p *Provider) resetCodes(ctx context.Context, ch limiters.Channel) {
	if err := p.codes.Reset(ctx, ch); err != nil {
		p.metrics.Inc(MetricStoreFailure)
		p.warn("code limiter reset failed", err)
	}
}

// checkCode routes to the external verifier when one is configured.
func (p *Provider) checkCode(ctx context.Context, code string) (bool, error) {
	if p.verifier != nil {
		ok, err := p.verifier.Verify(ctx, code)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
		}
		return ok, nil
	}
	ok, err := p.mfa.VerifyTOTP(ctx, code, p.clock.Now())
	if err != nil {
		return false, mapMFAError(err)
	}
	return ok, nil
}

func (p *Provider) backupCodesLeft(ctx context.Context) int {
	codes, err := p.mfa.BackupCodes(ctx)
	if err != nil {
		p.warn("backup code read failed", err)
		return 0
	}
	return len(codes)
}

func (p *Provider) setMFAStep(step MFAStep) {
	p.update(func(s *SecurityState) {
		s.MFAStep = step
	})
}

func mapLimiterError(err error) error {
	if errors.Is(err, limiters.ErrCodeRateLimited) {
		return ErrMFARateLimited
	}
	return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
}

func mapMFAError(err error) error {
	switch {
	case errors.Is(err, mfa.ErrNotEnrolled):
		return ErrMFANotEnrolled
	case errors.Is(err, mfa.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	default:
		return err
	}
}
