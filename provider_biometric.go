package goGuard

import (
	"context"
	"fmt"
)

const enableBiometricPrompt = "Confirm to enable biometric login"

// EnableBiometric confirms the user on the sensor once and persists the
// opt-in.
func (p *Provider) EnableBiometric(ctx context.Context) error {
	if p.isClosed() {
		return ErrProviderClosed
	}
	kind := p.biometricCapability(ctx)
	if kind == BiometricNone {
		return ErrBiometricUnavailable
	}
	ok, err := p.biometric.Authenticate(ctx, enableBiometricPrompt)
	if err != nil {
		p.metrics.Inc(MetricBiometricFailure)
		return fmt.Errorf("%w: %v", ErrBiometricUnavailable, err)
	}
	if !ok {
		p.metrics.Inc(MetricBiometricFailure)
		return ErrBiometricRejected
	}
	if err := p.store.Set(ctx, biometricEnabledKey, "true"); err != nil {
		return fmt.Errorf("persist biometric flag: %w", err)
	}
	p.metrics.Inc(MetricBiometricEnabled)

	ev := p.newEvent(EventBiometricSetup, map[string]string{
		"enabled": "true",
		"type":    kind.String(),
	})
	p.update(func(s *SecurityState) {
		s.IsBiometricAvailable = true
		s.IsBiometricEnabled = true
		s.BiometricType = kind
		s.LastSecurityEvent = &ev
	})
	p.forward(ctx, ev, p.currentUserID())
	return nil
}

// DisableBiometric removes the opt-in.
func (p *Provider) DisableBiometric(ctx context.Context) error {
	if p.isClosed() {
		return ErrProviderClosed
	}
	if err := p.store.Remove(ctx, biometricEnabledKey); err != nil {
		return fmt.Errorf("remove biometric flag: %w", err)
	}
	ev := p.newEvent(EventBiometricSetup, map[string]string{"enabled": "false"})
	p.update(func(s *SecurityState) {
		s.IsBiometricEnabled = false
		s.LastSecurityEvent = &ev
	})
	p.forward(ctx, ev, p.currentUserID())
	return nil
}

// AuthenticateBiometric asks the sensor to confirm the user. It requires a
// prior EnableBiometric.
func (p *Provider) AuthenticateBiometric(ctx context.Context, prompt string) (bool, error) {
	st := p.State()
	if !st.IsBiometricAvailable || p.biometric == nil {
		return false, ErrBiometricUnavailable
	}
	if !st.IsBiometricEnabled {
		return false, ErrBiometricRejected
	}
	ok, err := p.biometric.Authenticate(ctx, prompt)
	if err != nil {
		p.metrics.Inc(MetricBiometricFailure)
		return false, fmt.Errorf("%w: %v", ErrBiometricUnavailable, err)
	}
	if !ok {
		p.metrics.Inc(MetricBiometricFailure)
		p.audit.LogFailedAuth(ctx, p.currentUserID(), "biometric rejected")
	}
	return ok, nil
}

// biometricCapability treats sensor errors as no sensor.
func (p *Provider) biometricCapability(ctx context.Context) BiometricType {
	if p.biometric == nil {
		return BiometricNone
	}
	kind, err := p.biometric.Capability(ctx)
	if err != nil {
		p.warn("biometric capability check failed", err)
		return BiometricNone
	}
	return kind
}
