package goGuard

import (
	"context"
	"time"
)

// ValidatePHIAccess is the single check every read of protected health data
// must pass. Access is granted only when currentUserID is non-empty and
// equals requestedUserID. Every call is audited whatever the outcome; a
// denial is never surfaced as an alert.
func (p *Provider) ValidatePHIAccess(ctx context.Context, currentUserID, requestedUserID, resourceType string) AccessDecision {
	start := time.Now()
	d := p.gate.Validate(ctx, currentUserID, requestedUserID, resourceType)
	if p.metrics.LatencyEnabled() {
		p.metrics.Observe(MetricPHIGateLatency, time.Since(start))
	}
	return d
}

// observeAccess is the gate's decision hook.
func (p *Provider) observeAccess(d AccessDecision) {
	if d.Granted {
		p.metrics.Inc(MetricPHIGranted)
		return
	}
	p.metrics.Inc(MetricPHIDenied)
}
