package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/goGuard/kv"
)

const (
	SecurityEventsKey = "security_events_log"
	FailedAttemptsKey = "failed_attempts_log"

	DefaultSecurityEventsCap = 500
	DefaultFailedAttemptsCap = 100
)

// MirrorEntry is one line of the on-device mirror log.
type MirrorEntry struct {
	Type       string            `json:"type"`
	Identifier string            `json:"identifier,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Details    map[string]string `json:"details,omitempty"`
}

// Mirror keeps the most recent security events and failed attempts in the
// local store as JSON arrays, oldest first.
type Mirror struct {
	store     kv.Store
	eventsCap int
	failedCap int
	mu        sync.Mutex
}

// NewMirror returns a Mirror. Non-positive caps use the defaults.
func NewMirror(store kv.Store, eventsCap, failedCap int) *Mirror {
	if eventsCap <= 0 {
		eventsCap = DefaultSecurityEventsCap
	}
	if failedCap <= 0 {
		failedCap = DefaultFailedAttemptsCap
	}
	return &Mirror{store: store, eventsCap: eventsCap, failedCap: failedCap}
}

// RecordSecurityEvent appends e to security_events_log.
func (m *Mirror) RecordSecurityEvent(ctx context.Context, e MirrorEntry) error {
	return m.append(ctx, SecurityEventsKey, m.eventsCap, e)
}

// RecordFailedAttempt appends e to failed_attempts_log.
func (m *Mirror) RecordFailedAttempt(ctx context.Context, e MirrorEntry) error {
	return m.append(ctx, FailedAttemptsKey, m.failedCap, e)
}

func (m *Mirror) SecurityEvents(ctx context.Context) ([]MirrorEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read(ctx, SecurityEventsKey)
}

func (m *Mirror) FailedAttempts(ctx context.Context) ([]MirrorEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read(ctx, FailedAttemptsKey)
}

// Clear removes both logs.
func (m *Mirror) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.MultiRemove(ctx, SecurityEventsKey, FailedAttemptsKey)
}

func (m *Mirror) append(ctx context.Context, key string, limit int, e MirrorEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.read(ctx, key)
	if err != nil {
		var decodeErr *mirrorDecodeError
		if !errors.As(err, &decodeErr) {
			return fmt.Errorf("mirror %s: %w", key, err)
		}
		// A corrupt log restarts from empty.
		entries = nil
	}
	entries = append(entries, e)
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("mirror %s: %w", key, err)
	}
	return nil
}

func (m *Mirror) read(ctx context.Context, key string) ([]MirrorEntry, error) {
	raw, ok, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var entries []MirrorEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, &mirrorDecodeError{key: key, err: err}
	}
	return entries, nil
}

type mirrorDecodeError struct {
	key string
	err error
}

func (e *mirrorDecodeError) Error() string { return "mirror " + e.key + " corrupt: " + e.err.Error() }
func (e *mirrorDecodeError) Unwrap() error { return e.err }
