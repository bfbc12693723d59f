package limiters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/MrEthical07/goGuard/internal/clock"
	"github.com/MrEthical07/goGuard/kv"
)

const (
	attemptsKeyPrefix = "login_attempts_"
	lockoutKeyPrefix  = "lockout_until_"
)

// LockoutConfig holds the lockout policy for the ledger.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
}

var (
	// ErrLedgerUnavailable indicates the ledger could not persist a change.
	ErrLedgerUnavailable = errors.New("login attempt ledger unavailable")
)

// AttemptRecorder receives one record per failed attempt.
type AttemptRecorder func(ctx context.Context, identifier string, attempts int, at time.Time)

// LoginAttemptLedger keeps per-identifier failure counters and lockout
// deadlines in a kv.Store. Reads that fail are treated as absence.
type LoginAttemptLedger struct {
	store    kv.Store
	clock    clock.Clock
	config   LockoutConfig
	recorder AttemptRecorder
	logger   *slog.Logger
}

// NewLoginAttemptLedger creates a ledger. recorder may be nil.
func NewLoginAttemptLedger(store kv.Store, clk clock.Clock, cfg LockoutConfig, recorder AttemptRecorder, logger *slog.Logger) *LoginAttemptLedger {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginAttemptLedger{store: store, clock: clk, config: cfg, recorder: recorder, logger: logger}
}

func attemptsKey(id string) string { return attemptsKeyPrefix + id }
func lockoutKey(id string) string  { return lockoutKeyPrefix + id }

// Config returns the ledger policy.
func (l *LoginAttemptLedger) Config() LockoutConfig {
	return l.config
}

// Attempts returns the current failure count for identifier.
func (l *LoginAttemptLedger) Attempts(ctx context.Context, identifier string) int {
	raw, ok, err := l.store.Get(ctx, attemptsKey(identifier))
	if err != nil {
		l.logger.Warn("login attempt read failed, treating as zero",
			slog.String("identifier", identifier),
			slog.String("error", err.Error()))
		return 0
	}
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Increment adds one failure for identifier and returns the new count.
func (l *LoginAttemptLedger) Increment(ctx context.Context, identifier string) (int, error) {
	next := l.Attempts(ctx, identifier) + 1
	if err := l.store.Set(ctx, attemptsKey(identifier), strconv.Itoa(next)); err != nil {
		return next, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	if l.recorder != nil {
		l.recorder(ctx, identifier, next, l.clock.Now())
	}
	return next, nil
}

// Reset clears the counter and the lockout deadline together.
func (l *LoginAttemptLedger) Reset(ctx context.Context, identifier string) error {
	if err := l.store.MultiRemove(ctx, attemptsKey(identifier), lockoutKey(identifier)); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return nil
}

// Lock writes lockoutUntil = now + Duration and returns the deadline.
func (l *LoginAttemptLedger) Lock(ctx context.Context, identifier string) (time.Time, error) {
	until := l.clock.Now().Add(l.config.Duration)
	if err := l.store.Set(ctx, lockoutKey(identifier), strconv.FormatInt(until.UnixMilli(), 10)); err != nil {
		return until, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return until, nil
}

// IsLocked reports whether a lockout entry exists and has not elapsed.
func (l *LoginAttemptLedger) IsLocked(ctx context.Context, identifier string) bool {
	until, ok := l.lockoutUntil(ctx, identifier)
	return ok && l.clock.Now().Before(until)
}

// LockoutRemaining returns max(0, lockoutUntil - now).
func (l *LoginAttemptLedger) LockoutRemaining(ctx context.Context, identifier string) time.Duration {
	until, ok := l.lockoutUntil(ctx, identifier)
	if !ok {
		return 0
	}
	remaining := until.Sub(l.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (l *LoginAttemptLedger) lockoutUntil(ctx context.Context, identifier string) (time.Time, bool) {
	raw, ok, err := l.store.Get(ctx, lockoutKey(identifier))
	if err != nil {
		l.logger.Warn("lockout read failed, treating as unlocked",
			slog.String("identifier", identifier),
			slog.String("error", err.Error()))
		return time.Time{}, false
	}
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
