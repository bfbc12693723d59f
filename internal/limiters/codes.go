package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/internal/clock"
	"github.com/MrEthical07/goGuard/kv"
)

const (
	defaultCodeMaxAttempts = 5
	defaultCodeCooldown    = time.Minute

	codeAttemptsKeyPrefix = "code_attempts_"
)

// Channel names the kind of secret being guessed.
type Channel string

const (
	ChannelTOTP      Channel = "totp"
	ChannelBackup    Channel = "backup"
	ChannelQuestions Channel = "questions"
)

var (
	ErrCodeRateLimited = errors.New("one-time code rate limited")
	ErrCodeUnavailable = errors.New("one-time code limiter unavailable")
)

// CodeLimiterConfig holds the thresholds for one-time code guessing.
type CodeLimiterConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// CodeLimiter caps wrong one-time codes per channel inside a cooldown
// window. The window opens on the first failure and is not extended by
// later ones.
type CodeLimiter struct {
	store       kv.Store
	clock       clock.Clock
	maxAttempts int
	cooldown    time.Duration
}

// NewCodeLimiter creates a limiter. Zero-value fields in cfg fall back to
// 5 attempts per minute.
func NewCodeLimiter(store kv.Store, clk clock.Clock, cfg CodeLimiterConfig) *CodeLimiter {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultCodeMaxAttempts
	}
	cd := cfg.Cooldown
	if cd <= 0 {
		cd = defaultCodeCooldown
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &CodeLimiter{store: store, clock: clk, maxAttempts: max, cooldown: cd}
}

func codeKey(ch Channel) string { return codeAttemptsKeyPrefix + string(ch) }

// Check returns ErrCodeRateLimited while the channel's window is exhausted.
func (l *CodeLimiter) Check(ctx context.Context, ch Channel) error {
	if l == nil {
		return nil
	}
	count, _, err := l.window(ctx, ch)
	if err != nil {
		return err
	}
	if count >= l.maxAttempts {
		return ErrCodeRateLimited
	}
	return nil
}

// RecordFailure counts one wrong code. It returns ErrCodeRateLimited when
// this failure exhausts the window.
func (l *CodeLimiter) RecordFailure(ctx context.Context, ch Channel) error {
	if l == nil {
		return nil
	}
	count, start, err := l.window(ctx, ch)
	if err != nil {
		return err
	}
	if count == 0 {
		start = l.clock.Now()
	}
	count++
	value := strconv.Itoa(count) + "|" + strconv.FormatInt(start.UnixMilli(), 10)
	if err := l.store.Set(ctx, codeKey(ch), value); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
	}
	if count >= l.maxAttempts {
		return ErrCodeRateLimited
	}
	return nil
}

// Reset clears the channel after an accepted code.
func (l *CodeLimiter) Reset(ctx context.Context, ch Channel) error {
	if l == nil {
		return nil
	}
	if err := l.store.Remove(ctx, codeKey(ch)); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
	}
	return nil
}

// window returns the live failure count and window start. An elapsed or
// unreadable entry reads as an empty window.
func (l *CodeLimiter) window(ctx context.Context, ch Channel) (int, time.Time, error) {
	raw, ok, err := l.store.Get(ctx, codeKey(ch))
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
	}
	if !ok {
		return 0, time.Time{}, nil
	}
	countPart, startPart, found := strings.Cut(raw, "|")
	if !found {
		return 0, time.Time{}, nil
	}
	count, err1 := strconv.Atoi(countPart)
	ms, err2 := strconv.ParseInt(startPart, 10, 64)
	if err1 != nil || err2 != nil || count < 0 {
		return 0, time.Time{}, nil
	}
	start := time.UnixMilli(ms)
	if !l.clock.Now().Before(start.Add(l.cooldown)) {
		return 0, time.Time{}, nil
	}
	return count, start, nil
}
