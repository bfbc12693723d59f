package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/internal/clock"
	"github.com/MrEthical07/goGuard/kv"
)

func newTestCodeLimiter(store kv.Store) (*CodeLimiter, *clock.Fake) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	return NewCodeLimiter(store, clk, CodeLimiterConfig{MaxAttempts: 3, Cooldown: time.Minute}), clk
}

func TestCodeLimiterBlocksAfterMax(t *testing.T) {
	l, _ := newTestCodeLimiter(kv.NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.RecordFailure(ctx, ChannelTOTP); err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
	}
	if err := l.Check(ctx, ChannelTOTP); err != nil {
		t.Fatalf("expected allowed below max, got %v", err)
	}
	if err := l.RecordFailure(ctx, ChannelTOTP); !errors.Is(err, ErrCodeRateLimited) {
		t.Fatalf("expected ErrCodeRateLimited on the third failure, got %v", err)
	}
	if err := l.Check(ctx, ChannelTOTP); !errors.Is(err, ErrCodeRateLimited) {
		t.Fatalf("expected limited, got %v", err)
	}
	if err := l.Check(ctx, ChannelBackup); err != nil {
		t.Fatalf("channels must be independent, got %v", err)
	}
}

func TestCodeLimiterWindowElapses(t *testing.T) {
	l, clk := newTestCodeLimiter(kv.NewMemoryStore())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = l.RecordFailure(ctx, ChannelBackup)
	}
	clk.Advance(59 * time.Second)
	if err := l.Check(ctx, ChannelBackup); !errors.Is(err, ErrCodeRateLimited) {
		t.Fatalf("expected limited inside the window, got %v", err)
	}
	clk.Advance(time.Second)
	if err := l.Check(ctx, ChannelBackup); err != nil {
		t.Fatalf("expected window to elapse, got %v", err)
	}
	if err := l.RecordFailure(ctx, ChannelBackup); err != nil {
		t.Fatalf("a new window starts at one failure, got %v", err)
	}
}

func TestCodeLimiterReset(t *testing.T) {
	l, _ := newTestCodeLimiter(kv.NewMemoryStore())
	ctx := context.Background()

	_ = l.RecordFailure(ctx, ChannelTOTP)
	_ = l.RecordFailure(ctx, ChannelTOTP)
	if err := l.Reset(ctx, ChannelTOTP); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	_ = l.RecordFailure(ctx, ChannelTOTP)
	if err := l.Check(ctx, ChannelTOTP); err != nil {
		t.Fatalf("expected counter restarted, got %v", err)
	}
}

func TestCodeLimiterStoreFailure(t *testing.T) {
	l, _ := newTestCodeLimiter(failingStore{Store: kv.NewMemoryStore(), failGet: true})
	if err := l.Check(context.Background(), ChannelTOTP); !errors.Is(err, ErrCodeUnavailable) {
		t.Fatalf("expected ErrCodeUnavailable, got %v", err)
	}
}

func TestCodeLimiterNilSafe(t *testing.T) {
	var l *CodeLimiter
	if err := l.Check(context.Background(), ChannelTOTP); err != nil {
		t.Fatalf("nil limiter must allow, got %v", err)
	}
}
