package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/internal/clock"
	"github.com/MrEthical07/goGuard/kv"
)

type failingStore struct {
	kv.Store
	failGet bool
	failSet bool
}

var errBackendDown = errors.New("backend down")

func (s failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.failGet {
		return "", false, errBackendDown
	}
	return s.Store.Get(ctx, key)
}

func (s failingStore) Set(ctx context.Context, key, value string) error {
	if s.failSet {
		return errBackendDown
	}
	return s.Store.Set(ctx, key, value)
}

func newTestLedger(store kv.Store) (*LoginAttemptLedger, *clock.Fake) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	return NewLoginAttemptLedger(store, clk, LockoutConfig{MaxAttempts: 5, Duration: 30 * time.Minute}, nil, nil), clk
}

func TestIncrementCountsAndRecords(t *testing.T) {
	store := kv.NewMemoryStore()
	clk := clock.NewFake(time.Unix(1000, 0))
	var recorded []int
	l := NewLoginAttemptLedger(store, clk, LockoutConfig{MaxAttempts: 5, Duration: 30 * time.Minute},
		func(_ context.Context, id string, attempts int, at time.Time) {
			if id != "alice" {
				t.Errorf("unexpected identifier %q", id)
			}
			if !at.Equal(time.Unix(1000, 0)) {
				t.Errorf("unexpected timestamp %v", at)
			}
			recorded = append(recorded, attempts)
		}, nil)

	ctx := context.Background()
	for want := 1; want <= 3; want++ {
		got, err := l.Increment(ctx, "alice")
		if err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d attempts, got %d", want, got)
		}
	}
	if len(recorded) != 3 || recorded[2] != 3 {
		t.Fatalf("expected three recorded failures, got %v", recorded)
	}
	if l.Attempts(ctx, "bob") != 0 {
		t.Fatal("identifiers must not share counters")
	}
}

func TestLockAndExpiry(t *testing.T) {
	l, clk := newTestLedger(kv.NewMemoryStore())
	ctx := context.Background()

	if l.IsLocked(ctx, "alice") {
		t.Fatal("expected unlocked before Lock")
	}
	if _, err := l.Lock(ctx, "alice"); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if !l.IsLocked(ctx, "alice") {
		t.Fatal("expected locked after Lock")
	}
	if got := l.LockoutRemaining(ctx, "alice"); got != 30*time.Minute {
		t.Fatalf("expected 30m remaining, got %v", got)
	}

	clk.Advance(29 * time.Minute)
	if got := l.LockoutRemaining(ctx, "alice"); got != time.Minute {
		t.Fatalf("expected 1m remaining, got %v", got)
	}

	clk.Advance(time.Minute)
	if l.IsLocked(ctx, "alice") {
		t.Fatal("lockout must end exactly at the deadline")
	}
	if got := l.LockoutRemaining(ctx, "alice"); got != 0 {
		t.Fatalf("expected 0 remaining, got %v", got)
	}
}

func TestResetClearsCounterAndLockoutTogether(t *testing.T) {
	store := kv.NewMemoryStore()
	l, _ := newTestLedger(store)
	ctx := context.Background()

	_, _ = l.Increment(ctx, "alice")
	_, _ = l.Increment(ctx, "alice")
	_, _ = l.Lock(ctx, "alice")

	if err := l.Reset(ctx, "alice"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected both keys removed, %d remain", store.Len())
	}
	if l.Attempts(ctx, "alice") != 0 || l.IsLocked(ctx, "alice") {
		t.Fatal("expected clean ledger after reset")
	}
}

func TestReadFailureFailsOpen(t *testing.T) {
	inner := kv.NewMemoryStore()
	_ = inner.Set(context.Background(), lockoutKey("alice"), "99999999999999")
	_ = inner.Set(context.Background(), attemptsKey("alice"), "4")
	l, _ := newTestLedger(failingStore{Store: inner, failGet: true})
	ctx := context.Background()

	if l.Attempts(ctx, "alice") != 0 {
		t.Fatal("failed read must count as zero attempts")
	}
	if l.IsLocked(ctx, "alice") {
		t.Fatal("failed read must count as unlocked")
	}
}

func TestWriteFailureIsReported(t *testing.T) {
	l, _ := newTestLedger(failingStore{Store: kv.NewMemoryStore(), failSet: true})

	if _, err := l.Increment(context.Background(), "alice"); !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}
	if _, err := l.Lock(context.Background(), "alice"); !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}
}

func TestCorruptCounterReadsAsZero(t *testing.T) {
	store := kv.NewMemoryStore()
	_ = store.Set(context.Background(), attemptsKey("alice"), "not-a-number")
	l, _ := newTestLedger(store)

	got, err := l.Increment(context.Background(), "alice")
	if err != nil || got != 1 {
		t.Fatalf("expected recovery to 1 attempt, got %d err=%v", got, err)
	}
}
