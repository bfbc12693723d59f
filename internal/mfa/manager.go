package mfa

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/MrEthical07/goGuard/kv"
)

const (
	// BackupCodeAlphabet is the character set of generated backup codes.
	BackupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// BackupCodeLength is the number of characters per backup code.
	BackupCodeLength = 6
	// DefaultBackupCodeCount is the pool size produced by GenerateBackupCodes.
	DefaultBackupCodeCount = 10

	enabledKey     = "mfa_enabled"
	backupCodesKey = "backup_codes"
	totpSecretKey  = "mfa_totp_secret"
)

var (
	// ErrUnavailable indicates a store failure while reading or writing MFA state.
	ErrUnavailable = errors.New("mfa store unavailable")
	// ErrNotEnrolled indicates no TOTP secret has been provisioned.
	ErrNotEnrolled = errors.New("mfa not enrolled")
)

// Manager owns the MFA flag, the one-time backup-code pool and the TOTP secret.
type Manager struct {
	store  kv.Store
	secure kv.SecureStore
	totp   TOTPConfig
	logger *slog.Logger

	randomIndex func(int) (int, error)

	// mu serializes read-modify-write of the backup-code pool.
	mu sync.Mutex
}

// NewManager returns a Manager. The flag lives in store; codes and secret in secure.
func NewManager(store kv.Store, secure kv.SecureStore, totp TOTPConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, secure: secure, totp: totp.withDefaults(), logger: logger, randomIndex: cryptoRandomIndex}
}

// Enabled reports the persisted MFA flag. Read failures report false with an error.
func (m *Manager) Enabled(ctx context.Context) (bool, error) {
	v, ok, err := m.store.Get(ctx, enabledKey)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok && v == "true", nil
}

// SetEnabled persists the MFA flag.
func (m *Manager) SetEnabled(ctx context.Context, enabled bool) error {
	v := "false"
	if enabled {
		v = "true"
	}
	if err := m.store.Set(ctx, enabledKey, v); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// GenerateBackupCodes replaces the pool with count fresh codes. count <= 0
// uses DefaultBackupCodeCount. Previously issued codes stop validating.
func (m *Manager) GenerateBackupCodes(ctx context.Context, count int) ([]string, error) {
	if count <= 0 {
		count = DefaultBackupCodeCount
	}

	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := NewBackupCode(BackupCodeLength, m.randomIndex)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeCodes(ctx, codes); err != nil {
		return nil, err
	}
	out := make([]string, len(codes))
	copy(out, codes)
	return out, nil
}

// BackupCodes returns the unused pool.
func (m *Manager) BackupCodes(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readCodes(ctx)
}

// UseBackupCode consumes code if it is in the pool. Matching ignores case and
// surrounding whitespace. A code validates at most once.
func (m *Manager) UseBackupCode(ctx context.Context, code string) (bool, error) {
	canonical := CanonicalizeBackupCode(code)
	if canonical == "" {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	codes, err := m.readCodes(ctx)
	if err != nil {
		return false, err
	}
	idx := -1
	for i, c := range codes {
		if c == canonical {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	remaining := make([]string, 0, len(codes)-1)
	remaining = append(remaining, codes[:idx]...)
	remaining = append(remaining, codes[idx+1:]...)
	if err := m.writeCodes(ctx, remaining); err != nil {
		return false, err
	}
	return true, nil
}

// Clear removes the flag, the pool and the TOTP secret.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if err := m.store.Remove(ctx, enabledKey); err != nil {
		errs = append(errs, err)
	}
	if err := m.secure.Remove(ctx, backupCodesKey); err != nil {
		errs = append(errs, err)
	}
	if err := m.secure.Remove(ctx, totpSecretKey); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrUnavailable, errors.Join(errs...))
	}
	return nil
}

func (m *Manager) readCodes(ctx context.Context) ([]string, error) {
	raw, ok, err := m.secure.Get(ctx, backupCodesKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok || raw == "" {
		return []string{}, nil
	}
	var codes []string
	if err := json.Unmarshal([]byte(raw), &codes); err != nil {
		return nil, fmt.Errorf("%w: corrupt backup code pool", ErrUnavailable)
	}
	return codes, nil
}

func (m *Manager) writeCodes(ctx context.Context, codes []string) error {
	data, err := json.Marshal(codes)
	if err != nil {
		return err
	}
	if err := m.secure.Set(ctx, backupCodesKey, string(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// NewBackupCode draws length characters from BackupCodeAlphabet.
func NewBackupCode(length int, randomIndex func(int) (int, error)) (string, error) {
	if randomIndex == nil {
		randomIndex = cryptoRandomIndex
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := randomIndex(len(BackupCodeAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(BackupCodeAlphabet[n])
	}
	return b.String(), nil
}

// CanonicalizeBackupCode upper-cases and trims a user-entered code.
func CanonicalizeBackupCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func cryptoRandomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
