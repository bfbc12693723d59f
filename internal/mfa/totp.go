package mfa

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	totpSecretBytes = 20
	lastCounterKey  = "mfa_totp_last_counter"
)

// TOTPConfig configures the RFC 6238 live channel.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	Skew      int
	// EnforceReplayProtection rejects a code whose time step was already accepted.
	EnforceReplayProtection bool
}

func (c TOTPConfig) withDefaults() TOTPConfig {
	if c.Digits == 0 {
		c.Digits = 6
	}
	if c.Period == 0 {
		c.Period = 30
	}
	if c.Algorithm == "" {
		c.Algorithm = "SHA1"
	}
	return c
}

// Enrollment is returned when a new TOTP secret is provisioned.
type Enrollment struct {
	Secret string
	URI    string
}

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// BeginTOTP provisions a fresh secret for account, replacing any previous one.
func (m *Manager) BeginTOTP(ctx context.Context, account string) (Enrollment, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return Enrollment{}, err
	}
	secret := b32.EncodeToString(raw)
	if err := m.secure.Set(ctx, totpSecretKey, secret); err != nil {
		return Enrollment{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := m.store.Remove(ctx, lastCounterKey); err != nil {
		m.logger.Warn("totp replay counter reset failed", slog.String("error", err.Error()))
	}
	return Enrollment{Secret: secret, URI: m.ProvisionURI(secret, account)}, nil
}

// ProvisionURI renders the otpauth:// URI for authenticator apps.
func (m *Manager) ProvisionURI(secretBase32, account string) string {
	issuer := m.totp.Issuer
	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", issuer)
	v.Set("period", strconv.Itoa(m.totp.Period))
	v.Set("digits", strconv.Itoa(m.totp.Digits))
	v.Set("algorithm", strings.ToUpper(m.totp.Algorithm))

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// VerifyTOTP checks code against the stored secret at now.
func (m *Manager) VerifyTOTP(ctx context.Context, code string, now time.Time) (bool, error) {
	secretB32, ok, err := m.secure.Get(ctx, totpSecretKey)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return false, ErrNotEnrolled
	}
	secret, err := b32.DecodeString(secretB32)
	if err != nil {
		return false, fmt.Errorf("%w: corrupt totp secret", ErrUnavailable)
	}

	matched, counter, err := verifyCode(m.totp, secret, code, now)
	if err != nil || !matched {
		return false, err
	}

	if m.totp.EnforceReplayProtection {
		last, ok, err := m.store.Get(ctx, lastCounterKey)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if ok {
			if prev, perr := strconv.ParseInt(last, 10, 64); perr == nil && counter <= prev {
				return false, nil
			}
		}
		if err := m.store.Set(ctx, lastCounterKey, strconv.FormatInt(counter, 10)); err != nil {
			return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return true, nil
}

// GenerateTOTP returns the code for secretBase32 at now. It exists for
// provisioning checks and tests.
func GenerateTOTP(cfg TOTPConfig, secretBase32 string, now time.Time) (string, error) {
	cfg = cfg.withDefaults()
	secret, err := b32.DecodeString(secretBase32)
	if err != nil {
		return "", err
	}
	return hotpCode(secret, now.Unix()/int64(cfg.Period), cfg.Digits, cfg.Algorithm)
}

func verifyCode(cfg TOTPConfig, secret []byte, code string, now time.Time) (bool, int64, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != cfg.Digits || !isNumericString(trimmed) {
		return false, 0, nil
	}
	if len(secret) == 0 {
		return false, 0, errors.New("empty totp secret")
	}

	baseCounter := now.Unix() / int64(cfg.Period)
	for step := -cfg.Skew; step <= cfg.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(secret, counter, cfg.Digits, cfg.Algorithm)
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, counter, nil
		}
	}
	return false, 0, nil
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.New("unsupported totp algorithm")
	}
}

func isNumericString(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
