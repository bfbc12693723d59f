package goGuard

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/password"
)

// Compliance bounds enforced by [Config.Validate].
const (
	MaxSessionTimeout   = 30 * time.Minute
	MinWarningLead      = time.Minute
	MinLockoutAttempts  = 3
	MaxLockoutAttempts  = 10
	MinLockoutDuration  = 15 * time.Minute
	DefaultLockoutLimit = 5
)

// Config is the full Provider configuration. Start from [DefaultConfig] and
// override what you need; the zero value does not validate.
type Config struct {
	Session   SessionConfig
	Lockout   LockoutConfig
	Password  PasswordConfig
	MFA       MFAConfig
	Questions QuestionsConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Token     TokenConfig
	Store     StoreConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig is the inactivity timing policy.
type SessionConfig struct {
	Timeout     time.Duration
	WarningLead time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls brute-force lockout.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig controls complexity validation.
type PasswordConfig struct {
	MinLength int
	Symbols   string
	// StrictCharset rejects any character outside the allowed class. When
	// false only the first character is checked against it.
	StrictCharset bool
}

// MFAConfig controls backup codes and the TOTP live channel.
type MFAConfig struct {
	BackupCodeCount         int
	Issuer                  string
	TOTPDigits              int
	TOTPPeriod              int
	TOTPAlgorithm           string
	TOTPSkew                int
	EnforceReplayProtection bool
	// MaxCodeAttempts wrong codes per channel within CodeCooldown block
	// further checks on that channel until the window elapses.
	MaxCodeAttempts int
	CodeCooldown    time.Duration
}

// AnswerStorage selects how security-question answers are kept at rest.
type AnswerStorage string

const (
	AnswerStorageArgon2    AnswerStorage = "argon2"
	AnswerStoragePlaintext AnswerStorage = "plaintext"
)

// QuestionsConfig controls security-question storage. The Argon2 fields
// apply when Storage is AnswerStorageArgon2.
type QuestionsConfig struct {
	Storage     AnswerStorage
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the compliance trail.
type AuditConfig struct {
	Enabled       bool
	BufferSize    int
	DropIfFull    bool
	AppendTimeout time.Duration
	// Stream and StreamMaxLen apply to the Redis stream appender.
	Stream            string
	StreamMaxLen      int64
	SecurityEventsCap int
	FailedAttemptsCap int
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
TOKEN / STORE CONFIG
====================================
*/

// TokenConfig configures the signed session marker. With no PrivateKey and
// no PublicKey the marker is an opaque session id.
type TokenConfig struct {
	TTL           time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

// StoreConfig configures the default stores built from a Redis client.
type StoreConfig struct {
	RedisPrefix string
	// SealingKey seals secure values into the general store when no
	// dedicated secure store is supplied. It must be 32 bytes.
	SealingKey []byte
}

// DefaultConfig returns the compliance-aligned defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			Timeout:     15 * time.Minute,
			WarningLead: 2 * time.Minute,
		},
		Lockout: LockoutConfig{
			MaxAttempts: DefaultLockoutLimit,
			Duration:    30 * time.Minute,
		},
		Password: PasswordConfig{
			MinLength: password.DefaultMinLength,
			Symbols:   password.DefaultSymbols,
		},
		MFA: MFAConfig{
			BackupCodeCount:         10,
			Issuer:                  "goGuard",
			TOTPDigits:              6,
			TOTPPeriod:              30,
			TOTPAlgorithm:           "SHA1",
			TOTPSkew:                1,
			EnforceReplayProtection: true,
			MaxCodeAttempts:         5,
			CodeCooldown:            time.Minute,
		},
		Questions: QuestionsConfig{
			Storage:     AnswerStorageArgon2,
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:           true,
			BufferSize:        256,
			DropIfFull:        true,
			AppendTimeout:     5 * time.Second,
			SecurityEventsCap: 500,
			FailedAttemptsCap: 100,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Token: TokenConfig{
			TTL:           12 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "goguard",
		},
		Store: StoreConfig{
			RedisPrefix: "gg",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	out.Store.SealingKey = cloneBytes(cfg.Store.SealingKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations outside the compliance bounds. Errors
// here are configuration errors and never occur at call time.
func (c *Config) Validate() error {
	// Session
	if c.Session.Timeout <= 0 {
		return errors.New("Session Timeout must be > 0")
	}
	if c.Session.Timeout > MaxSessionTimeout {
		return errors.New("Session Timeout must be <= 30m")
	}
	if c.Session.WarningLead < MinWarningLead {
		return errors.New("Session WarningLead must be >= 1m")
	}
	if c.Session.WarningLead >= c.Session.Timeout {
		return errors.New("Session WarningLead must be < Timeout")
	}

	// Lockout
	if c.Lockout.MaxAttempts < MinLockoutAttempts || c.Lockout.MaxAttempts > MaxLockoutAttempts {
		return errors.New("Lockout MaxAttempts must be within [3,10]")
	}
	if c.Lockout.Duration < MinLockoutDuration {
		return errors.New("Lockout Duration must be >= 15m")
	}

	// Password
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.Symbols == "" {
		return errors.New("Password Symbols must not be empty")
	}

	// MFA
	if c.MFA.BackupCodeCount <= 0 {
		return errors.New("MFA BackupCodeCount must be > 0")
	}
	if c.MFA.TOTPDigits != 6 && c.MFA.TOTPDigits != 8 {
		return errors.New("MFA TOTPDigits must be 6 or 8")
	}
	if c.MFA.TOTPPeriod <= 0 {
		return errors.New("MFA TOTPPeriod must be > 0")
	}
	if c.MFA.TOTPSkew < 0 || c.MFA.TOTPSkew > 3 {
		return errors.New("MFA TOTPSkew must be within [0,3]")
	}
	if c.MFA.MaxCodeAttempts < 1 {
		return errors.New("MFA MaxCodeAttempts must be >= 1")
	}
	if c.MFA.CodeCooldown <= 0 {
		return errors.New("MFA CodeCooldown must be > 0")
	}
	switch strings.ToUpper(c.MFA.TOTPAlgorithm) {
	case "", "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("MFA TOTPAlgorithm must be SHA1, SHA256, or SHA512")
	}

	// Questions
	switch c.Questions.Storage {
	case AnswerStorageArgon2:
		if c.Questions.Memory < 8*1024 || c.Questions.Time < 1 || c.Questions.Parallelism < 1 ||
			c.Questions.SaltLength < 16 || c.Questions.KeyLength < 16 {
			return errors.New("Questions Argon2 parameters are below minimums")
		}
	case AnswerStoragePlaintext:
	default:
		return errors.New("Questions Storage must be argon2 or plaintext")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	if c.Audit.AppendTimeout < 0 {
		return errors.New("Audit AppendTimeout must be >= 0")
	}
	if c.Audit.SecurityEventsCap < 0 || c.Audit.FailedAttemptsCap < 0 {
		return errors.New("Audit mirror caps must be >= 0")
	}

	// Token
	if len(c.Token.PrivateKey) > 0 || len(c.Token.PublicKey) > 0 {
		if c.Token.TTL <= 0 {
			return errors.New("Token TTL must be > 0")
		}
		switch c.Token.SigningMethod {
		case "", "hs256":
			if len(c.Token.PrivateKey) < 32 {
				return errors.New("hs256 requires a PrivateKey of at least 256 bits")
			}
		case "ed25519":
		default:
			return errors.New("unsupported Token signing method")
		}
	}

	// Store
	if len(c.Store.SealingKey) > 0 && len(c.Store.SealingKey) != 32 {
		return errors.New("Store SealingKey must be 32 bytes")
	}

	return nil
}
