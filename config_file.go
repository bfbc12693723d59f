package goGuard

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes every environment override read by LoadConfigFile.
const EnvPrefix = "GOGUARD_"

// fileConfig is the on-disk TOML shape. Durations are strings such as "15m".
type fileConfig struct {
	Session struct {
		Timeout     string `toml:"timeout"`
		WarningLead string `toml:"warning_lead"`
	} `toml:"session"`
	Lockout struct {
		MaxAttempts int    `toml:"max_attempts"`
		Duration    string `toml:"duration"`
	} `toml:"lockout"`
	Password struct {
		MinLength     int    `toml:"min_length"`
		Symbols       string `toml:"symbols"`
		StrictCharset *bool  `toml:"strict_charset"`
	} `toml:"password"`
	MFA struct {
		BackupCodeCount int    `toml:"backup_code_count"`
		Issuer          string `toml:"issuer"`
		TOTPDigits      int    `toml:"totp_digits"`
		TOTPPeriod      int    `toml:"totp_period"`
		TOTPAlgorithm   string `toml:"totp_algorithm"`
		TOTPSkew        *int   `toml:"totp_skew"`
		MaxCodeAttempts int    `toml:"max_code_attempts"`
		CodeCooldown    string `toml:"code_cooldown"`
	} `toml:"mfa"`
	Questions struct {
		Storage string `toml:"storage"`
	} `toml:"questions"`
	Audit struct {
		Enabled      *bool  `toml:"enabled"`
		BufferSize   int    `toml:"buffer_size"`
		DropIfFull   *bool  `toml:"drop_if_full"`
		Stream       string `toml:"stream"`
		StreamMaxLen int64  `toml:"stream_max_len"`
	} `toml:"audit"`
	Token struct {
		TTL           string `toml:"ttl"`
		SigningMethod string `toml:"signing_method"`
		Issuer        string `toml:"issuer"`
	} `toml:"token"`
	Store struct {
		RedisPrefix string `toml:"redis_prefix"`
	} `toml:"store"`
}

// LoadConfigFile reads a TOML file over [DefaultConfig], then applies
// GOGUARD_* environment overrides. A .env file in the working directory is
// loaded first when present. Secrets (token key, sealing key) are only read
// from the environment, base64 encoded. An empty path skips the file.
func LoadConfigFile(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		var fc fileConfig
		if err := toml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
		if err := mergeFileConfig(&cfg, fc); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func mergeFileConfig(cfg *Config, fc fileConfig) error {
	var err error
	set := func(dst *time.Duration, raw, field string) {
		if raw == "" || err != nil {
			return
		}
		d, perr := time.ParseDuration(raw)
		if perr != nil {
			err = fmt.Errorf("parse %s: %w", field, perr)
			return
		}
		*dst = d
	}

	set(&cfg.Session.Timeout, fc.Session.Timeout, "session.timeout")
	set(&cfg.Session.WarningLead, fc.Session.WarningLead, "session.warning_lead")
	set(&cfg.Lockout.Duration, fc.Lockout.Duration, "lockout.duration")
	set(&cfg.MFA.CodeCooldown, fc.MFA.CodeCooldown, "mfa.code_cooldown")
	set(&cfg.Token.TTL, fc.Token.TTL, "token.ttl")
	if err != nil {
		return err
	}

	if fc.Lockout.MaxAttempts != 0 {
		cfg.Lockout.MaxAttempts = fc.Lockout.MaxAttempts
	}
	if fc.Password.MinLength != 0 {
		cfg.Password.MinLength = fc.Password.MinLength
	}
	if fc.Password.Symbols != "" {
		cfg.Password.Symbols = fc.Password.Symbols
	}
	if fc.Password.StrictCharset != nil {
		cfg.Password.StrictCharset = *fc.Password.StrictCharset
	}
	if fc.MFA.BackupCodeCount != 0 {
		cfg.MFA.BackupCodeCount = fc.MFA.BackupCodeCount
	}
	if fc.MFA.Issuer != "" {
		cfg.MFA.Issuer = fc.MFA.Issuer
	}
	if fc.MFA.TOTPDigits != 0 {
		cfg.MFA.TOTPDigits = fc.MFA.TOTPDigits
	}
	if fc.MFA.TOTPPeriod != 0 {
		cfg.MFA.TOTPPeriod = fc.MFA.TOTPPeriod
	}
	if fc.MFA.TOTPAlgorithm != "" {
		cfg.MFA.TOTPAlgorithm = fc.MFA.TOTPAlgorithm
	}
	if fc.MFA.TOTPSkew != nil {
		cfg.MFA.TOTPSkew = *fc.MFA.TOTPSkew
	}
	if fc.MFA.MaxCodeAttempts != 0 {
		cfg.MFA.MaxCodeAttempts = fc.MFA.MaxCodeAttempts
	}
	if fc.Questions.Storage != "" {
		cfg.Questions.Storage = AnswerStorage(fc.Questions.Storage)
	}
	if fc.Audit.Enabled != nil {
		cfg.Audit.Enabled = *fc.Audit.Enabled
	}
	if fc.Audit.BufferSize != 0 {
		cfg.Audit.BufferSize = fc.Audit.BufferSize
	}
	if fc.Audit.DropIfFull != nil {
		cfg.Audit.DropIfFull = *fc.Audit.DropIfFull
	}
	if fc.Audit.Stream != "" {
		cfg.Audit.Stream = fc.Audit.Stream
	}
	if fc.Audit.StreamMaxLen != 0 {
		cfg.Audit.StreamMaxLen = fc.Audit.StreamMaxLen
	}
	if fc.Token.SigningMethod != "" {
		cfg.Token.SigningMethod = fc.Token.SigningMethod
	}
	if fc.Token.Issuer != "" {
		cfg.Token.Issuer = fc.Token.Issuer
	}
	if fc.Store.RedisPrefix != "" {
		cfg.Store.RedisPrefix = fc.Store.RedisPrefix
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"SESSION_TIMEOUT", &cfg.Session.Timeout},
		{"SESSION_WARNING_LEAD", &cfg.Session.WarningLead},
		{"LOCKOUT_DURATION", &cfg.Lockout.Duration},
		{"TOKEN_TTL", &cfg.Token.TTL},
	}
	for _, d := range durations {
		if raw, ok := lookup(EnvPrefix + d.name); ok && raw != "" {
			v, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, d.name, err)
			}
			*d.dst = v
		}
	}

	if raw, ok := lookup(EnvPrefix + "LOCKOUT_MAX_ATTEMPTS"); ok && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("parse %sLOCKOUT_MAX_ATTEMPTS: %w", EnvPrefix, err)
		}
		cfg.Lockout.MaxAttempts = n
	}
	if raw, ok := lookup(EnvPrefix + "REDIS_PREFIX"); ok && raw != "" {
		cfg.Store.RedisPrefix = raw
	}
	if raw, ok := lookup(EnvPrefix + "AUDIT_STREAM"); ok && raw != "" {
		cfg.Audit.Stream = raw
	}

	keys := []struct {
		name string
		dst  *[]byte
	}{
		{"TOKEN_KEY", &cfg.Token.PrivateKey},
		{"TOKEN_PUBLIC_KEY", &cfg.Token.PublicKey},
		{"SEALING_KEY", &cfg.Store.SealingKey},
	}
	for _, k := range keys {
		if raw, ok := lookup(EnvPrefix + k.name); ok && raw != "" {
			b, err := base64.StdEncoding.DecodeString(raw)
			if err != nil {
				return fmt.Errorf("decode %s%s: %w", EnvPrefix, k.name, err)
			}
			*k.dst = b
		}
	}
	return nil
}
