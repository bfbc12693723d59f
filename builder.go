package goGuard

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goGuard/internal/access"
	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/clock"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/internal/mfa"
	"github.com/MrEthical07/goGuard/internal/questions"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/kv"
	"github.com/MrEthical07/goGuard/lifecycle"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/session"
)

// Clock and Timer let callers inject time. Most callers leave the default.
type (
	Clock = clock.Clock
	Timer = clock.Timer
)

// Builder collects collaborators for a [Provider]. A Builder builds once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     kv.Store
	secure    kv.SecureStore
	appender  audit.Appender
	alerter   Alerter
	clock     clock.Clock
	lifecycle lifecycle.Source
	verifier  CodeVerifier
	biometric BiometricSensor
	logger    *slog.Logger

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies a client used for the general store (when none is set),
// the sealed secure store (when Store.SealingKey is set) and the audit stream
// (when no appender is set).
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithStore(store kv.Store) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithSecureStore(store kv.SecureStore) *Builder {
	b.secure = store
	return b
}

// WithAppender sets the remote append-only log for the audit trail.
func (b *Builder) WithAppender(a AuditAppender) *Builder {
	b.appender = a
	return b
}

func (b *Builder) WithAlerter(a Alerter) *Builder {
	b.alerter = a
	return b
}

func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// WithLifecycle binds the session tracker to app foreground/background signals.
func (b *Builder) WithLifecycle(src lifecycle.Source) *Builder {
	b.lifecycle = src
	return b
}

func (b *Builder) WithCodeVerifier(v CodeVerifier) *Builder {
	b.verifier = v
	return b
}

func (b *Builder) WithBiometric(s BiometricSensor) *Builder {
	b.biometric = s
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires every component and resolves the
// initial [SecurityState]. ctx bounds the initial store reads only.
func (b *Builder) Build(ctx context.Context) (*Provider, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := b.clock
	if clk == nil {
		clk = clock.Real()
	}

	// -------- STORES --------
	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, ErrStoreRequired
		}
		store = kv.NewRedisStore(b.redis, cfg.Store.RedisPrefix)
	}

	secure := b.secure
	if secure == nil {
		if len(cfg.Store.SealingKey) == 0 {
			return nil, ErrSecureStoreRequired
		}
		sealed, err := kv.NewSealedStore(store, cfg.Store.SealingKey)
		if err != nil {
			return nil, err
		}
		secure = sealed
	}

	p := &Provider{
		config:    cloneConfig(cfg),
		store:     store,
		clock:     clk,
		alerter:   b.alerter,
		verifier:  b.verifier,
		biometric: b.biometric,
		logger:    logger,
		metrics:   NewMetrics(cfg.Metrics),
		policy:    passwordPolicy(cfg.Password),
		subs:      make(map[uint64]func(SecurityState)),
	}

	// -------- LEDGER / MFA / QUESTIONS --------
	p.ledger = limiters.NewLoginAttemptLedger(store, clk, limiters.LockoutConfig{
		MaxAttempts: cfg.Lockout.MaxAttempts,
		Duration:    cfg.Lockout.Duration,
	}, p.recordFailedAttempt, logger)
	p.codes = limiters.NewCodeLimiter(store, clk, limiters.CodeLimiterConfig{
		MaxAttempts: cfg.MFA.MaxCodeAttempts,
		Cooldown:    cfg.MFA.CodeCooldown,
	})

	p.mfa = mfa.NewManager(store, secure, mfa.TOTPConfig{
		Issuer:                  cfg.MFA.Issuer,
		Digits:                  cfg.MFA.TOTPDigits,
		Period:                  cfg.MFA.TOTPPeriod,
		Algorithm:               cfg.MFA.TOTPAlgorithm,
		Skew:                    cfg.MFA.TOTPSkew,
		EnforceReplayProtection: cfg.MFA.EnforceReplayProtection,
	}, logger)

	mode := questions.AnswerHashArgon2
	var hasher questions.Hasher
	if cfg.Questions.Storage == AnswerStoragePlaintext {
		mode = questions.AnswerPlaintext
	} else {
		ph, err := password.NewArgon2(password.Config{
			Memory:      cfg.Questions.Memory,
			Time:        cfg.Questions.Time,
			Parallelism: cfg.Questions.Parallelism,
			SaltLength:  cfg.Questions.SaltLength,
			KeyLength:   cfg.Questions.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		hasher = ph
	}
	qs, err := questions.New(secure, mode, hasher, logger)
	if err != nil {
		return nil, err
	}
	p.questions = qs

	// -------- SESSION --------
	var tokens *jwt.Manager
	if len(cfg.Token.PrivateKey) > 0 || len(cfg.Token.PublicKey) > 0 {
		tokens, err = jwt.NewManager(jwt.Config{
			TTL:           cfg.Token.TTL,
			SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
			PublicKey:     cloneBytes(cfg.Token.PublicKey),
			Issuer:        cfg.Token.Issuer,
			Now:           clk.Now,
		})
		if err != nil {
			return nil, err
		}
	}

	p.session, err = session.NewManager(session.Config{
		Timeout:     cfg.Session.Timeout,
		WarningLead: cfg.Session.WarningLead,
	}, session.Options{
		Store:   store,
		Clock:   clk,
		Tokens:  tokens,
		Alerter: b.alerter,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	// -------- AUDIT --------
	appender := b.appender
	if appender == nil && b.redis != nil {
		stream := cfg.Audit.Stream
		if stream == "" {
			stream = audit.DefaultStream
		}
		appender = audit.NewStreamAppender(b.redis, stream, cfg.Audit.StreamMaxLen)
	}

	var sink audit.Sink = audit.NoOpSink{}
	if appender != nil {
		p.appenderSink = audit.NewAppenderSink(appender, logger, cfg.Audit.AppendTimeout)
		sink = p.appenderSink
	} else if cfg.Audit.Enabled {
		logger.Warn("audit trail enabled without an appender; records are discarded")
	}
	p.dispatcher = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)
	if p.dispatcher != nil {
		p.audit = audit.NewLogger(p.dispatcher, clk.Now, p.currentSessionID)
	} else {
		p.audit = audit.NewLogger(audit.NoOpSink{}, clk.Now, p.currentSessionID)
	}
	p.mirror = audit.NewMirror(store, cfg.Audit.SecurityEventsCap, cfg.Audit.FailedAttemptsCap)

	// -------- ACCESS GATE --------
	p.gate = access.NewGate(p.audit, p.observeAccess)

	// Registered before init so a resumed session that is already inside
	// its warning window reaches the Provider rather than the default alert.
	p.unsubscribeSession = p.session.Subscribe(session.Listener{
		OnWarning: p.onSessionWarning,
		OnExpired: p.onSessionExpired,
	})

	if err := p.init(ctx); err != nil {
		p.Close()
		return nil, err
	}
	if b.lifecycle != nil {
		if err := p.session.BindLifecycle(b.lifecycle); err != nil {
			p.Close()
			return nil, err
		}
	}

	b.built = true
	return p, nil
}

func passwordPolicy(cfg PasswordConfig) password.Policy {
	mode := password.PolicyModeLegacy
	if cfg.StrictCharset {
		mode = password.PolicyModeStrict
	}
	return password.Policy{
		MinLength: cfg.MinLength,
		Symbols:   cfg.Symbols,
		Mode:      mode,
	}
}
