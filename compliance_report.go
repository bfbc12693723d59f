package goGuard

import "time"

// ComplianceReport summarizes the configured security posture for review.
type ComplianceReport struct {
	SessionTimeout       time.Duration
	SessionWarningLead   time.Duration
	SessionWithinCeiling bool

	LockoutMaxAttempts int
	LockoutDuration    time.Duration

	PasswordMinLength     int
	PasswordStrictCharset bool

	BackupCodeCount int
	TOTPAlgorithm   string
	TOTPDigits      int
	ReplayProtected bool

	QuestionAnswersHashed bool
	QuestionArgon2        Argon2Report

	AuditEnabled       bool
	AuditDropIfFull    bool
	SignedSessionToken bool
	SigningAlgorithm   string
	SealedSecureStore  bool
}

// Argon2Report echoes the Argon2 parameters used for security answers.
type Argon2Report struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// ComplianceReport reports the effective configuration. It performs no I/O.
func (p *Provider) ComplianceReport() ComplianceReport {
	if p == nil {
		return ComplianceReport{}
	}
	c := p.config

	r := ComplianceReport{
		SessionTimeout:        c.Session.Timeout,
		SessionWarningLead:    c.Session.WarningLead,
		SessionWithinCeiling:  c.Session.Timeout <= MaxSessionTimeout,
		LockoutMaxAttempts:    c.Lockout.MaxAttempts,
		LockoutDuration:       c.Lockout.Duration,
		PasswordMinLength:     c.Password.MinLength,
		PasswordStrictCharset: c.Password.StrictCharset,
		BackupCodeCount:       c.MFA.BackupCodeCount,
		TOTPAlgorithm:         c.MFA.TOTPAlgorithm,
		TOTPDigits:            c.MFA.TOTPDigits,
		ReplayProtected:       c.MFA.EnforceReplayProtection,
		QuestionAnswersHashed: c.Questions.Storage == AnswerStorageArgon2,
		AuditEnabled:          c.Audit.Enabled,
		AuditDropIfFull:       c.Audit.DropIfFull,
		SignedSessionToken:    len(c.Token.PrivateKey) > 0 || len(c.Token.PublicKey) > 0,
		SealedSecureStore:     len(c.Store.SealingKey) > 0,
	}
	if r.QuestionAnswersHashed {
		r.QuestionArgon2 = Argon2Report{
			Memory:      c.Questions.Memory,
			Time:        c.Questions.Time,
			Parallelism: c.Questions.Parallelism,
			SaltLength:  c.Questions.SaltLength,
			KeyLength:   c.Questions.KeyLength,
		}
	}
	if r.SignedSessionToken {
		r.SigningAlgorithm = c.Token.SigningMethod
	}
	return r
}
