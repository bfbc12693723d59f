package goGuard

import "errors"

var (
	// ErrBuilderUsed is returned by a second call to Build.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrStoreRequired means neither a store nor a Redis client was supplied.
	ErrStoreRequired = errors.New("persistent store or redis client required")
	// ErrSecureStoreRequired means no secure store was supplied and no sealing key is configured.
	ErrSecureStoreRequired = errors.New("secure store or Store.SealingKey required")
	// ErrProviderClosed is returned by actions invoked after Close.
	ErrProviderClosed = errors.New("provider closed")

	ErrIdentifierRequired = errors.New("identifier required")
	ErrAccountLocked      = errors.New("account locked")
	ErrPasswordPolicy     = errors.New("password policy violation")

	ErrMFAUnavailable  = errors.New("mfa backend unavailable")
	ErrMFANotEnrolled  = errors.New("mfa not enrolled")
	ErrMFACodeInvalid  = errors.New("invalid mfa code")
	ErrMFANotEnabled   = errors.New("mfa not enabled")
	ErrMFARateLimited  = errors.New("too many wrong codes, try again later")
	ErrInvalidStep     = errors.New("invalid step for this action")
	ErrNoActiveSession = errors.New("no active session")

	ErrQuestionsNotSet      = errors.New("security questions not set")
	ErrQuestionsUnavailable = errors.New("security questions backend unavailable")
	ErrQuestionsRateLimited = errors.New("too many wrong answers, try again later")

	ErrBiometricUnavailable = errors.New("biometric authentication unavailable")
	ErrBiometricRejected    = errors.New("biometric authentication rejected")

	ErrAlertNotFound = errors.New("security alert not found")
)
