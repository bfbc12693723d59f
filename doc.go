// Package goGuard is the client-side session-security core of a health
// companion app: inactivity timeout, login lockout, password policy, MFA and
// backup codes, security questions, biometric opt-in, the compliance audit
// trail and the PHI access gate.
//
// A [Provider] built through [Builder.Build] owns one [SecurityState] value
// and replaces it on every action. UI code reads it with [Provider.State] or
// observes it with [Provider.Subscribe].
//
// # Architecture boundaries
//
// goGuard is the public surface. It exposes [Provider], [Builder], [Config]
// and value types. Timer bookkeeping lives in the session package; ledgers,
// MFA storage, question storage, audit dispatch and the access gate live
// under internal/ and never touch SecurityState.
//
// # What this package must NOT do
//
//   - Surface storage failures from bookkeeping writes; they are logged and
//     counted. The PHI gate is the exception and fails closed.
//   - Treat expected outcomes (wrong password, lockout, denied access) as
//     errors. They are returned as [LoginOutcome], [PasswordResult] and
//     [AccessDecision].
//   - Invoke alerts or subscribers while holding its own lock.
package goGuard
