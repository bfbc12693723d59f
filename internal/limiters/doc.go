// Package limiters provides brute-force mitigation primitives built on the
// kv persistence layer.
//
// # Limiters
//
//   - [LoginAttemptLedger] is a per-identifier failure counter plus a
//     time-boxed lockout deadline. Counter and deadline are always cleared
//     together.
//   - [CodeLimiter] caps wrong TOTP codes, backup codes and security
//     question answers per cooldown window.
//
// Ledger reads that fail are treated as absence (zero attempts, unlocked)
// and logged; writes that fail are returned wrapped in
// [ErrLedgerUnavailable]. The code limiter fails closed on store errors.
//
// # What this package must NOT do
//
//   - Import goGuard or any sibling internal package except internal/clock.
//   - Make policy decisions beyond counting. The Provider decides when to lock.
package limiters
