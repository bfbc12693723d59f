// Package kv provides the key/value persistence layer used by goGuard.
//
// # Stores
//
//   - [Store]: general persistent store for non-secret flags, counters and timestamps.
//   - [SecureStore]: higher-sensitivity values (backup codes, security questions, TOTP secret).
//   - [RedisStore]: Redis string keys under a prefix.
//   - [GormStore]: relational kv_entries table, SQLite by default.
//   - [MemoryStore]: in-process map for tests and simulations.
//   - [SealedStore]: XChaCha20-Poly1305 envelope that turns any Store into a SecureStore.
//
// A missing key is never an error: Get reports ok=false. Backend failures are
// wrapped with [ErrStoreUnavailable].
//
// # What this package must NOT do
//
//   - Interpret values; callers own encoding.
//   - Import goGuard or any internal package.
package kv
