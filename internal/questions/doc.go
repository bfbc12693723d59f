// Package questions stores security questions in the secure store and
// verifies answers case-insensitively with surrounding whitespace trimmed.
//
// Answers are hashed with Argon2id by default. Plaintext storage is kept as
// an explicit mode for parity with existing devices. A successful Verify
// re-hashes answers stored under weaker Argon2 parameters.
package questions
