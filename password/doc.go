// Package password implements the password complexity policy and Argon2id
// hashing of user secrets.
//
// # Policy
//
// [Policy.ValidateComplexity] checks a length rule and a character-class rule
// independently and reports every failure in rule order. It is pure and
// deterministic. [PolicyModeLegacy] only constrains the first character to the
// allowed class; [PolicyModeStrict] constrains every character.
//
// # Hashing
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// goGuard uses [Argon2] to store security-question answers.
//
// # What this package must NOT do
//
//   - Store or retrieve secrets: callers supply plaintext and receive hashes.
//   - Import any other goGuard package.
//   - Log plaintext secrets.
package password
