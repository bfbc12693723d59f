// Package mfa manages multi-factor enrollment state for a single device user.
//
// # Components
//
//   - [Manager.Enabled] / [Manager.SetEnabled]: MFA flag in the general store.
//   - Backup codes: a one-time pool of 6-character [A-Z0-9] codes kept in the
//     secure store. Regenerating replaces the whole pool; a code validates at most once.
//   - TOTP: RFC 6238 secret provisioning and verification for the live channel.
//
// # What this package must NOT do
//
//   - Decide enrollment steps; the Provider owns the setup state machine.
//   - Import goGuard or any sibling internal package.
package mfa
