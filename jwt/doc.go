// Package jwt issues and verifies the signed session marker stored under
// session_token. A marker binds a session id to a user id and carries a hard
// expiry; it does not replace the inactivity timeout.
package jwt
