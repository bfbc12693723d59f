// Package access implements the PHI access gate: a strict owner-equality
// check that records every attempt and fails closed on a missing identity.
package access
