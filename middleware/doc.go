// Package middleware adapts a goGuard Provider to net/http handlers.
//
// # Guards
//
//   - [RequireSession] rejects requests without a live session and counts
//     each accepted request as activity.
//   - [RequirePHIAccess] runs the PHI access gate against a gorilla/mux
//     route variable naming the record owner.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Provider calls. Every decision
// is made by the Provider.
//
// # What this package must NOT do
//
//   - Echo denial reasons to the client.
//   - Touch stores directly.
package middleware
