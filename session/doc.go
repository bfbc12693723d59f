// Package session tracks user activity and owns the inactivity timeout.
//
// # State machine
//
// A [Manager] moves Inactive → Active → Warned → Expired. [Manager.Start]
// enters Active; any activity before expiry returns a Warned session to
// Active; Expired is terminal until the next Start.
//
// # Timers
//
// The warning fires at Timeout − WarningLead after the last activity and
// expiry at Timeout. The two timers are always cancelled and re-armed as a
// pair under a new epoch. While the app is backgrounded no timers are armed;
// on foreground the remaining budget is recomputed from the last activity.
//
// # What this package must NOT do
//
//   - Mutate the Provider's SecurityState; results flow out only through
//     return values and [Listener] callbacks.
//   - Surface persistence failures; they are logged and discarded.
package session
