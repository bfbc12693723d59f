// Package audit records the compliance trail for security-relevant actions.
//
// # Components
//
//   - [Logger]: stamps [Record] values and forwards them to a [Sink]; callers never see errors.
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Appender]: the remote append-only log ([StreamAppender] on Redis Streams,
//     [WriterAppender] for JSON lines). [AppenderSink] adapts one to a Sink and
//     logs failed appends before discarding them.
//   - [Mirror]: capped on-device copies of security events and failed attempts.
//
// # Architecture boundaries
//
// This package owns record shape, buffering and delivery. It does NOT decide
// which events to emit; the Provider and the access gate do.
//
// # What this package must NOT do
//
//   - Return append failures to the code path being audited.
//   - Import goGuard or any sibling internal package.
package audit
