package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger stamps and forwards compliance records. Every method is
// fire-and-forget: nothing is returned to the caller.
type Logger struct {
	sink    Sink
	now     func() time.Time
	session func() string
}

// NewLogger returns a Logger writing to sink. now defaults to time.Now and
// session, when set, supplies the current session id for records without one.
func NewLogger(sink Sink, now func() time.Time, session func() string) *Logger {
	if sink == nil {
		sink = NoOpSink{}
	}
	if now == nil {
		now = time.Now
	}
	return &Logger{sink: sink, now: now, session: session}
}

// Log emits rec after filling ID, Timestamp and SessionID when absent.
func (l *Logger) Log(ctx context.Context, rec Record) {
	if l == nil {
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now().UTC()
	}
	if rec.SessionID == "" && l.session != nil {
		rec.SessionID = l.session()
	}
	l.sink.Emit(ctx, rec)
}

func (l *Logger) LogLogin(ctx context.Context, userID string) {
	l.Log(ctx, Record{UserID: userID, EventType: EventLogin})
}

func (l *Logger) LogLogout(ctx context.Context, userID string) {
	l.Log(ctx, Record{UserID: userID, EventType: EventLogout})
}

func (l *Logger) LogSessionStart(ctx context.Context, userID, sessionID string) {
	l.Log(ctx, Record{UserID: userID, EventType: EventSessionStart, SessionID: sessionID})
}

func (l *Logger) LogSessionEnd(ctx context.Context, userID, sessionID string) {
	l.Log(ctx, Record{UserID: userID, EventType: EventSessionEnd, SessionID: sessionID})
}

func (l *Logger) LogSessionTimeout(ctx context.Context, userID, sessionID string) {
	l.Log(ctx, Record{UserID: userID, EventType: EventSessionTimeout, SessionID: sessionID})
}

// LogPHIAccess records a granted read of protected health data.
func (l *Logger) LogPHIAccess(ctx context.Context, userID, resourceType string) {
	l.Log(ctx, Record{
		UserID:    userID,
		EventType: EventPHIAccess,
		Details:   map[string]string{"resource_type": resourceType},
	})
}

// LogFailedAuth records a failed authentication for identifier.
func (l *Logger) LogFailedAuth(ctx context.Context, identifier, reason string) {
	l.Log(ctx, Record{
		UserID:    identifier,
		EventType: EventFailedAuth,
		Details:   map[string]string{"reason": reason},
	})
}

// LogDataAccess records an access attempt before it is decided.
func (l *Logger) LogDataAccess(ctx context.Context, userID, requestedUserID, resourceType string) {
	l.Log(ctx, Record{
		UserID:    userID,
		EventType: EventDataAccess,
		Details: map[string]string{
			"resource_type":     resourceType,
			"requested_user_id": requestedUserID,
		},
	})
}

// LogUnauthorized records a denied access attempt.
func (l *Logger) LogUnauthorized(ctx context.Context, userID, resourceType, reason string) {
	l.Log(ctx, Record{
		UserID:    userID,
		EventType: EventUnauthorizedAccess,
		Details: map[string]string{
			"resource_type": resourceType,
			"reason":        reason,
		},
	})
}

// LogSecurityEvent forwards a provider-level security event such as lockout
// or mfa_setup.
func (l *Logger) LogSecurityEvent(ctx context.Context, userID, kind string, details map[string]string) {
	merged := make(map[string]string, len(details)+1)
	for k, v := range details {
		merged[k] = v
	}
	merged["kind"] = kind
	l.Log(ctx, Record{UserID: userID, EventType: EventSecurity, Details: merged})
}
