package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// EventType names a compliance audit record.
type EventType string

const (
	EventLogin              EventType = "login"
	EventLogout             EventType = "logout"
	EventSessionStart       EventType = "session_start"
	EventSessionEnd         EventType = "session_end"
	EventSessionTimeout     EventType = "session_timeout"
	EventPHIAccess          EventType = "phi_access"
	EventFailedAuth         EventType = "failed_auth"
	EventDataAccess         EventType = "data_access"
	EventUnauthorizedAccess EventType = "unauthorized_access"
	EventSecurity           EventType = "security_event"
)

// Record is one entry of the append-only compliance trail.
type Record struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id,omitempty"`
	EventType EventType         `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	SessionID string            `json:"session_id,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Sink receives records. Emit never reports failure to the caller.
type Sink interface {
	Emit(ctx context.Context, rec Record)
}

// NoOpSink drops records.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Record) {}

// ChannelSink writes records into a buffered channel.
type ChannelSink struct {
	records chan Record
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{records: make(chan Record, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, rec Record) {
	select {
	case s.records <- rec:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Records() <-chan Record {
	return s.records
}

// WriterAppender appends one JSON object per line to w. It is the Appender
// used when no remote log is configured.
type WriterAppender struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewWriterAppender(w io.Writer) *WriterAppender {
	return &WriterAppender{writer: w}
}

func (a *WriterAppender) Append(_ context.Context, rec Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.writer.Write(data); err != nil {
		return "", err
	}
	return rec.ID, nil
}
