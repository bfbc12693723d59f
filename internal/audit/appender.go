package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Appender is the remote append-only log collection.
type Appender interface {
	Append(ctx context.Context, rec Record) (id string, err error)
}

// DefaultStream is the Redis stream used when none is configured.
const DefaultStream = "gg:audit"

// StreamAppender appends records to a Redis stream with XADD.
type StreamAppender struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewStreamAppender returns an appender for stream. maxLen > 0 trims the
// stream approximately to that many entries.
func NewStreamAppender(client redis.UniversalClient, stream string, maxLen int64) *StreamAppender {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamAppender{client: client, stream: stream, maxLen: maxLen}
}

func (a *StreamAppender) Append(ctx context.Context, rec Record) (string, error) {
	values := map[string]any{
		"id":         rec.ID,
		"user_id":    rec.UserID,
		"event_type": string(rec.EventType),
		"timestamp":  rec.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if rec.SessionID != "" {
		values["session_id"] = rec.SessionID
	}
	if len(rec.Details) > 0 {
		details, err := json.Marshal(rec.Details)
		if err != nil {
			return "", err
		}
		values["details"] = string(details)
	}

	args := &redis.XAddArgs{Stream: a.stream, Values: values}
	if a.maxLen > 0 {
		args.MaxLen = a.maxLen
		args.Approx = true
	}
	return a.client.XAdd(ctx, args).Result()
}

// AppenderSink delivers records to an Appender. Append failures are logged
// and counted, then discarded.
type AppenderSink struct {
	appender Appender
	logger   *slog.Logger
	timeout  time.Duration
	failures atomic.Uint64
}

// NewAppenderSink wraps appender. timeout <= 0 leaves the context untouched.
func NewAppenderSink(appender Appender, logger *slog.Logger, timeout time.Duration) *AppenderSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppenderSink{appender: appender, logger: logger, timeout: timeout}
}

func (s *AppenderSink) Emit(ctx context.Context, rec Record) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if _, err := s.appender.Append(ctx, rec); err != nil {
		s.failures.Add(1)
		s.logger.Warn("audit append failed",
			slog.String("event_type", string(rec.EventType)),
			slog.String("record_id", rec.ID),
			slog.String("error", err.Error()))
		// The record is lost; the action it describes proceeds regardless.
	}
}

// Failures returns the number of records that could not be appended.
func (s *AppenderSink) Failures() uint64 {
	return s.failures.Load()
}
