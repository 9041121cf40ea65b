package observability

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Span times one operation. Spans started under a request inherit its
// request ID as trace ID, so span logs join up with the request log.
type Span struct {
	TraceID   string
	SpanID    string
	ParentID  string
	Operation string
	StartTime time.Time
	Duration  time.Duration
	Tags      map[string]string
	Err       error
}

type spanContextKey struct{}

func StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	span := &Span{
		SpanID:    newID(),
		Operation: operation,
		StartTime: time.Now(),
		Tags:      make(map[string]string),
	}

	switch parent := GetSpan(ctx); {
	case parent != nil:
		span.ParentID = parent.SpanID
		span.TraceID = parent.TraceID
	case GetRequestID(ctx) != "":
		span.TraceID = GetRequestID(ctx)
	default:
		span.TraceID = newID()
	}

	return context.WithValue(ctx, spanContextKey{}, span), span
}

func (s *Span) Finish() {
	s.Duration = time.Since(s.StartTime)
}

func (s *Span) SetTag(key, value string) {
	s.Tags[key] = value
}

func (s *Span) SetError(err error) {
	s.Err = err
}

// Failed reports whether SetError was called with a non-nil error.
func (s *Span) Failed() bool {
	return s.Err != nil
}

// Log writes the finished span at debug level.
func (s *Span) Log(ctx context.Context, logger *slog.Logger) {
	if logger == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("operation", s.Operation),
		slog.String("trace_id", s.TraceID),
		slog.String("span_id", s.SpanID),
		slog.Duration("duration", s.Duration),
	}
	if s.ParentID != "" {
		attrs = append(attrs, slog.String("parent_id", s.ParentID))
	}
	for k, v := range s.Tags {
		attrs = append(attrs, slog.String(k, v))
	}
	if s.Err != nil {
		attrs = append(attrs, slog.String("error", s.Err.Error()))
	}
	logger.LogAttrs(ctx, slog.LevelDebug, "span finished", attrs...)
}

func GetSpan(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanContextKey{}).(*Span); ok {
		return span
	}
	return nil
}

func newID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:16]
}

// Trace runs fn inside a child span and logs the span when fn returns.
func Trace(ctx context.Context, logger *slog.Logger, operation string, fn func(ctx context.Context, span *Span) error) error {
	ctx, span := StartSpan(ctx, operation)
	err := fn(ctx, span)
	if err != nil {
		span.SetError(err)
	}
	span.Finish()
	span.Log(ctx, logger)
	return err
}
