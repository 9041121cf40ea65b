package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-dashboard/internal/config"
)

func TestNewLoggerTo_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggerConfig{Level: "warn", Format: "json"})

	logger.Info("dropped")
	logger.Warn("kept", "records", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, serviceName, entry["service"])
	assert.EqualValues(t, 3, entry["records"])
}

func TestNewLoggerTo_Text(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerTo(&buf, config.LoggerConfig{Level: "bogus", Format: "text"}).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel(""))
}

func TestLoggerFrom(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := WithSubject(WithRequestID(context.Background(), "req-7"), "user-1")
	assert.Equal(t, "req-7", GetRequestID(ctx))
	assert.Equal(t, "user-1", GetSubject(ctx))

	LoggerFrom(ctx, base).Info("scoped")
	assert.Contains(t, buf.String(), `"request_id":"req-7"`)
	assert.Contains(t, buf.String(), `"subject":"user-1"`)

	buf.Reset()
	LoggerFrom(context.Background(), base).Info("bare")
	assert.NotContains(t, buf.String(), "request_id")
}

func TestStartSpan_TraceIDs(t *testing.T) {
	ctx, root := StartSpan(WithRequestID(context.Background(), "req-9"), "GET /sse/forecast")
	assert.Equal(t, "req-9", root.TraceID)
	assert.Len(t, root.SpanID, 16)
	assert.Empty(t, root.ParentID)

	_, child := StartSpan(ctx, "POST /api/forecast")
	assert.Equal(t, "req-9", child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.NotEqual(t, root.SpanID, child.SpanID)

	_, orphan := StartSpan(context.Background(), "job")
	assert.Len(t, orphan.TraceID, 16)
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	boom := assert.AnError
	err := Trace(context.Background(), logger, "fetch", func(ctx context.Context, span *Span) error {
		require.Same(t, span, GetSpan(ctx))
		span.SetTag("http.status_code", "502")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "span finished", entry["msg"])
	assert.Equal(t, "fetch", entry["operation"])
	assert.Equal(t, "502", entry["http.status_code"])
	assert.Equal(t, boom.Error(), entry["error"])
}

func TestNewLoggerTo_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggerConfig{Level: "info", Format: "json"})

	logger.Info("forecast call", "token", "eyJhbGciOi", "months", 6)
	assert.NotContains(t, buf.String(), "eyJhbGciOi")
	assert.Contains(t, buf.String(), `"token":"[redacted]"`)
}
