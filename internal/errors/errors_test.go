package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{BadRequest("bad"), http.StatusBadRequest},
		{New(CodeNotFound, "gone"), http.StatusNotFound},
		{Unauthorized("who"), http.StatusUnauthorized},
		{SessionExpired("again"), http.StatusUnauthorized},
		{Forbidden("no"), http.StatusForbidden},
		{RateLimit("slow"), http.StatusTooManyRequests},
		{New(CodeServiceUnavail, "later"), http.StatusServiceUnavailable},
		{Upstream(http.StatusTeapot, "tea"), http.StatusBadGateway},
		{Malformed("shape"), http.StatusBadGateway},
		{Internal("oops"), http.StatusInternalServerError},
		{New("SOMETHING_NEW", "?"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.StatusCode)
		})
	}
}

func TestUpstream(t *testing.T) {
	err := Upstream(http.StatusNotFound, "")
	assert.Equal(t, "HTTP error, status 404", err.Message)
	assert.Equal(t, http.StatusNotFound, err.UpstreamStatus)

	err = Upstream(http.StatusBadRequest, "months must be positive")
	assert.Equal(t, "months must be positive", err.Message)
}

func TestWrapAndHasCode(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := fmt.Errorf("loading: %w", UpstreamWrap(cause, "forecast service unreachable"))

	assert.True(t, HasCode(err, CodeUpstream))
	assert.False(t, HasCode(err, CodeInternal))
	assert.False(t, HasCode(cause, CodeUpstream))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "caused by: connection refused")
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, "Your session has expired.", UserMessage(fmt.Errorf("x: %w", SessionExpired("Your session has expired."))))
	assert.Equal(t, "An unexpected error occurred", UserMessage(stderrors.New("boom")))
}

func TestWriteError(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	rec := httptest.NewRecorder()
	WriteError(rec, logger, Validation("forecast horizon must be between 1 and 36 months"), "req-1")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Equal(t, "req-1", body.Error.RequestID)
	assert.Contains(t, logs.String(), `"level":"WARN"`)
}

func TestWriteError_PlainErrorIsInternal(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	rec := httptest.NewRecorder()
	WriteError(rec, logger, stderrors.New("nil map"), "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "nil map")
	assert.Contains(t, logs.String(), `"level":"ERROR"`)
	assert.Contains(t, logs.String(), "nil map")
}

func TestWriteError_DoesNotMutateSharedError(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	shared := Unauthorized("No active session found. Please log in.")

	WriteError(httptest.NewRecorder(), logger, shared, "req-2")
	assert.Empty(t, shared.RequestID)
}

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccessWithHeaders(rec, map[string]int{"count": 2}, map[string]string{"Cache-Control": "private"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "private", rec.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"success":true,"data":{"count":2}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WriteSuccessStatus(rec, http.StatusAccepted, map[string]string{"status": "loading"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
