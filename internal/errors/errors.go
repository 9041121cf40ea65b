// Package errors carries the application error type shared by the HTTP
// handlers, the forecast client and the CLI, plus the JSON envelopes the API
// answers with.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type ErrorCode string

const (
	CodeInternal       ErrorCode = "INTERNAL_ERROR"
	CodeValidation     ErrorCode = "VALIDATION_ERROR"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeBadRequest     ErrorCode = "BAD_REQUEST"
	CodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	CodeForbidden      ErrorCode = "FORBIDDEN"
	CodeRateLimit      ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
	CodeSessionExpired ErrorCode = "SESSION_EXPIRED"
	CodeUpstream       ErrorCode = "UPSTREAM_ERROR"
	CodeMalformed      ErrorCode = "MALFORMED_RESPONSE"
)

var statusByCode = map[ErrorCode]int{
	CodeValidation:     http.StatusBadRequest,
	CodeBadRequest:     http.StatusBadRequest,
	CodeNotFound:       http.StatusNotFound,
	CodeUnauthorized:   http.StatusUnauthorized,
	CodeSessionExpired: http.StatusUnauthorized,
	CodeForbidden:      http.StatusForbidden,
	CodeRateLimit:      http.StatusTooManyRequests,
	CodeServiceUnavail: http.StatusServiceUnavailable,
	CodeUpstream:       http.StatusBadGateway,
	CodeMalformed:      http.StatusBadGateway,
}

// AppError is an error with a user-facing message. Message is safe to show;
// Cause is only logged.
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Cause      error     `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`

	// UpstreamStatus is the HTTP status returned by a collaborator, if any.
	UpstreamStatus int `json:"upstream_status,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: status,
		Timestamp:  time.Now().UTC(),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err
	return appErr
}

func Internal(message string) *AppError {
	return New(CodeInternal, message)
}

func InternalWrap(err error, message string) *AppError {
	return Wrap(err, CodeInternal, message)
}

func Validation(message string) *AppError {
	return New(CodeValidation, message)
}

func ValidationWrap(err error, message string) *AppError {
	return Wrap(err, CodeValidation, message)
}

func BadRequest(message string) *AppError {
	return New(CodeBadRequest, message)
}

func BadRequestWrap(err error, message string) *AppError {
	return Wrap(err, CodeBadRequest, message)
}

func Unauthorized(message string) *AppError {
	return New(CodeUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return New(CodeForbidden, message)
}

func RateLimit(message string) *AppError {
	return New(CodeRateLimit, message)
}

// SessionExpired reports a rejected or expired bearer token. The message
// should tell the user to log in again.
func SessionExpired(message string) *AppError {
	err := New(CodeSessionExpired, message)
	err.UpstreamStatus = http.StatusUnauthorized
	return err
}

// Upstream reports a non-2xx response from a collaborator. detail is the
// best human-readable explanation available.
func Upstream(status int, detail string) *AppError {
	if detail == "" {
		detail = fmt.Sprintf("HTTP error, status %d", status)
	}
	err := New(CodeUpstream, detail)
	err.UpstreamStatus = status
	return err
}

func UpstreamWrap(err error, message string) *AppError {
	return Wrap(err, CodeUpstream, message)
}

// Malformed reports a collaborator response that is missing its expected shape.
func Malformed(message string) *AppError {
	return New(CodeMalformed, message)
}

// HasCode reports whether err is, or wraps, an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// UserMessage returns the string shown to the user for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return "An unexpected error occurred"
}

type errorEnvelope struct {
	Error   *AppError `json:"error"`
	Success bool      `json:"success"`
}

type successEnvelope struct {
	Data    any  `json:"data"`
	Success bool `json:"success"`
}

// WriteError answers with the error envelope. Errors that are not AppErrors
// become a generic internal error so their text never reaches the client.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error, requestID string) {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		appErr = InternalWrap(err, "An unexpected error occurred")
	}
	resp := *appErr
	resp.RequestID = requestID

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if encodeErr := json.NewEncoder(w).Encode(errorEnvelope{Error: &resp}); encodeErr != nil {
		logger.Error("failed to encode error response", "error", encodeErr, "request_id", requestID)
		return
	}

	level := slog.LevelError
	if resp.StatusCode < http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("error_code", string(resp.Code)),
		slog.String("error_message", resp.Message),
		slog.Int("status_code", resp.StatusCode),
		slog.String("request_id", requestID),
	}
	if resp.UpstreamStatus != 0 {
		attrs = append(attrs, slog.Int("upstream_status", resp.UpstreamStatus))
	}
	if resp.Cause != nil {
		attrs = append(attrs, slog.String("cause", resp.Cause.Error()))
	}
	logger.LogAttrs(context.Background(), level, "request failed", attrs...)
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

// WriteSuccessStatus writes the success envelope with a non-200 status, such
// as 202 while a record store is still loading.
func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(successEnvelope{Data: data, Success: true})
}

func WriteSuccessWithHeaders(w http.ResponseWriter, data any, headers map[string]string) {
	for key, value := range headers {
		w.Header().Set(key, value)
	}
	WriteSuccess(w, data)
}
