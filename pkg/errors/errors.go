// Package errors defines the sentinel errors shared by the intake pipeline
// and maps them onto HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrRateLimited             = errors.New("rate limit exceeded")
	ErrCaptchaRejected         = errors.New("captcha rejected")
	ErrVerificationUnavailable = errors.New("captcha verification unavailable")
	ErrTicketCreateFailed      = errors.New("ticket creation failed")
	ErrTicketSearchFailed      = errors.New("ticket search failed")
	ErrNotificationFailed      = errors.New("notification failed")
	ErrTransport               = errors.New("transport error")
	ErrNotFound                = errors.New("not found")
	ErrInternal                = errors.New("internal error")
	ErrTimeout                 = errors.New("operation timed out")
)

// AppError pairs a sentinel with the message shown to the caller. Message
// must never contain upstream bodies or credentials.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
	RetryAfter time.Duration
	cause      error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Err.Error(), e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Err, e.cause}
	}
	return []error{e.Err}
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Wrap is New with the underlying cause attached for logs and errors.Is.
func Wrap(cause error, sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
		cause:      cause,
	}
}

// RateLimited builds the 429 error carrying the remaining cooldown.
func RateLimited(message string, retryAfter time.Duration) *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: retryAfter,
	}
}

// Message returns the caller-facing message of err, or fallback when err is
// not an AppError.
func Message(err error, fallback string) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrCaptchaRejected):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
