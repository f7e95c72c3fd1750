package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestHTTPStatusCode(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInvalidInput, http.StatusBadRequest, "Missing required fields"), http.StatusBadRequest},
		{"wrapped app error", fmt.Errorf("submit: %w", RateLimited("slow down", time.Minute)), http.StatusTooManyRequests},
		{"not found sentinel", fmt.Errorf("lookup: %w", ErrNotFound), http.StatusNotFound},
		{"captcha sentinel", ErrCaptchaRejected, http.StatusBadRequest},
		{"verification unavailable", ErrVerificationUnavailable, http.StatusInternalServerError},
		{"transport", fmt.Errorf("%w: %w", ErrTransport, cause), http.StatusInternalServerError},
		{"unknown", cause, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTTPStatusCode(tc.err); got != tc.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestWrapKeepsBothChains(t *testing.T) {
	cause := fmt.Errorf("%w: timeout", ErrTransport)
	err := Wrap(cause, ErrTicketCreateFailed, http.StatusInternalServerError, "Failed to create ticket.")
	if !errors.Is(err, ErrTicketCreateFailed) {
		t.Error("expected ErrTicketCreateFailed in chain")
	}
	if !errors.Is(err, ErrTransport) {
		t.Error("expected cause ErrTransport in chain")
	}
	if got := Message(err, "fallback"); got != "Failed to create ticket." {
		t.Errorf("Message() = %q", got)
	}
	if got := Message(cause, "fallback"); got != "fallback" {
		t.Errorf("Message() on plain error = %q", got)
	}
}
