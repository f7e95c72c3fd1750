package tracker

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/errors"
)

const (
	OpCreate = "create"
	OpSearch = "search"
)

// APIError is a non-2xx response from the tracker. Body is redacted and
// truncated; it is safe to log but never shown to callers.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tracker %s returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap maps the operation onto its sentinel.
func (e *APIError) Unwrap() error {
	if e.Op == OpSearch {
		return apperrors.ErrTicketSearchFailed
	}
	return apperrors.ErrTicketCreateFailed
}

// serverSide reports whether the failure should count against the breaker.
func (e *APIError) serverSide() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
