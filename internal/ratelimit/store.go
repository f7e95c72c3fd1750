// Package ratelimit implements per-identity cooldown admission: an identity
// is admitted when it has no recorded acceptance within the cooldown window.
// Acceptances are recorded explicitly by the caller once the guarded work
// succeeded, so failed attempts never consume the window.
package ratelimit

import (
	"context"
	"time"
)

// Store holds the last accepted timestamp per identity.
type Store interface {
	// Last returns the last recorded acceptance for id. ok is false when no
	// entry exists (or it already expired).
	Last(ctx context.Context, id string) (at time.Time, ok bool, err error)
	// Record overwrites the entry for id. ttl is a hint after which the
	// entry is no longer needed.
	Record(ctx context.Context, id string, at time.Time, ttl time.Duration) error
}
