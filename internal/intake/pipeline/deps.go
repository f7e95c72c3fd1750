// Package pipeline orchestrates the submission and status-lookup flows over
// injected collaborators: rate limiter, CAPTCHA verifier, tracker client,
// notifier, audit ledger and status cache.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/intake"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/tracker"
)

// RateLimiter is implemented by *ratelimit.Limiter.
type RateLimiter interface {
	Admit(ctx context.Context, id string) (ratelimit.Decision, error)
	Commit(ctx context.Context, id string, at time.Time)
	Now() time.Time
}

// CaptchaVerifier is implemented by *captcha.Verifier.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// TicketCreator is implemented by *tracker.Client.
type TicketCreator interface {
	Create(ctx context.Context, payload tracker.IssuePayload) (tracker.TicketRef, error)
}

// TicketSearcher is implemented by *tracker.Client.
type TicketSearcher interface {
	Search(ctx context.Context, jql string, fields []string, maxResults int) ([]tracker.Issue, error)
}

// Dispatcher is implemented by *notify.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev notify.TicketCreatedEvent) error
}

// AuditLog is implemented by *audit.Store.
type AuditLog interface {
	Record(ctx context.Context, r audit.Record) error
}

// LookupCache is implemented by *statuscache.Cache.
type LookupCache interface {
	GetOrCompute(ctx context.Context, q intake.StatusQuery, compute func(ctx context.Context) (intake.Lookup, error)) (intake.Lookup, bool, error)
	Invalidate(ctx context.Context, q intake.StatusQuery)
}

// Window renders a cooldown for caller-facing messages: "10 minutes",
// "30 seconds", "1 hour".
func Window(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int((d+time.Second-1)/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
