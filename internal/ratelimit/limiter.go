package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/metrics"
)

// Decision is the result of an admission check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter enforces one accepted request per identity per cooldown.
//
// Admit and Commit are separate calls, so two concurrent requests from the
// same identity may both be admitted before either commits. Both are then
// processed; the window starts from the later commit.
type Limiter struct {
	name     string
	store    Store
	cooldown time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Limiter for the named route. A zero cooldown admits
// everything and records nothing. m may be nil.
func New(name string, store Store, cooldown time.Duration, m *metrics.Metrics) *Limiter {
	return &Limiter{
		name:     name,
		store:    store,
		cooldown: cooldown,
		metrics:  m,
		logger:   slog.Default().With("component", "ratelimit", "route", name),
		now:      time.Now,
	}
}

// WithClock replaces the clock used for admission and commit times.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Cooldown returns the configured window.
func (l *Limiter) Cooldown() time.Duration {
	return l.cooldown
}

// Admit reports whether id may proceed. It never mutates state. Store
// failures admit the request and are logged.
func (l *Limiter) Admit(ctx context.Context, id string) (Decision, error) {
	if l.cooldown <= 0 {
		return Decision{Allowed: true}, nil
	}
	last, ok, err := l.store.Last(ctx, id)
	if err != nil {
		logger.FromContext(ctx).Warn("rate-limit store unavailable, admitting",
			"component", "ratelimit", "route", l.name, "error", err)
		return Decision{Allowed: true}, nil
	}
	if !ok {
		return Decision{Allowed: true}, nil
	}
	elapsed := l.now().Sub(last)
	if elapsed >= l.cooldown {
		return Decision{Allowed: true}, nil
	}
	if l.metrics != nil {
		l.metrics.RateLimitRejections.WithLabelValues(l.name).Inc()
	}
	return Decision{Allowed: false, RetryAfter: l.cooldown - elapsed}, nil
}

// Commit records an accepted request for id at the given time. Errors are
// logged, never returned: the guarded work already happened.
func (l *Limiter) Commit(ctx context.Context, id string, at time.Time) {
	if l.cooldown <= 0 {
		return
	}
	if err := l.store.Record(ctx, id, at, l.cooldown); err != nil {
		logger.FromContext(ctx).Error("failed to record rate-limit entry",
			"component", "ratelimit", "route", l.name, "error", err)
	}
}

// Now returns the limiter's clock reading, for callers committing "now".
func (l *Limiter) Now() time.Time {
	return l.now()
}
