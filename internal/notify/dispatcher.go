package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/resilience"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("dispatcher closed")

// Dispatcher runs every notifier on its own goroutine, detached from the
// caller's cancellation and bounded by a timeout.
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. m may be nil.
func NewDispatcher(timeout time.Duration, m *metrics.Metrics, notifiers ...Notifier) *Dispatcher {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Dispatcher{
		notifiers: notifiers,
		timeout:   timeout,
		metrics:   m,
		logger:    slog.Default().With("component", "notify"),
	}
}

// Enabled reports whether any channel is configured.
func (d *Dispatcher) Enabled() bool {
	return len(d.notifiers) > 0
}

// Dispatch starts delivery of ev and returns immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, ev TicketCreatedEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	detached := context.WithoutCancel(ctx)
	for _, n := range d.notifiers {
		d.wg.Add(1)
		d.metrics.NotificationsInFlight.Inc()
		go func(n Notifier) {
			defer d.wg.Done()
			defer d.metrics.NotificationsInFlight.Dec()
			d.deliver(detached, n, ev)
		}(n)
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, n Notifier, ev TicketCreatedEvent) {
	start := time.Now()
	err := resilience.WithTimeout(ctx, d.timeout, "notify."+n.Name(), func(ctx context.Context) error {
		return n.Notify(ctx, ev)
	})
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", apperrors.ErrNotificationFailed, n.Name(), err)
		d.metrics.NotificationsTotal.WithLabelValues(n.Name(), "failure").Inc()
		logger.FromContext(ctx).Warn("notification failed",
			"component", "notify",
			"channel", n.Name(),
			"ticket_key", ev.TicketKey,
			"error", logger.Redact(err.Error()),
		)
		return
	}
	d.metrics.NotificationsTotal.WithLabelValues(n.Name(), "success").Inc()
	logger.FromContext(ctx).Debug("notification sent",
		"component", "notify",
		"channel", n.Name(),
		"ticket_key", ev.TicketKey,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Close rejects further dispatches and waits for in-flight deliveries
// until ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining notifications: %w", ctx.Err())
	}
}
