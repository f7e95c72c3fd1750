package notify

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/resilience"
)

// Relay returns a consumer handler that delivers ticket-created events read
// from Kafka through n. Each attempt is bounded by timeout; failures are
// retried per retry and, once exhausted, returned so the offset stays
// uncommitted. Undecodable messages are logged and skipped.
func Relay(n Notifier, timeout time.Duration, retry resilience.RetryConfig, m *metrics.Metrics) kafka.MessageHandler {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return func(ctx context.Context, key, value []byte) error {
		log := logger.FromContext(ctx).With("component", "notify-relay", "channel", n.Name())
		ev, err := kafka.DecodeJSON[TicketCreatedEvent](value)
		if err != nil {
			log.Error("skipping undecodable event", "key", string(key), "error", err)
			m.NotificationsTotal.WithLabelValues(n.Name(), "skipped").Inc()
			return nil
		}

		err = resilience.Retry(ctx, "relay."+n.Name(), retry, func() error {
			return resilience.WithTimeout(ctx, timeout, "notify."+n.Name(), func(ctx context.Context) error {
				return n.Notify(ctx, ev)
			})
		})
		if err != nil {
			m.NotificationsTotal.WithLabelValues(n.Name(), "failure").Inc()
			log.Warn("event not delivered", "ticket_key", ev.TicketKey, "event_id", ev.EventID, "error", logger.Redact(err.Error()))
			return fmt.Errorf("%w: %s: %w", apperrors.ErrNotificationFailed, ev.TicketKey, err)
		}
		m.NotificationsTotal.WithLabelValues(n.Name(), "success").Inc()
		log.Info("event delivered", "ticket_key", ev.TicketKey, "event_id", ev.EventID)
		return nil
	}
}
