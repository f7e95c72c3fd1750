package notify

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/kafka"
)

// Publisher is the producer side of the ticket-created topic.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// KafkaNotifier publishes events for the notifier worker, keyed by ticket.
type KafkaNotifier struct {
	publisher Publisher
}

func NewKafkaNotifier(p Publisher) *KafkaNotifier {
	return &KafkaNotifier{publisher: p}
}

func (k *KafkaNotifier) Name() string { return "kafka" }

func (k *KafkaNotifier) Notify(ctx context.Context, ev TicketCreatedEvent) error {
	return k.publisher.Publish(ctx, kafka.Event{Key: ev.TicketKey, Value: ev})
}
