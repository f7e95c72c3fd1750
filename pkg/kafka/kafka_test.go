package kafka

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/logger"
)

type ticketEvent struct {
	TicketKey string `json:"ticketKey"`
	Company   string `json:"company"`
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := logger.WithRequestID(context.Background(), "req-123")
	msg, err := encode(ctx, Event{Key: "EDI-42", Value: ticketEvent{TicketKey: "EDI-42", Company: "Acme"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Key) != "EDI-42" {
		t.Errorf("key = %q", msg.Key)
	}
	got := logger.RequestID(messageContext(context.Background(), msg))
	if got != "req-123" {
		t.Errorf("request id = %q", got)
	}

	ev, err := DecodeJSON[ticketEvent](msg.Value)
	if err != nil || ev.Company != "Acme" {
		t.Errorf("decoded = %+v, %v", ev, err)
	}
}

func TestEncodeWithoutRequestID(t *testing.T) {
	msg, err := encode(context.Background(), Event{Key: "k", Value: map[string]int{"a": 1}})
	if err != nil {
		t.Fatal(err)
	}
	if len(msg.Headers) != 0 {
		t.Errorf("headers = %v", msg.Headers)
	}
	if _, err := encode(context.Background(), Event{Value: make(chan int)}); err == nil {
		t.Error("expected marshal error")
	}
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	if _, err := DecodeJSON[ticketEvent]([]byte("{")); err == nil {
		t.Fatal("expected error")
	}
}

// TestPublishConsume needs a broker; set INTAKE_TEST_KAFKA_BROKERS to run it.
func TestPublishConsume(t *testing.T) {
	brokers := os.Getenv("INTAKE_TEST_KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("skipping: INTAKE_TEST_KAFKA_BROKERS not set")
	}
	cfg := config.KafkaConfig{
		Brokers:       strings.Split(brokers, ","),
		ConsumerGroup: "intake-test-" + time.Now().Format("150405.000"),
	}
	topic := "intake-test-ticket-created"

	p := NewProducer(cfg, topic)
	defer p.Close()
	ctx, cancel := context.WithTimeout(logger.WithRequestID(context.Background(), "req-live"), 30*time.Second)
	defer cancel()
	if err := p.Publish(ctx, Event{Key: "EDI-1", Value: ticketEvent{TicketKey: "EDI-1"}}); err != nil {
		t.Skipf("skipping: kafka unavailable: %v", err)
	}

	got := make(chan string, 1)
	c := NewConsumer(cfg, topic, func(ctx context.Context, key, value []byte) error {
		select {
		case got <- logger.RequestID(ctx):
		default:
		}
		cancel()
		return nil
	})
	c.Start(ctx)
	select {
	case id := <-got:
		if id != "req-live" {
			t.Errorf("request id = %q", id)
		}
	default:
		t.Fatal("no message consumed")
	}
}
