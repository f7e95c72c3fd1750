// Package notify fans out best-effort notifications about created tickets.
// Delivery failures are logged and counted, never returned to the request
// that created the ticket.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/internal/intake"
)

// Notifier delivers one event over one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev TicketCreatedEvent) error
}

// TicketCreatedEvent describes a ticket created from a submission. It is
// also the payload of the ticket-created Kafka topic.
type TicketCreatedEvent struct {
	EventID    string    `json:"eventId"`
	RequestID  string    `json:"requestId,omitempty"`
	TicketID   string    `json:"ticketId,omitempty"`
	TicketKey  string    `json:"ticketKey"`
	TicketURL  string    `json:"ticketUrl,omitempty"`
	FormatType string    `json:"formatType"`
	Messages   []string  `json:"messages"`
	Name       string    `json:"name"`
	Company    string    `json:"company"`
	Email      string    `json:"email"`
	Connection string    `json:"connection,omitempty"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewTicketCreatedEvent builds the event for a created ticket.
func NewTicketCreatedEvent(sub intake.Submission, receipt intake.Receipt, requestID string, at time.Time) TicketCreatedEvent {
	return TicketCreatedEvent{
		EventID:    uuid.NewString(),
		RequestID:  requestID,
		TicketID:   receipt.TicketID,
		TicketKey:  receipt.TicketKey,
		TicketURL:  receipt.TicketURL,
		FormatType: sub.FormatType,
		Messages:   append([]string(nil), sub.Messages...),
		Name:       sub.Name,
		Company:    sub.Company,
		Email:      sub.Email,
		Connection: sub.Connection,
		Notes:      sub.Notes,
		CreatedAt:  at.UTC(),
	}
}
