package notify

import (
	"fmt"
	"strings"
)

// Subject is the one-line summary used for mail.
func Subject(ev TicketCreatedEvent) string {
	return fmt.Sprintf("[%s] New integration request from %s", ev.TicketKey, ev.Company)
}

// Body is the plain-text mail body.
func Body(ev TicketCreatedEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A new integration request was submitted.\n\n")
	fmt.Fprintf(&b, "Ticket:     %s\n", ev.TicketKey)
	if ev.TicketURL != "" {
		fmt.Fprintf(&b, "Link:       %s\n", ev.TicketURL)
	}
	fmt.Fprintf(&b, "Company:    %s\n", ev.Company)
	fmt.Fprintf(&b, "Contact:    %s <%s>\n", ev.Name, ev.Email)
	fmt.Fprintf(&b, "Format:     %s\n", ev.FormatType)
	fmt.Fprintf(&b, "Messages:   %s\n", strings.Join(ev.Messages, ", "))
	if ev.Connection != "" {
		fmt.Fprintf(&b, "Connection: %s\n", ev.Connection)
	}
	if ev.Notes != "" {
		fmt.Fprintf(&b, "\nNotes:\n%s\n", ev.Notes)
	}
	return b.String()
}
