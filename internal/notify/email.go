package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"time"

	"github.com/emersion/go-sasl"
	gomail "github.com/emersion/go-message/mail"
	"github.com/emersion/go-smtp"

	"github.com/Adithya-Monish-Kumar-K/integration-intake-gateway/pkg/config"
)

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

// EmailNotifier mails the intake team through an SMTP relay.
type EmailNotifier struct {
	addr     string
	username string
	password string
	from     *gomail.Address
	to       []*gomail.Address
	send     SendFunc
	now      func() time.Time
}

// NewEmailNotifier parses the configured addresses.
func NewEmailNotifier(cfg config.EmailConfig) (*EmailNotifier, error) {
	if cfg.SMTPAddr == "" || len(cfg.To) == 0 {
		return nil, errors.New("email notifier requires smtpAddr and at least one recipient")
	}
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("parsing notify from address: %w", err)
	}
	to := make([]*gomail.Address, 0, len(cfg.To))
	for _, raw := range cfg.To {
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing notify recipient %q: %w", raw, err)
		}
		to = append(to, &gomail.Address{Name: addr.Name, Address: addr.Address})
	}
	return &EmailNotifier{
		addr:     cfg.SMTPAddr,
		username: cfg.Username,
		password: cfg.Password,
		from:     &gomail.Address{Name: from.Name, Address: from.Address},
		to:       to,
		send:     smtp.SendMail,
		now:      time.Now,
	}, nil
}

func (e *EmailNotifier) Name() string { return "email" }

// Notify composes and sends the mail. The SMTP call has no context; the
// dispatcher's timeout bounds how long the caller waits for it.
func (e *EmailNotifier) Notify(ctx context.Context, ev TicketCreatedEvent) error {
	msg, err := e.Compose(ev)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth sasl.Client
	if e.username != "" {
		auth = sasl.NewPlainClient("", e.username, e.password)
	}
	rcpts := make([]string, 0, len(e.to))
	for _, a := range e.to {
		rcpts = append(rcpts, a.Address)
	}
	if err := e.send(e.addr, auth, e.from.Address, rcpts, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("sending mail via %s: %w", e.addr, err)
	}
	return nil
}

// Compose renders ev as an RFC 5322 message.
func (e *EmailNotifier) Compose(ev TicketCreatedEvent) ([]byte, error) {
	var h gomail.Header
	h.SetDate(e.now())
	h.SetAddressList("From", []*gomail.Address{e.from})
	h.SetAddressList("To", e.to)
	if ev.Email != "" {
		h.SetAddressList("Reply-To", []*gomail.Address{{Name: ev.Name, Address: ev.Email}})
	}
	h.SetSubject(Subject(ev))
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generating message id: %w", err)
	}

	var buf bytes.Buffer
	w, err := gomail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating mail writer: %w", err)
	}
	if _, err := io.WriteString(w, Body(ev)); err != nil {
		return nil, fmt.Errorf("writing mail body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing mail writer: %w", err)
	}
	return buf.Bytes(), nil
}
