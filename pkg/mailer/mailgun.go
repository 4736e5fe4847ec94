package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"
)

// sendTimeout bounds one Mailgun API call.
const sendTimeout = 20 * time.Second

// Mailgun sends through the Mailgun HTTP API.
type Mailgun struct {
	mg mailgun.Mailgun
}

// NewMailgun creates a Mailgun sender for domain.
func NewMailgun(domain, apiKey string) (*Mailgun, error) {
	if domain == "" || apiKey == "" {
		return nil, errors.New("mailgun domain and api key are required")
	}
	return &Mailgun{mg: mailgun.NewMailgun(domain, apiKey)}, nil
}

// SetAPIBase points the client at another Mailgun region or a test server.
func (m *Mailgun) SetAPIBase(base string) {
	m.mg.SetAPIBase(base)
}

// Send delivers msg.
func (m *Mailgun) Send(ctx context.Context, msg Message) error {
	message := m.mg.NewMessage(msg.From, msg.Subject, msg.Text, msg.To)
	if msg.HTML != "" {
		message.SetHtml(msg.HTML)
	}
	message.AddTag("budget-brief")

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	resp, _, err := m.mg.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("mailgun send failed: %w (response: %s)", err, resp)
	}
	return nil
}
