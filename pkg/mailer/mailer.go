// Package mailer delivers report summaries by email.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/budgetbrief/pkg/api"
	"github.com/ArionMiles/budgetbrief/pkg/report"
	"github.com/ArionMiles/budgetbrief/pkg/writer/text"
)

// ErrDisabled is returned by New when no provider is configured.
var ErrDisabled = errors.New("email delivery is disabled")

// Providers.
const (
	ProviderNone    = "none"
	ProviderGmail   = "gmail"
	ProviderMailgun = "mailgun"
)

// Config selects and configures the delivery provider.
type Config struct {
	Provider      string
	MailgunDomain string
	MailgunAPIKey string
	// GoogleClient is an OAuth client with the Gmail send scope.
	GoogleClient *http.Client
}

// New returns the Sender for cfg.Provider wrapped with logging.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Sender, error) {
	var (
		s   Sender
		err error
	)
	switch cfg.Provider {
	case ProviderGmail:
		if cfg.GoogleClient == nil {
			return nil, errors.New("gmail delivery needs a google client")
		}
		s, err = NewGmail(ctx, cfg.GoogleClient)
	case ProviderMailgun:
		s, err = NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey)
	case ProviderNone, "":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithLogging(s, logger), nil
}

// Message is one multipart email.
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Compose renders rep as an email from one address to another.
func Compose(rep *report.Report, commentary, from, to string) (Message, error) {
	plain, err := text.Text(rep, commentary)
	if err != nil {
		return Message{}, err
	}
	html, err := text.HTML(rep, commentary)
	if err != nil {
		return Message{}, err
	}
	return Message{
		From:    from,
		To:      to,
		Subject: Subject(rep),
		Text:    plain,
		HTML:    html,
	}, nil
}

// Subject summarises the outcome in one line.
func Subject(rep *report.Report) string {
	period := fmt.Sprintf("%s to %s", rep.Window.From.Format(api.DateLayout), rep.Window.LastDay().Format(api.DateLayout))
	if rep.OverBudget() {
		return fmt.Sprintf("Budget brief %s: over by %s", period, rep.Remaining.Abs().StringFixed(2))
	}
	return fmt.Sprintf("Budget brief %s: %s left", period, rep.Remaining.StringFixed(2))
}

// Logging wraps a Sender and logs each delivery.
type Logging struct {
	next   Sender
	logger *slog.Logger
}

// WithLogging wraps next.
func WithLogging(next Sender, logger *slog.Logger) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logging{next: next, logger: logger.With("component", "mailer")}
}

// Send delegates to the wrapped sender.
func (l *Logging) Send(ctx context.Context, msg Message) error {
	if err := l.next.Send(ctx, msg); err != nil {
		l.logger.Error("failed to send email", "to", msg.To, "error", err)
		return err
	}
	l.logger.Info("email sent", "to", msg.To, "subject", msg.Subject)
	return nil
}
