// Package commentary asks a language model for a short note on a report.
package commentary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/ArionMiles/budgetbrief/pkg/api"
	"github.com/ArionMiles/budgetbrief/pkg/report"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// requestTimeout bounds one model call.
const requestTimeout = 30 * time.Second

// Summarizer writes a short note about a report.
type Summarizer interface {
	Summarize(ctx context.Context, rep *report.Report) (string, error)
}

// Config holds configuration for the Gemini summarizer.
type Config struct {
	APIKey string
	Model  string
	// BaseURL and HTTPClient override the API endpoint, mainly for tests.
	BaseURL    string
	HTTPClient *http.Client
}

// Gemini summarizes with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini summarizer.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1", BaseURL: cfg.BaseURL},
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model}, nil
}

// Summarize sends the report figures and returns the model's note.
func (g *Gemini) Summarize(ctx context.Context, rep *report.Report) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: Prompt(rep)}},
		},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generating commentary: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("generating commentary: empty response from model")
	}
	return text, nil
}

// Prompt describes rep using totals only. Descriptions of individual
// transactions and account identifiers are never sent.
func Prompt(rep *report.Report) string {
	var b strings.Builder
	b.WriteString("You are writing two or three friendly sentences for a personal budget email.\n")
	b.WriteString("Comment on how spending went against the budget and name the biggest category.\n")
	b.WriteString("Plain text only. No greeting, no sign-off, no Markdown.\n\n")

	fmt.Fprintf(&b, "Period: %s to %s (%s, %d days)\n",
		rep.Window.From.Format(api.DateLayout), rep.Window.LastDay().Format(api.DateLayout), rep.Window.Mode, rep.Budget.Days)
	fmt.Fprintf(&b, "Budget: %s\n", rep.Budget.Amount.StringFixed(2))
	fmt.Fprintf(&b, "Spent: %s\n", rep.Spent.StringFixed(2))
	fmt.Fprintf(&b, "Remaining: %s\n", rep.Remaining.StringFixed(2))
	fmt.Fprintf(&b, "Large purchases kept out of the budget: %s across %d\n", rep.LargeTotal.StringFixed(2), len(rep.Large))
	fmt.Fprintf(&b, "Refunds and credits: %s\n", rep.CreditTotal.StringFixed(2))

	if len(rep.Categories) > 0 {
		b.WriteString("Spend by category:\n")
		for _, c := range rep.Categories {
			fmt.Fprintf(&b, "- %s: %s (%d)\n", c.Category, c.Total.StringFixed(2), c.Count)
		}
	}
	return b.String()
}

// Best returns the commentary or an empty string. A nil summarizer or a
// failed call never blocks a report.
func Best(ctx context.Context, s Summarizer, rep *report.Report, logger *slog.Logger) string {
	if s == nil {
		return ""
	}
	if logger == nil {
		logger = slog.Default()
	}
	text, err := s.Summarize(ctx, rep)
	if err != nil {
		logger.Warn("commentary unavailable", "error", err)
		return ""
	}
	return text
}
