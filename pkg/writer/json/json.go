// Package json writes a report as an indented JSON document.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/ArionMiles/budgetbrief/pkg/report"
)

// Document is the JSON shape: the report plus optional commentary.
type Document struct {
	*report.Report
	OverBudget bool   `json:"over_budget"`
	Commentary string `json:"commentary,omitempty"`
}

// Writer writes reports as JSON.
type Writer struct {
	out        io.Writer
	commentary string
	logger     *slog.Logger
}

// New creates a JSON writer.
func New(out io.Writer, commentary string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{out: out, commentary: commentary, logger: logger}
}

// Write encodes rep.
func (w *Writer) Write(_ context.Context, rep *report.Report) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	doc := Document{Report: rep, OverBudget: rep.OverBudget(), Commentary: w.commentary}
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	w.logger.Debug("wrote report json", "run_id", rep.RunID)
	return nil
}
