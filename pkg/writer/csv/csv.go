// Package csv writes the transactions behind a report as CSV rows.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"

	"github.com/ArionMiles/budgetbrief/pkg/api"
	"github.com/ArionMiles/budgetbrief/pkg/report"
)

// Sections label which part of the report a row came from.
const (
	SectionRegular  = "regular"
	SectionLarge    = "large"
	SectionCredit   = "credit"
	SectionExcluded = "excluded"
)

var headers = []string{
	"Section", "Date", "Source", "Provider", "Merchant", "Description",
	"Category", "Amount", "Currency", "Status",
}

// Writer writes report transactions to an output stream.
type Writer struct {
	out    io.Writer
	logger *slog.Logger
}

// New creates a CSV writer.
func New(out io.Writer, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{out: out, logger: logger}
}

// Write emits a header and one row per transaction: regular, large, credit, then excluded.
func (w *Writer) Write(_ context.Context, rep *report.Report) error {
	cw := csv.NewWriter(w.out)
	if err := cw.Write(headers); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	count := 0
	write := func(section string, txns []api.Txn) error {
		for _, t := range txns {
			if err := cw.Write(record(section, t)); err != nil {
				return fmt.Errorf("writing csv record: %w", err)
			}
			count++
		}
		return nil
	}

	if err := write(SectionRegular, rep.Regular); err != nil {
		return err
	}
	if err := write(SectionLarge, rep.Large); err != nil {
		return err
	}
	if err := write(SectionCredit, rep.Credits); err != nil {
		return err
	}
	excludedTxns := make([]api.Txn, 0, len(rep.Excluded))
	for _, m := range rep.Excluded {
		excludedTxns = append(excludedTxns, m.Txn)
	}
	if err := write(SectionExcluded, excludedTxns); err != nil {
		return err
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}

	w.logger.Debug("wrote transactions to csv", "count", count)
	return nil
}

func record(section string, t api.Txn) []string {
	return []string{
		section,
		t.DateString(),
		t.SourceID,
		t.Provider,
		t.Merchant,
		t.Description,
		report.Categorize(t).String(),
		t.Amount.StringFixed(2),
		t.Currency,
		string(t.Status),
	}
}
