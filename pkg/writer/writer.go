// Package writer selects a report output format.
package writer

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ArionMiles/budgetbrief/pkg/report"
	"github.com/ArionMiles/budgetbrief/pkg/writer/csv"
	"github.com/ArionMiles/budgetbrief/pkg/writer/json"
	"github.com/ArionMiles/budgetbrief/pkg/writer/text"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Writer renders one report.
type Writer interface {
	Write(ctx context.Context, rep *report.Report) error
}

// New returns the writer for format. commentary is ignored by csv.
func New(format string, out io.Writer, commentary string, logger *slog.Logger) (Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch format {
	case FormatText, "":
		return text.New(out, commentary, logger.With("writer", FormatText)), nil
	case FormatJSON:
		return json.New(out, commentary, logger.With("writer", FormatJSON)), nil
	case FormatCSV:
		return csv.New(out, logger.With("writer", FormatCSV)), nil
	default:
		return nil, fmt.Errorf("unknown format %q (want text, json or csv)", format)
	}
}
