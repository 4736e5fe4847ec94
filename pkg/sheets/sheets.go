// Package sheets reads declared excluded expenses from Google Sheets and
// appends report summaries to a history tab.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/shopspring/decimal"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/budgetbrief/pkg/api"
	"github.com/ArionMiles/budgetbrief/pkg/report"
)

// Scope grants read and append access to the user's spreadsheets.
const Scope = sheets.SpreadsheetsScope

// DefaultRetryDelay is the wait after a rate limited call.
const DefaultRetryDelay = 60 * time.Second

// dateLayouts are tried in order when reading the date column.
var dateLayouts = []string{
	api.DateLayout,
	"02/01/2006",
	"2/1/2006",
	"02 Jan 2006",
	"2 January 2006",
}

// historyHeader is written above the first appended summary.
var historyHeader = []any{
	"Generated", "From", "To", "Mode", "Budget", "Spent", "Remaining",
	"Large", "Credits", "Excluded", "Run ID",
}

// Config holds configuration for the Sheets client.
type Config struct {
	// SpreadsheetID is the spreadsheet holding both tabs.
	SpreadsheetID string
	// SheetName is the tab listing excluded expenses as Date, Vendor, Amount, Note.
	SheetName string
	// HistorySheetName is the tab AppendReport writes to.
	HistorySheetName string
	// RetryDelay defaults to DefaultRetryDelay.
	RetryDelay time.Duration
}

// Client talks to one spreadsheet.
type Client struct {
	svc    *sheets.Service
	cfg    Config
	logger *slog.Logger
}

// New creates a Client. opts are applied after the HTTP client.
func New(ctx context.Context, httpClient *http.Client, cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("spreadsheet id is required")
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	svc, err := sheets.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &Client{
		svc:    svc,
		cfg:    cfg,
		logger: logger.With("component", "sheets"),
	}, nil
}

// ExcludedExpenses reads the excluded tab. Rows with an unreadable date or
// amount are skipped with a warning. Amounts are returned as positive values.
func (c *Client) ExcludedExpenses(ctx context.Context) ([]api.ExcludedExpense, error) {
	readRange := fmt.Sprintf("%s!A2:D", c.cfg.SheetName)

	var resp *sheets.ValueRange
	err := c.withRetry(ctx, func() error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Get(c.cfg.SpreadsheetID, readRange).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", readRange, err)
	}

	rows := make([]api.ExcludedExpense, 0, len(resp.Values))
	for i, values := range resp.Values {
		row, err := parseRow(values)
		if err != nil {
			// Row 1 is the header.
			c.logger.Warn("skipping excluded expense row", "row", i+2, "error", err)
			continue
		}
		rows = append(rows, row)
	}

	c.logger.Debug("loaded excluded expenses", "rows", len(rows), "skipped", len(resp.Values)-len(rows))
	return rows, nil
}

func parseRow(values []any) (api.ExcludedExpense, error) {
	cell := func(i int) string {
		if i >= len(values) {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(values[i]))
	}

	var row api.ExcludedExpense
	date, err := parseDate(cell(0))
	if err != nil {
		return row, err
	}
	row.Date = date

	row.Vendor = cell(1)
	if row.Vendor == "" {
		return row, errors.New("vendor is empty")
	}

	amount, err := parseAmount(cell(2))
	if err != nil {
		return row, err
	}
	row.Amount = amount
	row.Note = cell(3)
	return row, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("date is empty")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q is not recognised", s)
}

func parseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("£", "", "$", "", "€", "", ",", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not a number", s)
	}
	if d.IsZero() {
		return decimal.Zero, errors.New("amount is zero")
	}
	return d.Abs(), nil
}

// AppendReport records a one-line summary of rep on the history tab.
func (c *Client) AppendReport(ctx context.Context, rep *report.Report) error {
	if c.cfg.HistorySheetName == "" {
		return errors.New("history sheet name is not configured")
	}

	values := [][]any{summaryRow(rep)}
	empty, err := c.historyEmpty(ctx)
	if err != nil {
		return err
	}
	if empty {
		values = append([][]any{historyHeader}, values...)
	}

	writeRange := fmt.Sprintf("%s!A1:K1", c.cfg.HistorySheetName)
	writeReq := sheets.ValueRange{Values: values}

	err = c.withRetry(ctx, func() error {
		_, err := c.svc.Spreadsheets.Values.Append(c.cfg.SpreadsheetID, writeRange, &writeReq).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("appending report summary: %w", err)
	}

	c.logger.Info("recorded report summary", "run_id", rep.RunID, "sheet", c.cfg.HistorySheetName)
	return nil
}

func (c *Client) historyEmpty(ctx context.Context) (bool, error) {
	var resp *sheets.ValueRange
	err := c.withRetry(ctx, func() error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Get(c.cfg.SpreadsheetID, c.cfg.HistorySheetName+"!A1:A1").Context(ctx).Do()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("reading history header: %w", err)
	}
	return len(resp.Values) == 0, nil
}

func summaryRow(rep *report.Report) []any {
	return []any{
		rep.GeneratedAt.Format(time.RFC3339),
		rep.Window.From.Format(api.DateLayout),
		rep.Window.LastDay().Format(api.DateLayout),
		string(rep.Window.Mode),
		rep.Budget.Amount.StringFixed(2),
		rep.Spent.StringFixed(2),
		rep.Remaining.StringFixed(2),
		rep.LargeTotal.StringFixed(2),
		rep.CreditTotal.StringFixed(2),
		len(rep.Excluded),
		rep.RunID,
	}
}

func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
				c.logger.Warn("rate limited, will retry", "error", err)
				return true
			}
			return false
		}),
		retry.Attempts(3),
		retry.Delay(c.cfg.RetryDelay),
		retry.LastErrorOnly(true),
	)
}
