// Package text renders a report as a plain-text or HTML summary.
package text

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"io"
	"log/slog"
	texttemplate "text/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/budgetbrief/pkg/api"
	"github.com/ArionMiles/budgetbrief/pkg/report"
)

// TopMerchants caps the merchant table.
const TopMerchants = 5

var funcs = map[string]any{
	"money": func(d decimal.Decimal) string { return d.Abs().StringFixed(2) },
	"day":   func(t time.Time) string { return t.Format(api.DateLayout) },
	"pct":   func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
}

const textBody = `Budget brief: {{.Window.Mode}} {{day .Window.From}} to {{day .Window.LastDay}}

Budget:     {{money .Budget.Amount}} ({{.Budget.Source}}, {{.Budget.Days}} days, {{money .Budget.DailyRate}}/day)
Spent:      {{money .Spent}}
Remaining:  {{if .OverBudget}}-{{end}}{{money .Remaining}}{{if .OverBudget}}  OVER BUDGET{{end}}
Large:      {{money .LargeTotal}} across {{len .Large}} (at or above {{money .Threshold}})
Credits:    {{money .CreditTotal}} across {{len .Credits}}
{{- if .Merchants}}

Top merchants
{{- range .Merchants}}
  {{printf "%-28s" .Merchant}} {{printf "%10s" (money .Total)}}  x{{.Count}}
{{- end}}
{{- end}}
{{- if .Categories}}

Categories
{{- range .Categories}}
  {{printf "%-28s" .Category.String}} {{printf "%10s" (money .Total)}}  x{{.Count}}
{{- end}}
{{- end}}
{{- if .Large}}

Large transactions
{{- range .Large}}
  {{day .Date}}  {{printf "%-28s" .Label}} {{printf "%10s" (money .Amount)}}
{{- end}}
{{- end}}
{{- if .Excluded}}

Excluded expenses
{{- range .Excluded}}
  {{day .Txn.Date}}  {{printf "%-28s" .Txn.Label}} {{printf "%10s" (money .Txn.Amount)}}  matched {{.Row.Vendor}} ({{.Rule}}, {{pct .Confidence}})
{{- end}}
{{- end}}
{{- if .Reconnect}}

Reconnect required: {{range $i, $c := .Reconnect}}{{if $i}}, {{end}}{{$c}}{{end}}
{{- end}}
{{- if .Warnings}}

Warnings
{{- range .Warnings}}
  - {{.}}
{{- end}}
{{- end}}
{{- if .Commentary}}

{{.Commentary}}
{{- end}}
`

const htmlBody = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Budget brief</title></head>
<body style="font-family: sans-serif; max-width: 640px;">
<h2>Budget brief: {{.Window.Mode}} {{day .Window.From}} to {{day .Window.LastDay}}</h2>
<table cellpadding="4">
<tr><td>Budget</td><td align="right">{{money .Budget.Amount}}</td><td>{{.Budget.Source}}, {{.Budget.Days}} days, {{money .Budget.DailyRate}}/day</td></tr>
<tr><td>Spent</td><td align="right">{{money .Spent}}</td><td></td></tr>
<tr><td>Remaining</td><td align="right" style="color: {{if .OverBudget}}#c62828{{else}}#2e7d32{{end}};">{{if .OverBudget}}-{{end}}{{money .Remaining}}</td><td>{{if .OverBudget}}over budget{{end}}</td></tr>
<tr><td>Large</td><td align="right">{{money .LargeTotal}}</td><td>{{len .Large}} at or above {{money .Threshold}}</td></tr>
<tr><td>Credits</td><td align="right">{{money .CreditTotal}}</td><td>{{len .Credits}}</td></tr>
</table>
{{- if .Commentary}}
<p>{{.Commentary}}</p>
{{- end}}
{{- if .Merchants}}
<h3>Top merchants</h3>
<table cellpadding="4">
{{- range .Merchants}}
<tr><td>{{.Merchant}}</td><td align="right">{{money .Total}}</td><td>x{{.Count}}</td></tr>
{{- end}}
</table>
{{- end}}
{{- if .Categories}}
<h3>Categories</h3>
<table cellpadding="4">
{{- range .Categories}}
<tr><td>{{.Category.String}}</td><td align="right">{{money .Total}}</td><td>x{{.Count}}</td></tr>
{{- end}}
</table>
{{- end}}
{{- if .Large}}
<h3>Large transactions</h3>
<table cellpadding="4">
{{- range .Large}}
<tr><td>{{day .Date}}</td><td>{{.Label}}</td><td align="right">{{money .Amount}}</td></tr>
{{- end}}
</table>
{{- end}}
{{- if .Excluded}}
<h3>Excluded expenses</h3>
<table cellpadding="4">
{{- range .Excluded}}
<tr><td>{{day .Txn.Date}}</td><td>{{.Txn.Label}}</td><td align="right">{{money .Txn.Amount}}</td><td>{{.Row.Vendor}} ({{.Rule}}, {{pct .Confidence}})</td></tr>
{{- end}}
</table>
{{- end}}
{{- if .Reconnect}}
<p style="color: #c62828;">Reconnect required: {{range $i, $c := .Reconnect}}{{if $i}}, {{end}}{{$c}}{{end}}</p>
{{- end}}
{{- if .Warnings}}
<h3>Warnings</h3>
<ul>
{{- range .Warnings}}
<li>{{.}}</li>
{{- end}}
</ul>
{{- end}}
</body>
</html>
`

var (
	textTmpl = texttemplate.Must(texttemplate.New("text").Funcs(funcs).Parse(textBody))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Funcs(funcs).Parse(htmlBody))
)

type view struct {
	*report.Report
	Commentary string
}

func newView(rep *report.Report, commentary string) view {
	v := view{Report: rep, Commentary: commentary}
	if len(rep.Merchants) > TopMerchants {
		// Shallow copy so the cached report keeps its full list.
		trimmed := *rep
		trimmed.Merchants = rep.Merchants[:TopMerchants]
		v.Report = &trimmed
	}
	return v
}

// Text renders the plain-text summary.
func Text(rep *report.Report, commentary string) (string, error) {
	var buf bytes.Buffer
	if err := textTmpl.Execute(&buf, newView(rep, commentary)); err != nil {
		return "", fmt.Errorf("rendering text summary: %w", err)
	}
	return buf.String(), nil
}

// HTML renders the HTML summary.
func HTML(rep *report.Report, commentary string) (string, error) {
	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, newView(rep, commentary)); err != nil {
		return "", fmt.Errorf("rendering html summary: %w", err)
	}
	return buf.String(), nil
}

// Writer prints the plain-text summary to an output stream.
type Writer struct {
	out        io.Writer
	commentary string
	logger     *slog.Logger
}

// New creates a Writer. commentary is appended when non-empty.
func New(out io.Writer, commentary string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{out: out, commentary: commentary, logger: logger}
}

// Write renders rep.
func (w *Writer) Write(_ context.Context, rep *report.Report) error {
	body, err := Text(rep, w.commentary)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w.out, body); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	w.logger.Debug("wrote text summary", "run_id", rep.RunID)
	return nil
}
