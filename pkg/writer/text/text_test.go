package text

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/budgetbrief/pkg/api"
	"github.com/ArionMiles/budgetbrief/pkg/report"
)

func overBudget() *report.Report {
	from := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	var merchants []report.MerchantTotal
	for i := range 8 {
		merchants = append(merchants, report.MerchantTotal{Merchant: fmt.Sprintf("Shop %d", i), Total: decimal.NewFromInt(int64(80 - i)), Count: 1})
	}
	return &report.Report{
		Window:    api.DateWindow{From: from, To: from.AddDate(0, 1, 0), Mode: api.ModeMonthly},
		Budget:    api.BudgetInfo{Amount: decimal.NewFromInt(100), Source: api.BudgetMonthly, Days: 31},
		Spent:     decimal.NewFromInt(130),
		Remaining: decimal.NewFromInt(-30),
		Merchants: merchants,
		Warnings:  []string{"<script>alert(1)</script>"},
		Reconnect: []string{"amex", "monzo"},
	}
}

func TestTextOverBudget(t *testing.T) {
	rep := overBudget()
	out, err := Text(rep, "Spending ran hot.")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}

	for _, want := range []string{
		"monthly 2024-10-01 to 2024-10-31",
		"Remaining:  -30.00  OVER BUDGET",
		"Reconnect required: amex, monzo",
		"Spending ran hot.",
		"Shop 4",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Shop 5") {
		t.Errorf("merchant table should stop at %d entries", TopMerchants)
	}
	if len(rep.Merchants) != 8 {
		t.Errorf("report merchants mutated: got %d", len(rep.Merchants))
	}
}

func TestHTMLEscapes(t *testing.T) {
	out, err := HTML(overBudget(), "")
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	if strings.Contains(out, "<script>") {
		t.Error("warning text was not escaped")
	}
	if !strings.Contains(out, "#c62828") || !strings.Contains(out, "over budget") {
		t.Errorf("over budget styling missing:\n%s", out)
	}
}
