package report

import (
	"cmp"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/budgetbrief/pkg/api"
)

// Partition separates spend by size and sets credits aside.
type Partition struct {
	Regular []api.Txn `json:"regular"`
	Large   []api.Txn `json:"large"`
	Credits []api.Txn `json:"credits"`
}

// Split puts spend at or above threshold into Large and the rest into Regular.
// A threshold that is not positive disables the large bucket.
func Split(txns []api.Txn, threshold decimal.Decimal) Partition {
	var p Partition
	for _, txn := range txns {
		switch {
		case !txn.IsSpend():
			p.Credits = append(p.Credits, txn)
		case threshold.IsPositive() && txn.Amount.Abs().GreaterThanOrEqual(threshold):
			p.Large = append(p.Large, txn)
		default:
			p.Regular = append(p.Regular, txn)
		}
	}
	return p
}

// Total sums the absolute amounts.
func Total(txns []api.Txn) decimal.Decimal {
	sum := decimal.Zero
	for _, txn := range txns {
		sum = sum.Add(txn.Amount.Abs())
	}
	return sum
}

// MerchantTotal is the spend at one merchant.
type MerchantTotal struct {
	Merchant string          `json:"merchant"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

// MerchantTotals groups by label, case-insensitively, largest total first.
// The first spelling seen is kept for display.
func MerchantTotals(txns []api.Txn) []MerchantTotal {
	index := make(map[string]int)
	var out []MerchantTotal
	for _, txn := range txns {
		label := strings.TrimSpace(txn.Label())
		if label == "" {
			label = "Unknown"
		}
		key := strings.ToLower(label)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, MerchantTotal{Merchant: label, Total: decimal.Zero})
		}
		out[i].Total = out[i].Total.Add(txn.Amount.Abs())
		out[i].Count++
	}
	slices.SortStableFunc(out, func(a, b MerchantTotal) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Merchant, b.Merchant)
	})
	return out
}

// CategoryTotal is the spend in one category.
type CategoryTotal struct {
	Category Category        `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

// CategoryTotals groups by category, largest total first.
func CategoryTotals(txns []api.Txn) []CategoryTotal {
	totals := make(map[Category]*CategoryTotal)
	for _, txn := range txns {
		cat := Categorize(txn)
		t, ok := totals[cat]
		if !ok {
			t = &CategoryTotal{Category: cat, Total: decimal.Zero}
			totals[cat] = t
		}
		t.Total = t.Total.Add(txn.Amount.Abs())
		t.Count++
	}

	out := make([]CategoryTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	slices.SortFunc(out, func(a, b CategoryTotal) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return out
}

// TopLarge returns up to n transactions, biggest spend first. n <= 0 returns all.
func TopLarge(large []api.Txn, n int) []api.Txn {
	out := slices.Clone(large)
	slices.SortStableFunc(out, func(a, b api.Txn) int {
		return b.Amount.Abs().Cmp(a.Amount.Abs())
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
