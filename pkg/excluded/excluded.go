// Package excluded removes transactions that match declared excluded expenses,
// such as work costs that will be reimbursed.
package excluded

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/ArionMiles/budgetbrief/pkg/api"
)

// Defaults for Config.
const (
	DefaultMaxDayDistance = 3
	substringScore        = 0.8
)

// DefaultAmountTolerance is one penny.
var DefaultAmountTolerance = decimal.New(1, -2)

// Config tunes the matcher.
type Config struct {
	// MaxDayDistance is where the date score reaches zero.
	MaxDayDistance int
	// AmountTolerance is the largest absolute difference still treated as the same amount.
	AmountTolerance decimal.Decimal
}

// Rule identifies which combination rule accepted a match.
type Rule int

const (
	RuleNone Rule = iota
	// RuleDateAndVendor needs a near date and a fair vendor match.
	RuleDateAndVendor
	// RuleVendor accepts a strong vendor match anywhere in the window.
	RuleVendor
	// RuleLoose accepts a nearby date with a weaker vendor match.
	RuleLoose
)

func (r Rule) String() string {
	switch r {
	case RuleDateAndVendor:
		return "date+vendor"
	case RuleVendor:
		return "vendor"
	case RuleLoose:
		return "loose"
	default:
		return "none"
	}
}

// MarshalText encodes the rule name.
func (r Rule) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Match records one excluded row suppressing one transaction.
type Match struct {
	Txn         api.Txn             `json:"txn"`
	Row         api.ExcludedExpense `json:"row"`
	DateScore   float64             `json:"date_score"`
	VendorScore float64             `json:"vendor_score"`
	Confidence  float64             `json:"confidence"`
	Rule        Rule                `json:"rule"`
}

// Result splits the input into kept transactions and matches.
type Result struct {
	Kept    []api.Txn
	Matches []Match
}

// Matcher pairs transactions with excluded rows.
type Matcher struct {
	maxDays   int
	tolerance decimal.Decimal
}

// New creates a Matcher, filling unset Config fields with defaults.
func New(cfg Config) *Matcher {
	if cfg.MaxDayDistance <= 0 {
		cfg.MaxDayDistance = DefaultMaxDayDistance
	}
	if !cfg.AmountTolerance.IsPositive() {
		cfg.AmountTolerance = DefaultAmountTolerance
	}
	return &Matcher{
		maxDays:   cfg.MaxDayDistance,
		tolerance: cfg.AmountTolerance,
	}
}

// Filter drops every spend transaction that an excluded row matches.
//
// Rows dated outside the window are ignored. Transactions are scanned in input
// order and the first one to match a row consumes it, so a row suppresses at
// most one transaction. Credits always pass through.
func (m *Matcher) Filter(txns []api.Txn, rows []api.ExcludedExpense, window api.DateWindow) Result {
	res := Result{Kept: make([]api.Txn, 0, len(txns))}

	var candidates []api.ExcludedExpense
	for _, row := range rows {
		if window.Contains(row.Date) {
			candidates = append(candidates, row)
		}
	}
	used := make([]bool, len(candidates))

	for _, txn := range txns {
		matched := false
		if txn.IsSpend() {
			for i, row := range candidates {
				if used[i] {
					continue
				}
				if match, ok := m.Match(txn, row); ok {
					used[i] = true
					res.Matches = append(res.Matches, match)
					matched = true
					break
				}
			}
		}
		if !matched {
			res.Kept = append(res.Kept, txn)
		}
	}
	return res
}

// Match scores a single transaction against a single row. It does not check the window.
func (m *Matcher) Match(txn api.Txn, row api.ExcludedExpense) (Match, bool) {
	if txn.Amount.Abs().Sub(row.Amount.Abs()).Abs().GreaterThan(m.tolerance) {
		return Match{}, false
	}

	date := DateScore(txn.Date, row.Date, m.maxDays)
	vendor := max(VendorScore(txn.Merchant, row.Vendor), VendorScore(txn.Description, row.Vendor))

	match := Match{Txn: txn, Row: row, DateScore: date, VendorScore: vendor}
	switch {
	case date >= 0.9 && vendor >= 0.6:
		match.Rule = RuleDateAndVendor
		match.Confidence = 0.5*date + 0.5*vendor
	case vendor >= substringScore:
		match.Rule = RuleVendor
		match.Confidence = vendor
	case date >= 0.7 && vendor >= 0.5:
		match.Rule = RuleLoose
		match.Confidence = 0.4*date + 0.6*vendor
	default:
		return Match{}, false
	}
	return match, true
}

// VendorScore is a case-insensitive similarity in [0, 1]. Equal strings score 1,
// a substring of the other scores 0.8, and anything else scores by edit distance.
func VendorScore(a, b string) float64 {
	fold := cases.Fold()
	a = fold.String(strings.TrimSpace(a))
	b = fold.String(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return substringScore
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// DateScore decays linearly from 1 on the same day to 0 at maxDays apart.
func DateScore(a, b time.Time, maxDays int) float64 {
	if maxDays <= 0 {
		maxDays = DefaultMaxDayDistance
	}
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	days := float64(diff) / float64(24*time.Hour)
	return max(0, 1-days/float64(maxDays))
}
