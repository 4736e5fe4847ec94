package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/budgetbrief/pkg/api"
)

// ParseRequest builds a Request from user input. from and to are inclusive
// calendar days and only apply to custom mode. An empty budget keeps the
// configured allowance.
func ParseRequest(mode, from, to, budget string) (Request, error) {
	var req Request

	m, err := api.ParseMode(strings.ToLower(strings.TrimSpace(mode)))
	if err != nil {
		return req, err
	}
	req.Mode = m

	if m == api.ModeCustom {
		if req.From, err = parseDay("from", from); err != nil {
			return req, err
		}
		last, err := parseDay("to", to)
		if err != nil {
			return req, err
		}
		req.To = last.AddDate(0, 0, 1)
	}

	if budget = strings.TrimSpace(budget); budget != "" {
		d, err := decimal.NewFromString(budget)
		if err != nil {
			return req, fmt.Errorf("budget %q is not a number", budget)
		}
		if !d.IsPositive() {
			return req, fmt.Errorf("budget must be positive, got %s", budget)
		}
		req.Budget = decimal.NewNullDecimal(d)
	}
	return req, nil
}

func parseDay(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: custom mode requires %s", api.ErrInvalidWindow, name)
	}
	t, err := time.Parse(api.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q is not a YYYY-MM-DD date", api.ErrInvalidWindow, name, s)
	}
	return t, nil
}
