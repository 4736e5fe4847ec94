// Package budget derives the spending allowance for a report window.
package budget

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/budgetbrief/pkg/api"
	"github.com/ArionMiles/budgetbrief/pkg/window"
)

// divisionPrecision bounds the scale of derived rates.
const divisionPrecision = 8

var daysPerWeek = decimal.NewFromInt(7)

// Config holds the configured allowances. Zero values are a valid steady state.
type Config struct {
	WeeklyAllowance  decimal.Decimal
	MonthlyAllowance decimal.Decimal
}

// Calculator turns a window into a BudgetInfo.
type Calculator struct {
	cfg Config
}

// New creates a Calculator.
func New(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// CalculateForPeriod returns the budget for [from, to).
//
// A positive custom amount always wins. Otherwise weekly and monthly modes use their
// configured allowance, and any other mode is prorated from the weekly allowance.
func (c *Calculator) CalculateForPeriod(from, to time.Time, mode api.Mode, custom decimal.NullDecimal) (api.BudgetInfo, error) {
	days := window.Days(from, to)
	if days == 0 {
		return api.BudgetInfo{}, fmt.Errorf("%w: %s..%s", api.ErrZeroDays,
			from.Format(api.DateLayout), to.Format(api.DateLayout))
	}
	d := decimal.NewFromInt(int64(days))

	info := api.BudgetInfo{Days: days}
	var rate decimal.Decimal
	switch {
	case custom.Valid && custom.Decimal.IsPositive():
		info.Amount = custom.Decimal
		info.Source = api.BudgetCustom
	case mode == api.ModeWeekly:
		info.Amount = c.cfg.WeeklyAllowance
		info.Source = api.BudgetWeekly
	case mode == api.ModeMonthly:
		info.Amount = c.cfg.MonthlyAllowance
		info.Source = api.BudgetMonthly
	default:
		// The rate stays weekly/7; only the prorated amount is rounded to pence.
		rate = c.cfg.WeeklyAllowance.DivRound(daysPerWeek, divisionPrecision)
		info.Amount = rate.Mul(d).Round(2)
		info.Source = api.BudgetCalculated
	}
	if info.Source == api.BudgetCalculated {
		info.DailyRate = rate
	} else {
		info.DailyRate = info.Amount.DivRound(d, divisionPrecision)
	}
	return info, nil
}

// Remaining is the unspent part of the budget. spent is a positive total.
func Remaining(info api.BudgetInfo, spent decimal.Decimal) decimal.Decimal {
	return info.Amount.Sub(spent)
}
