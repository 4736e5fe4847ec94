// Package window computes the [from, to) date ranges reports cover.
package window

import (
	"fmt"
	"math"
	"time"

	"github.com/ArionMiles/budgetbrief/pkg/api"
)

// Default window parameters.
const (
	DefaultWeeklyDays        = 7
	DefaultMonthlyMonthsBack = 1
)

const day = 24 * time.Hour

// Options tunes window derivation.
type Options struct {
	// WeeklyDays is the length of a weekly window, ending today inclusive. Defaults to 7.
	WeeklyDays int
	// MonthlyMonthsBack selects the calendar month, counted back from the current one.
	// Zero selects the current month. Defaults to 1 when negative.
	MonthlyMonthsBack int
	// Location decides which calendar day "now" falls on. Defaults to UTC.
	Location *time.Location
}

// DefaultOptions returns a 7 day week and the previous calendar month.
func DefaultOptions() Options {
	return Options{
		WeeklyDays:        DefaultWeeklyDays,
		MonthlyMonthsBack: DefaultMonthlyMonthsBack,
		Location:          time.UTC,
	}
}

func (o Options) withDefaults() Options {
	if o.WeeklyDays <= 0 {
		o.WeeklyDays = DefaultWeeklyDays
	}
	if o.MonthlyMonthsBack < 0 {
		o.MonthlyMonthsBack = DefaultMonthlyMonthsBack
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// Compute derives the weekly or monthly window containing now.
// Custom windows need explicit bounds; use Custom for those.
func Compute(mode api.Mode, now time.Time, opts Options) (api.DateWindow, error) {
	opts = opts.withDefaults()
	today := StartOfDay(now, opts.Location)

	switch mode {
	case api.ModeWeekly:
		to := today.AddDate(0, 0, 1)
		return api.DateWindow{
			From: to.AddDate(0, 0, -opts.WeeklyDays),
			To:   to,
			Mode: api.ModeWeekly,
		}, nil
	case api.ModeMonthly:
		from := time.Date(today.Year(), today.Month()-time.Month(opts.MonthlyMonthsBack), 1, 0, 0, 0, 0, time.UTC)
		return api.DateWindow{
			From: from,
			To:   from.AddDate(0, 1, 0),
			Mode: api.ModeMonthly,
		}, nil
	case api.ModeCustom:
		return api.DateWindow{}, fmt.Errorf("%w: custom mode requires explicit from and to", api.ErrInvalidWindow)
	default:
		return api.DateWindow{}, &api.InvalidModeError{Mode: string(mode)}
	}
}

// Custom builds a caller supplied window. Both bounds are truncated to calendar days
// and to must fall after from.
func Custom(from, to time.Time) (api.DateWindow, error) {
	w := api.DateWindow{
		From: StartOfDay(from, time.UTC),
		To:   StartOfDay(to, time.UTC),
		Mode: api.ModeCustom,
	}
	if !w.To.After(w.From) {
		return api.DateWindow{}, fmt.Errorf("%w: to %s is not after from %s",
			api.ErrInvalidWindow, w.To.Format(api.DateLayout), w.From.Format(api.DateLayout))
	}
	return w, nil
}

// Days counts the whole days between from (inclusive) and to (exclusive),
// rounding any partial day up.
func Days(from, to time.Time) int {
	diff := to.Sub(from)
	if diff < 0 {
		diff = -diff
	}
	return int(math.Ceil(float64(diff) / float64(day)))
}

// StartOfDay returns the calendar day of t in loc, expressed as midnight UTC.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
