// Package report turns aggregated transactions into a budget report.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/budgetbrief/pkg/aggregator"
	"github.com/ArionMiles/budgetbrief/pkg/api"
	"github.com/ArionMiles/budgetbrief/pkg/budget"
	"github.com/ArionMiles/budgetbrief/pkg/excluded"
	"github.com/ArionMiles/budgetbrief/pkg/window"
)

// Aggregator supplies the transactions for a window.
type Aggregator interface {
	AggregateAll(ctx context.Context, w api.DateWindow) (*aggregator.Result, error)
}

// Config holds report settings.
type Config struct {
	Window window.Options
	// LargeThreshold moves spend at or above it out of the budget. Zero disables it.
	LargeThreshold decimal.Decimal
	// CacheTTL keeps built reports for repeat requests. Zero disables caching.
	CacheTTL time.Duration
}

// Request selects the report to build.
type Request struct {
	Mode api.Mode
	// From and To are required for custom mode and ignored otherwise.
	From, To time.Time
	// Budget overrides the configured allowance when valid and positive.
	Budget decimal.NullDecimal
	// Refresh skips the cache lookup.
	Refresh bool
}

// Report is the outcome of one run.
type Report struct {
	RunID       string              `json:"run_id"`
	GeneratedAt time.Time           `json:"generated_at"`
	Window      api.DateWindow      `json:"window"`
	Items       []api.ConnectedItem `json:"items"`
	Budget      api.BudgetInfo      `json:"budget"`
	Spent       decimal.Decimal     `json:"spent"`
	Remaining   decimal.Decimal     `json:"remaining"`
	LargeTotal  decimal.Decimal     `json:"large_total"`
	CreditTotal decimal.Decimal     `json:"credit_total"`
	Threshold   decimal.Decimal     `json:"large_threshold"`
	Regular     []api.Txn           `json:"regular"`
	Large       []api.Txn           `json:"large"`
	Credits     []api.Txn           `json:"credits"`
	Excluded    []excluded.Match    `json:"excluded"`
	Merchants   []MerchantTotal     `json:"merchants"`
	Categories  []CategoryTotal     `json:"categories"`
	Rejected    int                 `json:"rejected_records"`
	Warnings    []string            `json:"warnings,omitempty"`
	Reconnect   []string            `json:"needs_reconnect,omitempty"`
}

// OverBudget reports whether regular spend exceeded the budget.
func (r *Report) OverBudget() bool {
	return r.Remaining.IsNegative()
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces the system clock.
func WithClock(c api.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithExcludedSource enables excluded-expense filtering. A nil source leaves it off.
func WithExcludedSource(src api.ExcludedExpenseSource) Option {
	return func(s *Service) { s.excludedSrc = src }
}

// Service builds reports.
type Service struct {
	agg         Aggregator
	budget      *budget.Calculator
	matcher     *excluded.Matcher
	excludedSrc api.ExcludedExpenseSource
	clock       api.Clock
	cache       *cache.Cache
	cfg         Config
	logger      *slog.Logger
}

// NewService wires the report pipeline.
func NewService(agg Aggregator, calc *budget.Calculator, matcher *excluded.Matcher, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if matcher == nil {
		matcher = excluded.New(excluded.Config{})
	}

	s := &Service{
		agg:     agg,
		budget:  calc,
		matcher: matcher,
		clock:   api.SystemClock,
		cfg:     cfg,
		logger:  logger.With("component", "report"),
	}
	if cfg.CacheTTL > 0 {
		s.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Window resolves the request to a date window.
func (s *Service) Window(req Request) (api.DateWindow, error) {
	if req.Mode == api.ModeCustom {
		if req.From.IsZero() || req.To.IsZero() {
			return api.DateWindow{}, fmt.Errorf("%w: custom mode requires from and to", api.ErrInvalidWindow)
		}
		return window.Custom(req.From, req.To)
	}
	return window.Compute(req.Mode, s.clock.Now(), s.cfg.Window)
}

// Build runs the pipeline for the request.
func (s *Service) Build(ctx context.Context, req Request) (*Report, error) {
	w, err := s.Window(req)
	if err != nil {
		return nil, err
	}

	key := cacheKey(w, req.Budget)
	if s.cache != nil && !req.Refresh {
		if cached, found := s.cache.Get(key); found {
			s.logger.Debug("serving cached report", "window", w.String())
			return cached.(*Report), nil
		}
	}

	info, err := s.budget.CalculateForPeriod(w.From, w.To, w.Mode, req.Budget)
	if err != nil {
		return nil, fmt.Errorf("calculating budget: %w", err)
	}

	res, err := s.agg.AggregateAll(ctx, w)
	if err != nil {
		if res != nil && errors.Is(err, api.ErrNoCredentials) {
			s.logger.Error("no credential set produced data", "needs_reconnect", res.NeedsReconnect)
		}
		return nil, fmt.Errorf("aggregating transactions: %w", err)
	}

	rep := &Report{
		RunID:       uuid.NewString(),
		GeneratedAt: s.clock.Now(),
		Window:      w,
		Items:       res.Items,
		Budget:      info,
		Threshold:   s.cfg.LargeThreshold,
		Rejected:    len(res.Rejected),
		Warnings:    res.Warnings,
		Reconnect:   res.NeedsReconnect,
	}

	txns := res.Transactions
	if s.excludedSrc != nil {
		rows, err := s.excludedSrc.ExcludedExpenses(ctx)
		if err != nil {
			s.logger.Warn("excluded expenses unavailable, skipping filter", "error", err)
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("excluded expenses: %v", err))
		} else {
			filtered := s.matcher.Filter(txns, rows, w)
			txns = filtered.Kept
			rep.Excluded = filtered.Matches
		}
	}

	p := Split(txns, s.cfg.LargeThreshold)
	rep.Regular = p.Regular
	rep.Large = TopLarge(p.Large, 0)
	rep.Credits = p.Credits
	rep.Spent = Total(p.Regular)
	rep.LargeTotal = Total(p.Large)
	rep.CreditTotal = Total(p.Credits)
	rep.Remaining = budget.Remaining(info, rep.Spent)
	rep.Merchants = MerchantTotals(p.Regular)
	rep.Categories = CategoryTotals(p.Regular)

	s.logger.Info("report built",
		"run_id", rep.RunID,
		"window", w.String(),
		"items", len(rep.Items),
		"regular", len(rep.Regular),
		"large", len(rep.Large),
		"excluded", len(rep.Excluded),
		"spent", rep.Spent.StringFixed(2),
		"budget", info.Amount.StringFixed(2),
	)

	if s.cache != nil {
		s.cache.SetDefault(key, rep)
	}
	return rep, nil
}

func cacheKey(w api.DateWindow, custom decimal.NullDecimal) string {
	b := "-"
	if custom.Valid {
		b = custom.Decimal.String()
	}
	return fmt.Sprintf("%s|%s|%s", w.Mode, w.String(), b)
}
