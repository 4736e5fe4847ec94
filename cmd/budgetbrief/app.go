package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/ArionMiles/budgetbrief/pkg/aggregator"
	"github.com/ArionMiles/budgetbrief/pkg/bank/truelayer"
	"github.com/ArionMiles/budgetbrief/pkg/budget"
	"github.com/ArionMiles/budgetbrief/pkg/client"
	"github.com/ArionMiles/budgetbrief/pkg/commentary"
	"github.com/ArionMiles/budgetbrief/pkg/config"
	"github.com/ArionMiles/budgetbrief/pkg/excluded"
	"github.com/ArionMiles/budgetbrief/pkg/logging"
	"github.com/ArionMiles/budgetbrief/pkg/mailer"
	"github.com/ArionMiles/budgetbrief/pkg/report"
	"github.com/ArionMiles/budgetbrief/pkg/sheets"
	"github.com/ArionMiles/budgetbrief/pkg/window"
)

// app is the wired report pipeline.
type app struct {
	cfg        *config.Config
	bank       *truelayer.Client
	tokens     *client.TokenStore
	google     *http.Client
	sheets     *sheets.Client
	service    *report.Service
	summarizer commentary.Summarizer
	logger     *slog.Logger
}

// bankOAuth is the TrueLayer client registration used to connect and refresh.
func bankOAuth(cfg *config.Config) *oauth2.Config {
	return truelayer.OAuthConfig(cfg.TrueLayerClientID, cfg.TrueLayerClientSecret, cfg.TrueLayerAuthURL, client.RedirectURL())
}

// bankClients builds the TrueLayer client and the token store backing it.
func bankClients(cfg *config.Config, logger *slog.Logger) (*truelayer.Client, *client.TokenStore) {
	tokens := client.NewTokenStore(cfg.TokensDir, bankOAuth(cfg), logger)
	bank := truelayer.New(truelayer.Config{BaseURL: cfg.TrueLayerAPIURL}, logger)
	return bank, tokens
}

// googleScopes are requested by setup and expected by every Google client.
func googleScopes() []string {
	return []string{sheets.Scope, mailer.GmailScope}
}

// newApp wires every component from validated configuration.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	weekly, monthly, err := cfg.Budget()
	if err != nil {
		return nil, err
	}
	threshold, err := cfg.LargeThreshold()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.bank, a.tokens = bankClients(cfg, logger)

	agg := aggregator.New(a.bank, a.tokens,
		aggregator.Config{ExcludedAccountIDs: cfg.ExcludedAccountIDs},
		aggregator.WithObserver(logging.NewObserver(logger)),
	)

	if cfg.GoogleNeeded() {
		a.google, err = client.NewGoogle(ctx, cfg.GoogleSecretFile, cfg.GoogleTokenFile, googleScopes()...)
		if err != nil {
			return nil, fmt.Errorf("creating google client: %w", err)
		}
	}

	var opts []report.Option
	if cfg.GSheetsID != "" {
		a.sheets, err = sheets.New(ctx, a.google, sheets.Config{
			SpreadsheetID:    cfg.GSheetsID,
			SheetName:        cfg.GSheetsName,
			HistorySheetName: cfg.GSheetsHistoryName,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating sheets client: %w", err)
		}
		opts = append(opts, report.WithExcludedSource(a.sheets))
	}

	a.service = report.NewService(agg,
		budget.New(budget.Config{WeeklyAllowance: weekly, MonthlyAllowance: monthly}),
		excluded.New(excluded.Config{MaxDayDistance: cfg.ExcludedMaxDayDistance}),
		report.Config{
			Window: window.Options{
				WeeklyDays:        cfg.WeeklyDays,
				MonthlyMonthsBack: cfg.MonthlyMonthsBack,
				Location:          loc,
			},
			LargeThreshold: threshold,
			CacheTTL:       cfg.ReportCacheTTL,
		},
		logger, opts...)

	if cfg.GeminiAPIKey != "" {
		g, err := commentary.NewGemini(ctx, commentary.Config{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
		if err != nil {
			// Commentary is optional; the report still runs without it.
			logger.Warn("commentary disabled", "error", err)
		} else {
			a.summarizer = g
		}
	}

	return a, nil
}

// build runs one report and surfaces reconnect hints to the logger.
func (a *app) build(ctx context.Context, f *requestFlags) (*report.Report, error) {
	req, err := report.ParseRequest(f.mode, f.from, f.to, f.budget)
	if err != nil {
		return nil, err
	}
	req.Refresh = f.refresh

	rep, err := a.service.Build(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("building report: %w", err)
	}
	for _, name := range rep.Reconnect {
		a.logger.Warn("bank connection needs re-authorisation", "credential", name,
			"fix", fmt.Sprintf("budgetbrief connect %s --force", name))
	}
	return rep, nil
}

// record appends the summary to the history sheet when one is configured.
func (a *app) record(ctx context.Context, rep *report.Report) error {
	if a.sheets == nil || a.cfg.GSheetsHistoryName == "" {
		return errors.New("recording needs GSHEETS_ID and GSHEETS_HISTORY_NAME")
	}
	return a.sheets.AppendReport(ctx, rep)
}

// note returns the model commentary, or "" when disabled or failing.
func (a *app) note(ctx context.Context, rep *report.Report) string {
	if a.summarizer == nil {
		return ""
	}
	return commentary.Best(ctx, a.summarizer, rep, a.logger)
}
