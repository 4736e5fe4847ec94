// Package config loads budgetbrief settings from an optional JSON file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	kJson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// ClientSecretFile is the default path to the Google OAuth credentials JSON file.
const ClientSecretFile = "data/client_secret.json"

// Email providers.
const (
	EmailNone    = "none"
	EmailGmail   = "gmail"
	EmailMailgun = "mailgun"
)

// Config holds the application configuration. Keys match the environment variable names.
type Config struct {
	// WeeklyAllowance is the weekly budget as a decimal string.
	// Environment variable: BUDGET_WEEKLY_ALLOWANCE
	WeeklyAllowance string `koanf:"BUDGET_WEEKLY_ALLOWANCE"`

	// MonthlyAllowance is the monthly budget as a decimal string.
	// Environment variable: BUDGET_MONTHLY_ALLOWANCE
	MonthlyAllowance string `koanf:"BUDGET_MONTHLY_ALLOWANCE"`

	// LargeTxnThreshold splits large spend out of budget totals.
	// Environment variable: LARGE_TXN_THRESHOLD
	LargeTxnThreshold string `koanf:"LARGE_TXN_THRESHOLD"`

	// ExcludedAccountIDs are never fetched. Comma separated in the environment.
	// Environment variable: EXCLUDED_ACCOUNT_IDS
	ExcludedAccountIDs []string `koanf:"EXCLUDED_ACCOUNT_IDS"`

	WeeklyDays             int `koanf:"WEEKLY_DAYS"`
	MonthlyMonthsBack      int `koanf:"MONTHLY_MONTHS_BACK"`
	ExcludedMaxDayDistance int `koanf:"EXCLUDED_MAX_DAY_DISTANCE"`

	TrueLayerClientID     string `koanf:"TRUELAYER_CLIENT_ID"`
	TrueLayerClientSecret string `koanf:"TRUELAYER_CLIENT_SECRET"`
	TrueLayerAPIURL       string `koanf:"TRUELAYER_API_URL"`
	TrueLayerAuthURL      string `koanf:"TRUELAYER_AUTH_URL"`

	// TokensDir holds one token file per connected bank.
	// Environment variable: TOKENS_DIR
	TokensDir string `koanf:"TOKENS_DIR"`

	// GoogleSecretFile is the OAuth client used for Sheets and Gmail.
	// Environment variable: GOOGLE_CLIENT_SECRET_FILE
	GoogleSecretFile string `koanf:"GOOGLE_CLIENT_SECRET_FILE"`

	// GSheetsID is the spreadsheet listing excluded expenses. Empty disables exclusion.
	// Environment variable: GSHEETS_ID
	GSheetsID string `koanf:"GSHEETS_ID"`

	// GSheetsName is the name of the sheet/tab within the spreadsheet.
	// Environment variable: GSHEETS_NAME
	GSheetsName string `koanf:"GSHEETS_NAME"`

	// GSheetsHistoryName is the tab report summaries are appended to. Empty disables it.
	// Environment variable: GSHEETS_HISTORY_NAME
	GSheetsHistoryName string `koanf:"GSHEETS_HISTORY_NAME"`

	// GoogleTokenFile is written by setup and read by the Sheets and Gmail clients.
	// Environment variable: GOOGLE_TOKEN_FILE
	GoogleTokenFile string `koanf:"GOOGLE_TOKEN_FILE"`

	EmailProvider string `koanf:"EMAIL_PROVIDER"`
	EmailFrom     string `koanf:"EMAIL_FROM"`
	EmailTo       string `koanf:"EMAIL_TO"`
	MailgunDomain string `koanf:"MAILGUN_DOMAIN"`
	MailgunAPIKey string `koanf:"MAILGUN_API_KEY"`

	// GeminiAPIKey enables AI commentary when set.
	// Environment variable: GEMINI_API_KEY
	GeminiAPIKey string `koanf:"GEMINI_API_KEY"`
	GeminiModel  string `koanf:"GEMINI_MODEL"`

	HTTPAddr       string        `koanf:"HTTP_ADDR"`
	ReportCacheTTL time.Duration `koanf:"REPORT_CACHE_TTL"`
	ReportTimezone string        `koanf:"REPORT_TIMEZONE"`
}

// Default returns the configuration used for unset keys.
func Default() Config {
	return Config{
		LargeTxnThreshold:      "100",
		WeeklyDays:             7,
		MonthlyMonthsBack:      1,
		ExcludedMaxDayDistance: 3,
		TrueLayerAPIURL:        "https://api.truelayer.com",
		TrueLayerAuthURL:       "https://auth.truelayer.com",
		TokensDir:              "data/tokens",
		GoogleSecretFile:       ClientSecretFile,
		GSheetsName:            "Excluded",
		GoogleTokenFile:        "data/token.json",
		EmailProvider:          EmailNone,
		GeminiModel:            "gemini-2.5-flash",
		HTTPAddr:               ":8080",
		ReportCacheTTL:         15 * time.Minute,
		ReportTimezone:         "Europe/London",
	}
}

// Load reads path, if given, and then the environment. Environment values win.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), kJson.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("checking config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.ExcludedAccountIDs = splitList(cfg.ExcludedAccountIDs)
	cfg.EmailProvider = strings.ToLower(strings.TrimSpace(cfg.EmailProvider))
	if cfg.EmailProvider == "" {
		cfg.EmailProvider = EmailNone
	}
	return &cfg, nil
}

// LoadDotEnv copies KEY=value lines from path into the process environment.
// Variables already set win, and a missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// Budget parses the configured allowances. Unset allowances are zero.
func (c *Config) Budget() (weekly, monthly decimal.Decimal, err error) {
	weekly, err = parseMoney("BUDGET_WEEKLY_ALLOWANCE", c.WeeklyAllowance)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	monthly, err = parseMoney("BUDGET_MONTHLY_ALLOWANCE", c.MonthlyAllowance)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return weekly, monthly, nil
}

// LargeThreshold parses LARGE_TXN_THRESHOLD.
func (c *Config) LargeThreshold() (decimal.Decimal, error) {
	return parseMoney("LARGE_TXN_THRESHOLD", c.LargeTxnThreshold)
}

// Location resolves REPORT_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	if c.ReportTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("REPORT_TIMEZONE: %w", err)
	}
	return loc, nil
}

// GoogleNeeded reports whether any feature requires a Google token.
func (c *Config) GoogleNeeded() bool {
	return c.GSheetsID != "" || c.EmailProvider == EmailGmail
}

// BankConfigured reports whether TrueLayer client credentials are present.
func (c *Config) BankConfigured() bool {
	return c.TrueLayerClientID != "" && c.TrueLayerClientSecret != ""
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if _, _, err := c.Budget(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.LargeThreshold(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.WeeklyDays <= 0 {
		errs = append(errs, fmt.Errorf("WEEKLY_DAYS must be positive, got %d", c.WeeklyDays))
	}
	if c.MonthlyMonthsBack < 0 {
		errs = append(errs, fmt.Errorf("MONTHLY_MONTHS_BACK must not be negative, got %d", c.MonthlyMonthsBack))
	}
	if c.ExcludedMaxDayDistance <= 0 {
		errs = append(errs, fmt.Errorf("EXCLUDED_MAX_DAY_DISTANCE must be positive, got %d", c.ExcludedMaxDayDistance))
	}
	if c.GSheetsHistoryName != "" && c.GSheetsID == "" {
		errs = append(errs, errors.New("GSHEETS_HISTORY_NAME requires GSHEETS_ID"))
	}
	if !c.BankConfigured() {
		errs = append(errs, errors.New("TRUELAYER_CLIENT_ID and TRUELAYER_CLIENT_SECRET are required"))
	}

	switch c.EmailProvider {
	case EmailNone:
	case EmailGmail, EmailMailgun:
		if c.EmailFrom == "" || c.EmailTo == "" {
			errs = append(errs, fmt.Errorf("EMAIL_FROM and EMAIL_TO are required for %s", c.EmailProvider))
		}
		if c.EmailProvider == EmailMailgun && (c.MailgunDomain == "" || c.MailgunAPIKey == "") {
			errs = append(errs, errors.New("MAILGUN_DOMAIN and MAILGUN_API_KEY are required for mailgun"))
		}
	default:
		errs = append(errs, fmt.Errorf("EMAIL_PROVIDER %q is not one of none, gmail, mailgun", c.EmailProvider))
	}

	return errors.Join(errs...)
}

func parseMoney(key, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %q is not a number", key, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s: must not be negative, got %s", key, s)
	}
	return d, nil
}

// splitList flattens comma separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
