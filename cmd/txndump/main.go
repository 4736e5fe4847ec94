// Command txndump fetches raw provider transactions for every connected item and
// writes them to files. The output is used to collect fixtures for unit tests.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ArionMiles/budgetbrief/pkg/api"
	"github.com/ArionMiles/budgetbrief/pkg/bank/truelayer"
	"github.com/ArionMiles/budgetbrief/pkg/client"
	"github.com/ArionMiles/budgetbrief/pkg/config"
	"github.com/ArionMiles/budgetbrief/pkg/logging"
	"github.com/ArionMiles/budgetbrief/pkg/window"
)

const dumpDir = "testdata/dump"

var (
	unsafeChars  = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f ]`)
	repeatedUnds = regexp.MustCompile(`_+`)
)

func main() {
	logger := logging.Setup(logging.DefaultConfig())
	ctx := context.Background()

	if err := config.LoadDotEnv(".env"); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load("config.json")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if !cfg.BankConfigured() {
		logger.Error("TRUELAYER_CLIENT_ID and TRUELAYER_CLIENT_SECRET are required")
		os.Exit(1)
	}

	w, err := window.Compute(api.ModeWeekly, time.Now(), window.Options{WeeklyDays: cfg.WeeklyDays})
	if err != nil {
		logger.Error("failed to compute window", "error", err)
		os.Exit(1)
	}

	oauthCfg := truelayer.OAuthConfig(cfg.TrueLayerClientID, cfg.TrueLayerClientSecret, cfg.TrueLayerAuthURL, client.RedirectURL())
	tokens := client.NewTokenStore(cfg.TokensDir, oauthCfg, logger)
	bank := truelayer.New(truelayer.Config{BaseURL: cfg.TrueLayerAPIURL}, logger)

	creds, err := tokens.Credentials(ctx)
	if err != nil {
		logger.Error("failed to list credentials", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(dumpDir, 0o755); err != nil {
		logger.Error("failed to create dump directory", "error", err)
		os.Exit(1)
	}

	totalDumped := 0
	for _, cred := range creds {
		count, err := dumpCredential(ctx, bank, cred, w, logger)
		if err != nil {
			logger.Error("failed to dump credential set", "credential", cred.ID(), "error", err)
			continue
		}
		logger.Info("dumped credential set", "credential", cred.ID(), "files", count)
		totalDumped += count
	}

	logger.Info("transaction dump complete", "total_dumped", totalDumped, "directory", dumpDir)
}

func dumpCredential(ctx context.Context, bank *truelayer.Client, cred api.Credential, w api.DateWindow, logger *slog.Logger) (int, error) {
	token, err := cred.Token(ctx)
	if err != nil {
		return 0, err
	}

	accounts, err := bank.Accounts(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("listing accounts: %w", err)
	}
	cards, err := bank.Cards(ctx, token)
	if err != nil {
		logger.Debug("listing cards failed", "credential", cred.ID(), "error", err)
	}

	count := 0
	for _, item := range append(accounts, cards...) {
		for _, pending := range []bool{false, true} {
			raws, err := bank.Transactions(ctx, token, item, w, pending)
			if err != nil {
				logger.Warn("failed to fetch transactions", "item", item.ID, "pending", pending, "error", err)
				continue
			}
			if len(raws) == 0 {
				continue
			}
			if err := dumpItem(cred.ID(), item, pending, w, raws, logger); err != nil {
				logger.Warn("failed to dump item", "item", item.ID, "error", err)
				continue
			}
			count++
		}
	}
	return count, nil
}

func dumpItem(credID string, item api.ConnectedItem, pending bool, w api.DateWindow, raws []api.RawTransaction, logger *slog.Logger) error {
	status := api.StatusPosted
	if pending {
		status = api.StatusPending
	}

	payloads := make([]json.RawMessage, 0, len(raws))
	for _, r := range raws {
		payloads = append(payloads, r.Raw)
	}
	data, err := json.MarshalIndent(map[string]any{"results": payloads}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding payloads: %w", err)
	}

	// credential_kind_item_status_from.json
	filename := sanitizeFilename(fmt.Sprintf("%s_%s_%s_%s_%s", credID, item.Kind, item.ID, status, w.From.Format(api.DateLayout))) + ".json"
	filePath := filepath.Join(dumpDir, filename)

	if _, err := os.Stat(filePath); err == nil {
		logger.Debug("file already exists, skipping", "file", filename)
		return nil
	}
	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	logger.Info("dumped transactions", "file", filename, "records", len(raws))
	return nil
}

func sanitizeFilename(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	name = repeatedUnds.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if len(name) > 200 {
		name = name[:200]
	}
	return name
}
