package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/ArionMiles/budgetbrief/pkg/api"
	"github.com/ArionMiles/budgetbrief/pkg/bank/truelayer"
	"github.com/ArionMiles/budgetbrief/pkg/client"
	"github.com/ArionMiles/budgetbrief/pkg/config"
	"github.com/ArionMiles/budgetbrief/pkg/sheets"
)

const checkTimeout = 20 * time.Second

func newStatusCmd(root *rootOptions) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check configuration and stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), root, check)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "also call the bank and Sheets APIs")
	return cmd
}

// runStatus checks the configuration and authentication status.
func runStatus(ctx context.Context, out io.Writer, root *rootOptions, check bool) error {
	logger := root.logger()
	fmt.Fprintln(out, "=== budgetbrief status ===")
	fmt.Fprintln(out)

	allGood := true

	fmt.Fprintf(out, "Config file (%s): ", root.configPath)
	if _, err := os.Stat(root.configPath); err != nil {
		fmt.Fprintln(out, "- not present, using environment only")
	} else {
		fmt.Fprintln(out, "✓ Found")
	}

	cfg, err := root.load()
	if err != nil {
		fmt.Fprintf(out, "Configuration: ✗ %v\n", err)
		printFinalStatus(out, false)
		return nil
	}
	checkValidation(out, cfg, &allGood)
	if cfg.GoogleNeeded() {
		checkGoogle(out, cfg, &allGood)
	}

	bank, tokens := bankClients(cfg, logger)
	checkBankTokens(ctx, out, tokens, &allGood)

	if check && allGood {
		checkAPIConnectivity(ctx, out, cfg, bank, tokens, &allGood)
	}

	printFinalStatus(out, allGood)
	return nil
}

func checkValidation(out io.Writer, cfg *config.Config, allGood *bool) {
	fmt.Fprint(out, "Configuration: ")
	err := cfg.Validate()
	if err == nil {
		fmt.Fprintln(out, "✓ Valid")
		return
	}
	*allGood = false
	fmt.Fprintln(out, "✗ Invalid")
	for _, line := range strings.Split(err.Error(), "\n") {
		fmt.Fprintf(out, "  - %s\n", line)
	}
}

func checkGoogle(out io.Writer, cfg *config.Config, allGood *bool) {
	fmt.Fprintf(out, "Google credentials (%s): ", cfg.GoogleSecretFile)
	if _, err := os.Stat(cfg.GoogleSecretFile); os.IsNotExist(err) {
		fmt.Fprintln(out, "✗ Not found")
		*allGood = false
	} else {
		fmt.Fprintln(out, "✓ Found")
	}

	fmt.Fprintf(out, "Google token (%s): ", cfg.GoogleTokenFile)
	tok, err := client.TokenFromFile(cfg.GoogleTokenFile)
	if err != nil {
		fmt.Fprintf(out, "✗ %v (run 'budgetbrief setup')\n", tokenProblem(err))
		*allGood = false
		return
	}
	printExpiry(out, tok)
}

// checkBankTokens lists each stored TrueLayer connection.
func checkBankTokens(ctx context.Context, out io.Writer, tokens *client.TokenStore, allGood *bool) {
	fmt.Fprintf(out, "Bank connections (%s): ", tokens.Dir())
	creds, err := tokens.Credentials(ctx)
	if err != nil {
		fmt.Fprintf(out, "✗ %v\n", err)
		*allGood = false
		return
	}
	if len(creds) == 0 {
		fmt.Fprintln(out, "✗ None (run 'budgetbrief connect <name>')")
		*allGood = false
		return
	}
	fmt.Fprintf(out, "✓ %d\n", len(creds))

	for _, c := range creds {
		fmt.Fprintf(out, "  %s: ", c.ID())
		tok, err := tokens.Load(c.ID())
		if err != nil {
			fmt.Fprintf(out, "✗ %v\n", tokenProblem(err))
			*allGood = false
			continue
		}
		printExpiry(out, tok)
	}
}

func printExpiry(out io.Writer, tok *oauth2.Token) {
	switch {
	case tok.Expiry.IsZero() || tok.Expiry.After(time.Now()):
		fmt.Fprintf(out, "✓ Valid (expires: %s)\n", tok.Expiry.Format(time.RFC3339))
	case tok.RefreshToken != "":
		fmt.Fprintln(out, "⚠ Expired (will refresh on next run)")
	default:
		fmt.Fprintln(out, "⚠ Expired with no refresh token")
	}
}

func tokenProblem(err error) string {
	if errors.Is(err, os.ErrNotExist) {
		return "not found"
	}
	return err.Error()
}

func checkAPIConnectivity(ctx context.Context, out io.Writer, cfg *config.Config, bank *truelayer.Client, tokens *client.TokenStore, allGood *bool) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "API Connectivity:")

	creds, err := tokens.Credentials(ctx)
	if err != nil {
		fmt.Fprintf(out, "  Bank tokens: ✗ %v\n", err)
		*allGood = false
		return
	}
	for _, c := range creds {
		fmt.Fprintf(out, "  TrueLayer (%s): ", c.ID())
		n, err := testBankAPI(ctx, bank, c)
		if err != nil {
			fmt.Fprintf(out, "✗ %v\n", err)
			*allGood = false
			continue
		}
		fmt.Fprintf(out, "✓ Connected (%d accounts)\n", n)
	}

	if cfg.GSheetsID == "" {
		return
	}
	fmt.Fprint(out, "  Sheets API: ")
	n, err := testSheetsAPI(ctx, cfg)
	if err != nil {
		fmt.Fprintf(out, "✗ %v\n", err)
		*allGood = false
		return
	}
	fmt.Fprintf(out, "✓ Connected (%d excluded expenses)\n", n)
}

func testBankAPI(ctx context.Context, bank *truelayer.Client, cred api.Credential) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	access, err := cred.Token(ctx)
	if err != nil {
		return 0, err
	}
	accounts, err := bank.Accounts(ctx, access)
	if err != nil {
		return 0, fmt.Errorf("API call failed: %w", err)
	}
	return len(accounts), nil
}

func testSheetsAPI(ctx context.Context, cfg *config.Config) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	httpClient, err := client.NewGoogle(ctx, cfg.GoogleSecretFile, cfg.GoogleTokenFile, googleScopes()...)
	if err != nil {
		return 0, err
	}
	svc, err := sheets.New(ctx, httpClient, sheets.Config{SpreadsheetID: cfg.GSheetsID, SheetName: cfg.GSheetsName}, nil)
	if err != nil {
		return 0, fmt.Errorf("creating service: %w", err)
	}
	rows, err := svc.ExcludedExpenses(ctx)
	if err != nil {
		return 0, fmt.Errorf("API call failed: %w", err)
	}
	return len(rows), nil
}

func printFinalStatus(out io.Writer, allGood bool) {
	fmt.Fprintln(out)
	if allGood {
		fmt.Fprintln(out, "Status: ✓ Ready to run")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Run 'budgetbrief report' to see where the budget stands.")
	} else {
		fmt.Fprintln(out, "Status: ✗ Configuration issues detected")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Fix the issues above, then run 'budgetbrief status' again.")
	}
}
