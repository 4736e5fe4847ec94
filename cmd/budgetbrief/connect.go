package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/budgetbrief/pkg/bank/truelayer"
	"github.com/ArionMiles/budgetbrief/pkg/client"
)

func newConnectCmd(root *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "connect <name>",
		Short: "Connect a bank or card provider through TrueLayer",
		Long: `Open the TrueLayer consent page and store the resulting token under <name>.
Each name is one credential set; connect one per bank. Re-run with --force
when a report says the connection needs re-authorisation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := client.ValidName(name); err != nil {
				return err
			}
			logger := root.logger()
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if !cfg.BankConfigured() {
				return errors.New("TRUELAYER_CLIENT_ID and TRUELAYER_CLIENT_SECRET are required")
			}

			bank, tokens := bankClients(cfg, logger)
			out := cmd.OutOrStdout()

			if !force {
				if _, err := tokens.Load(name); err == nil {
					fmt.Fprintf(out, "%q is already connected.\n\nTo reconnect, run: budgetbrief connect %s --force\n", name, name)
					return nil
				}
			}

			tok, err := client.Authorize(cmd.Context(), bankOAuth(cfg), "TrueLayer ("+name+")", truelayer.AuthOptions()...)
			if err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			if err := tokens.Save(name, tok); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			accounts, err := bank.Accounts(ctx, tok.AccessToken)
			if err != nil {
				return fmt.Errorf("token saved but listing accounts failed: %w", err)
			}
			cards, err := bank.Cards(ctx, tok.AccessToken)
			if err != nil {
				logger.Debug("listing cards failed", "credential", name, "error", err)
			}

			fmt.Fprintf(out, "\nConnected %q: %d accounts, %d cards\n", name, len(accounts), len(cards))
			for _, it := range append(accounts, cards...) {
				fmt.Fprintf(out, "  %-8s %s  %s (%s)\n", it.Kind, it.ID, it.DisplayName, it.Provider)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "replace an existing connection")
	return cmd
}
