package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/budgetbrief/pkg/client"
)

func newSetupCmd(root *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Authorise Google access for Sheets and Gmail",
		Long: `Run the Google OAuth flow once and store the token. It is only needed when
GSHEETS_ID is set or EMAIL_PROVIDER is gmail.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := root.logger()
			// Setup runs before the rest of the configuration is complete.
			cfg, err := root.load()
			if err != nil {
				return err
			}

			secretsPath := cfg.GoogleSecretFile
			tokenFile := cfg.GoogleTokenFile
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "=== budgetbrief Google setup ===")
			fmt.Fprintln(out)

			if _, err := os.Stat(secretsPath); os.IsNotExist(err) {
				return fmt.Errorf("credentials file not found: %s\n\nTo get your credentials:\n"+
					"1. Go to https://console.cloud.google.com/apis/credentials\n"+
					"2. Create an OAuth 2.0 Client ID (Desktop application)\n"+
					"3. Download the JSON file and save it as '%s'", secretsPath, secretsPath)
			}

			if !force {
				if _, err := os.Stat(tokenFile); err == nil {
					fmt.Fprintf(out, "Already authenticated! Token file exists: %s\n\n", tokenFile)
					fmt.Fprintln(out, "To re-authenticate, run: budgetbrief setup --force")
					return nil
				}
			} else {
				if err := os.Remove(tokenFile); err != nil && !os.IsNotExist(err) {
					logger.Warn("failed to remove existing token", "error", err)
				}
				fmt.Fprintln(out, "Forcing re-authentication...")
				fmt.Fprintln(out)
			}

			fmt.Fprintln(out, "Required permissions:")
			fmt.Fprintln(out, "  - Sheets: read excluded expenses and append report history")
			fmt.Fprintln(out, "  - Gmail: send report emails")
			fmt.Fprintln(out)

			oauthCfg, err := client.GoogleConfig(secretsPath, googleScopes()...)
			if err != nil {
				return err
			}
			tok, err := client.Authorize(cmd.Context(), oauthCfg, "Google")
			if err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			if err := client.SaveToken(tokenFile, tok); err != nil {
				return err
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "=== Setup Complete ===")
			fmt.Fprintf(out, "Token saved to: %s\n\n", tokenFile)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintln(out, "  1. Connect a bank with 'budgetbrief connect <name>'")
			fmt.Fprintln(out, "  2. Run 'budgetbrief status' to check everything")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "discard the stored token and authenticate again")
	return cmd
}
