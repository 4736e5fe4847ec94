package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/budgetbrief/pkg/config"
	"github.com/ArionMiles/budgetbrief/pkg/logging"
)

type rootOptions struct {
	configPath string
	envFile    string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "budgetbrief",
		Short: "Budget reports across every connected bank account and card",
		Long: `budgetbrief pulls transactions from Open Banking connections, compares spend
against a weekly or monthly budget and reports the result on the terminal, by
email or over HTTP.

Examples:
  budgetbrief connect monzo
  budgetbrief report --mode weekly
  budgetbrief report --mode custom --from 2025-11-01 --to 2025-11-15 --format csv --out nov.csv
  budgetbrief email --mode monthly
  budgetbrief serve`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "config.json", "optional JSON config file; environment variables override it")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "optional KEY=value file loaded into the environment")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newReportCmd(opts),
		newEmailCmd(opts),
		newServeCmd(opts),
		newSetupCmd(opts),
		newConnectCmd(opts),
		newStatusCmd(opts),
	)
	return root
}

func (o *rootOptions) logger() *slog.Logger {
	cfg := logging.DefaultConfig()
	if o.verbose {
		cfg.Level = slog.LevelDebug
	}
	return logging.Setup(cfg)
}

// load reads configuration without validating it.
func (o *rootOptions) load() (*config.Config, error) {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadValid reads configuration and rejects it when anything is wrong.
func (o *rootOptions) loadValid() (*config.Config, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// requestFlags are shared by report and email.
type requestFlags struct {
	mode    string
	from    string
	to      string
	budget  string
	refresh bool
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "weekly", "window mode: weekly, monthly or custom")
	cmd.Flags().StringVar(&f.from, "from", "", "first day for custom mode (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "last day for custom mode, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&f.budget, "budget", "b", "", "budget override for this run")
	cmd.Flags().BoolVar(&f.refresh, "refresh", false, "ignore cached reports")
}
