package main

import (
	"github.com/spf13/cobra"

	"github.com/ArionMiles/budgetbrief/pkg/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve reports over HTTP",
		Long: `Serve GET /api/report and GET /healthz until interrupted.

  curl 'localhost:8080/api/report?mode=custom&from=2025-11-01&to=2025-11-15&format=text'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := root.logger()

			cfg, err := root.loadValid()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			srv := server.New(a.service, a.summarizer, server.Config{Addr: cfg.HTTPAddr}, logger)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides HTTP_ADDR")
	return cmd
}
