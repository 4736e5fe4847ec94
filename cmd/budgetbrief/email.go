package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/budgetbrief/pkg/mailer"
)

type emailOptions struct {
	requestFlags
	dryRun bool
}

func newEmailCmd(root *rootOptions) *cobra.Command {
	opts := &emailOptions{}

	cmd := &cobra.Command{
		Use:   "email",
		Short: "Build a budget report and email it",
		Long: `Build a report and send it to EMAIL_TO through the configured EMAIL_PROVIDER
(gmail or mailgun). With --dry-run the message is printed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEmail(cmd, root, opts)
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the message instead of sending it")
	return cmd
}

func runEmail(cmd *cobra.Command, root *rootOptions, opts *emailOptions) error {
	ctx := cmd.Context()
	logger := root.logger()

	cfg, err := root.loadValid()
	if err != nil {
		return err
	}
	if cfg.EmailProvider == mailer.ProviderNone && !opts.dryRun {
		return fmt.Errorf("%w: set EMAIL_PROVIDER to gmail or mailgun", mailer.ErrDisabled)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	rep, err := a.build(ctx, &opts.requestFlags)
	if err != nil {
		return err
	}

	msg, err := mailer.Compose(rep, a.note(ctx, rep), cfg.EmailFrom, cfg.EmailTo)
	if err != nil {
		return err
	}

	if opts.dryRun {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "From: %s\nTo: %s\nSubject: %s\n\n%s", msg.From, msg.To, msg.Subject, msg.Text)
		return nil
	}

	sender, err := mailer.New(ctx, mailer.Config{
		Provider:      cfg.EmailProvider,
		MailgunDomain: cfg.MailgunDomain,
		MailgunAPIKey: cfg.MailgunAPIKey,
		GoogleClient:  a.google,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating mailer: %w", err)
	}
	if err := sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("sending report: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %q to %s\n", msg.Subject, msg.To)
	return nil
}
