package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/budgetbrief/pkg/writer"
)

type reportOptions struct {
	requestFlags
	format       string
	out          string
	noCommentary bool
	record       bool
}

func newReportCmd(root *rootOptions) *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build a budget report and print it",
		Long: `Build a report for the weekly, monthly or custom window and write it as text,
JSON or CSV. Large transactions, refunds and excluded expenses are listed
separately from regular spend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd, root, opts)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVarP(&opts.format, "format", "f", writer.FormatText, "output format: text, json or csv")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&opts.noCommentary, "no-commentary", false, "skip the model commentary")
	cmd.Flags().BoolVar(&opts.record, "record", false, "append the summary to the history sheet")
	return cmd
}

func runReport(cmd *cobra.Command, root *rootOptions, opts *reportOptions) error {
	ctx := cmd.Context()
	logger := root.logger()

	cfg, err := root.loadValid()
	if err != nil {
		return err
	}
	// Reject a bad format before any bank calls.
	if _, err := writer.New(opts.format, io.Discard, "", logger); err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	rep, err := a.build(ctx, &opts.requestFlags)
	if err != nil {
		return err
	}

	note := ""
	if !opts.noCommentary && opts.format != writer.FormatCSV {
		note = a.note(ctx, rep)
	}

	err = writeOutput(opts.out, cmd.OutOrStdout(), func(out io.Writer) error {
		w, err := writer.New(opts.format, out, note, logger)
		if err != nil {
			return err
		}
		if err := w.Write(ctx, rep); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if opts.record {
		if err := a.record(ctx, rep); err != nil {
			return fmt.Errorf("recording report: %w", err)
		}
		logger.Info("report recorded", "sheet", cfg.GSheetsHistoryName, "run_id", rep.RunID)
	}
	return nil
}

// writeOutput runs fn against path, or against stdout when path is empty. A
// failed close is reported since buffered bytes may not have reached the file.
func writeOutput(path string, stdout io.Writer, fn func(io.Writer) error) error {
	if path == "" {
		return fn(stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}
