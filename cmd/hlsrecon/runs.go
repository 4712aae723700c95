package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/storage"
)

type runsOptions struct {
	limit   int
	missing string
}

func newRunsCmd(g *globals) *cobra.Command {
	opts := &runsOptions{}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded reconciliation runs",
		Long: `List the runs recorded in the ledger at DATABASE_URL, newest first.

With --missing, print the granules a response run reported as missing instead.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runRuns(c.Context(), g, opts, c.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&opts.limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().StringVar(&opts.missing, "missing", "", "run ID whose missing granules to print")

	return cmd
}

func runRuns(ctx context.Context, g *globals, opts *runsOptions, out io.Writer) error {
	cfg := storage.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	conn, err := storage.NewConnection(cfg)
	if err != nil {
		return err
	}

	ledger, err := storage.NewLedgerStore(conn, g.logger)
	if err != nil {
		_ = conn.Close()

		return err
	}

	defer func() { _ = ledger.Close() }()

	if opts.missing != "" {
		runID, err := uuid.Parse(opts.missing)
		if err != nil {
			return fmt.Errorf("invalid run ID %q: %w", opts.missing, err)
		}

		granules, err := ledger.MissingGranules(ctx, runID)
		if err != nil {
			return err
		}

		printMissingGranules(out, granules)

		return nil
	}

	runs, err := ledger.RecentRuns(ctx, opts.limit)
	if err != nil {
		return err
	}

	return printRuns(out, runs)
}

func printRuns(out io.Writer, runs []storage.Run) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tSTARTED\tDURATION\tREPORT")

	for _, run := range runs {
		duration := "-"
		if run.CompletedAt != nil {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}

		status := string(run.Status)
		if run.DryRun {
			status += " (dry run)"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID, run.Kind, status, run.StartedAt.UTC().Format(time.RFC3339), duration, run.ReportURI)
	}

	return w.Flush()
}

func printMissingGranules(out io.Writer, granules map[string][]string) {
	collections := make([]string, 0, len(granules))
	for c := range granules {
		collections = append(collections, c)
	}

	sort.Strings(collections)

	for _, c := range collections {
		for _, id := range granules[c] {
			fmt.Fprintf(out, "%s\t%s\n", c, id)
		}
	}
}
