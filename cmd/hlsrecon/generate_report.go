package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/handler"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/report"
)

type generateReportOptions struct {
	date     string
	products []string
}

func newGenerateReportCmd(g *globals) *cobra.Command {
	opts := &generateReportOptions{}

	cmd := &cobra.Command{
		Use:   "generate-report",
		Short: "Write the per-product inventory reports for one day",
		Long: `Query the inventory table and write one report per product to REPORT_OUTPUT_PREFIX.

Without --date the report covers the day two days before today (UTC).`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runGenerateReport(c.Context(), g, opts, c.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.date, "date", "", "report day as YYYY-MM-DD")
	cmd.Flags().StringSliceVar(&opts.products, "products", nil, "product prefixes, e.g. S30,L30")

	return cmd
}

func runGenerateReport(ctx context.Context, g *globals, opts *generateReportOptions, out io.Writer) error {
	cfg, err := handler.LoadGenerateReportConfig()
	if err != nil {
		return err
	}

	fileConfig, err := report.LoadFileConfigFromEnv()
	if err != nil {
		return err
	}

	engine, err := g.newEngine(ctx)
	if err != nil {
		return fmt.Errorf("failed to create query engine: %w", err)
	}

	store, err := g.newStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}

	generator, err := cfg.NewGenerator(engine, store, g.logger)
	if err != nil {
		return err
	}

	h := handler.NewGenerateReport(generator, fileConfig, cfg.Report.ProductVersion, nil, g.logger)

	result, err := h.Handle(ctx, handler.Event{ReportStartDate: opts.date, ProductPrefixes: opts.products})
	if err != nil {
		return err
	}

	for _, f := range result.Files {
		fmt.Fprintf(out, "%s\t%d\n", f.URI(), f.Rows)
	}

	return nil
}
