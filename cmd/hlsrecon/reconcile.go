package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/handler"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/notification"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/reingest"
)

type reconcileOptions struct {
	dryRun     bool
	historical bool
	details    bool
}

func newReconcileCmd(g *globals) *cobra.Command {
	opts := &reconcileOptions{}

	cmd := &cobra.Command{
		Use:   "reconcile <s3-uri|file>",
		Short: "Process a discrepancy report",
		Long: `Process an LP DAAC discrepancy report and re-trigger the granules it lists.

The report is read from S3 when given an s3:// URI and from the local file system
otherwise. Local reports are routed to HLS_FORWARD_BUCKET unless --historical is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runReconcile(c.Context(), g, opts, args[0], c.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "decide outcomes without touching trigger objects")
	cmd.Flags().BoolVar(&opts.historical, "historical", false, "route a local report to HLS_HISTORICAL_BUCKET")
	cmd.Flags().BoolVar(&opts.details, "details", false, "print granule IDs per outcome instead of counts")

	return cmd
}

func runReconcile(ctx context.Context, g *globals, opts *reconcileOptions, source string, out io.Writer) error {
	cfg, err := handler.LoadResponseConfig()
	if err != nil {
		return err
	}

	cfg.DryRun = cfg.DryRun || opts.dryRun

	store, err := g.newStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}

	var result *reingest.Result

	if strings.HasPrefix(source, "s3://") {
		loc, err := notification.ParseS3URI(source)
		if err != nil {
			return err
		}

		h := handler.NewResponse(store, cfg.NewDecider(store, g.logger), cfg.Router, nil, g.logger)

		if result, err = h.ReconcileObject(ctx, loc); err != nil {
			return err
		}
	} else {
		data, err := os.ReadFile(source) //nolint:gosec // path is supplied by the operator
		if err != nil {
			return fmt.Errorf("failed to read report: %w", err)
		}

		bucket := cfg.Router.Forward
		if opts.historical {
			bucket = cfg.Router.Historical
		}

		h := handler.NewResponse(store, cfg.NewDecider(store, g.logger), cfg.Router, nil, g.logger)

		if result, err = h.ReconcileInto(ctx, bucket, "file://"+source, data); err != nil {
			return err
		}
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	if opts.details {
		return encoder.Encode(result.Collections)
	}

	return encoder.Encode(result.Summary())
}
