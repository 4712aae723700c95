package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/athena"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/config"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/report"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/storage"
)

// objectStoreFactory builds the object store used by every command.
type objectStoreFactory func(ctx context.Context) (storage.ObjectStore, error)

// queryEngineFactory builds the inventory query engine.
type queryEngineFactory func(ctx context.Context) (report.QueryEngine, error)

// globals holds the state shared by all subcommands.
type globals struct {
	logger    *slog.Logger
	newStore  objectStoreFactory
	newEngine queryEngineFactory
}

func newS3Store(ctx context.Context) (storage.ObjectStore, error) {
	return storage.NewS3Store(ctx, storage.S3StoreConfig{
		Region:   config.GetEnvStr("AWS_REGION", ""),
		Endpoint: config.GetEnvStr("S3_ENDPOINT", ""),
	})
}

func newAthenaEngine(ctx context.Context) (report.QueryEngine, error) {
	return athena.NewEngine(ctx, config.GetEnvStr("AWS_REGION", ""))
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&globals{newStore: newS3Store, newEngine: newAthenaEngine})
}

func newRootCmdWith(g *globals) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "hlsrecon",
		Short: "HLS and LP DAAC reconciliation tool",
		Long: `hlsrecon runs the HLS/LP DAAC reconciliation steps by hand.

It provides commands to:
  - Generate the daily per-product inventory reports
  - Announce a report to LP DAAC
  - Process a discrepancy report and re-trigger missing granules
  - Show trigger object keys for granules
  - List recorded reconciliation runs

Configuration is read from the same environment variables as the Lambda functions.`,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := config.GetEnvLogLevel("LOG_LEVEL", slog.LevelWarn)
			if verbose {
				level = slog.LevelDebug
			}

			g.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			slog.SetDefault(g.logger)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	root.SetOut(os.Stdout)

	root.AddCommand(
		newGenerateReportCmd(g),
		newRequestCmd(g),
		newReconcileCmd(g),
		newTriggerKeyCmd(),
		newRunsCmd(g),
	)

	return root
}
