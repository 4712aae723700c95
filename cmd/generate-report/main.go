// Package main provides the generate-report Lambda: it writes the daily
// per-product inventory reports for LP DAAC.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/athena"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/config"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/handler"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/report"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/storage"
)

func main() {
	logger := config.NewLogger()
	slog.SetDefault(logger)

	ctx := context.Background()

	reportConfig, err := handler.LoadGenerateReportConfig()
	if err != nil {
		logger.Error("Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fileConfig, err := report.LoadFileConfigFromEnv()
	if err != nil {
		logger.Error("Failed to load report config file", slog.String("error", err.Error()))
		os.Exit(1)
	}

	region := config.GetEnvStr("AWS_REGION", "")

	engine, err := athena.NewEngine(ctx, region)
	if err != nil {
		logger.Error("Failed to create query engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store, err := storage.NewS3Store(ctx, storage.S3StoreConfig{
		Region:   region,
		Endpoint: config.GetEnvStr("S3_ENDPOINT", ""),
	})
	if err != nil {
		logger.Error("Failed to create object store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	generator, err := reportConfig.NewGenerator(engine, store, logger)
	if err != nil {
		logger.Error("Failed to create report generator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ledger, err := handler.OpenLedger(storage.LoadConfig(), logger)
	if err != nil {
		logger.Error("Failed to open run ledger", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Generate-report handler initialized",
		slog.String("table", reportConfig.Report.Table),
		slog.String("output_prefix", reportConfig.Report.OutputPrefix),
		slog.String("version", reportConfig.Report.ProductVersion),
		slog.Duration("poll_delay", reportConfig.PollDelay),
		slog.Int("poll_max_attempts", reportConfig.PollMaxAttempts),
	)

	h := handler.NewGenerateReport(generator, fileConfig, reportConfig.Report.ProductVersion, ledger, logger)

	lambda.Start(h.Handle)
}
