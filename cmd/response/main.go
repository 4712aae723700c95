// Package main provides the response Lambda: it processes LP DAAC
// reconciliation responses and re-triggers ingestion of missing granules.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/config"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/handler"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/storage"
)

func main() {
	logger := config.NewLogger()
	slog.SetDefault(logger)

	responseConfig, err := handler.LoadResponseConfig()
	if err != nil {
		logger.Error("Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store, err := storage.NewS3Store(context.Background(), storage.S3StoreConfig{
		Region:   config.GetEnvStr("AWS_REGION", ""),
		Endpoint: config.GetEnvStr("S3_ENDPOINT", ""),
	})
	if err != nil {
		logger.Error("Failed to create object store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ledger, err := handler.OpenLedger(storage.LoadConfig(), logger)
	if err != nil {
		logger.Error("Failed to open run ledger", slog.String("error", err.Error()))
		os.Exit(1)
	}

	decider := responseConfig.NewDecider(store, logger)

	logger.Info("Response handler initialized",
		slog.String("forward_bucket", responseConfig.Router.Forward),
		slog.String("historical_bucket", responseConfig.Router.Historical),
		slog.Bool("catalog_check", decider.CatalogEnabled()),
		slog.Float64("touch_rate_limit", responseConfig.TouchRateLimit),
		slog.Bool("dry_run", responseConfig.DryRun),
	)

	lambda.Start(handler.NewResponse(store, decider, responseConfig.Router, ledger, logger).Handle)
}
