// Package main provides the request Lambda: it announces each new inventory
// report to LP DAAC.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/config"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/handler"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/messaging"
)

func main() {
	logger := config.NewLogger()
	slog.SetDefault(logger)

	topic, err := handler.LoadRequestTopic()
	if err != nil {
		logger.Error("Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	messagingConfig := messaging.LoadConfig()

	publisher, err := messaging.NewPublisher(context.Background(), messagingConfig, logger)
	if err != nil {
		logger.Error("Failed to create publisher", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Request handler initialized",
		slog.String("topic", topic),
		slog.String("backend", messagingConfig.Backend),
	)

	lambda.Start(handler.NewRequest(publisher, topic, logger).Handle)
}
