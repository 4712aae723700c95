// Package messaging publishes reconciliation requests to LP DAAC.
//
// SNS is the production transport. Kafka is available for deployments that
// route requests through a broker instead.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/config"
)

// Supported MESSAGING_BACKEND values.
const (
	BackendSNS   = "sns"
	BackendKafka = "kafka"
)

var (
	// ErrPublishFailed is returned when a message could not be delivered.
	ErrPublishFailed = errors.New("failed to publish message")
	// ErrUnknownBackend is returned for an unsupported MESSAGING_BACKEND.
	ErrUnknownBackend = errors.New("unknown messaging backend")
	// ErrNoBrokers is returned when the Kafka backend has no brokers configured.
	ErrNoBrokers = errors.New("kafka backend requires at least one broker")
	// ErrEmptyTopic is returned when Publish is called without a topic.
	ErrEmptyTopic = errors.New("topic is required")
)

// Publisher delivers a payload to a topic: an SNS topic ARN or a Kafka topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Config selects and configures the publisher backend.
type Config struct {
	Backend string
	Region  string
	// Endpoint overrides the SNS endpoint (LocalStack).
	Endpoint string
	Brokers  []string
}

// LoadConfig reads the publisher configuration from the environment.
//
// Environment variables:
//   - MESSAGING_BACKEND: sns or kafka (default: sns)
//   - AWS_REGION: SNS region (default: SDK resolution)
//   - SNS_ENDPOINT: custom SNS endpoint (default: none)
//   - KAFKA_BROKERS: comma-separated broker addresses (default: none)
func LoadConfig() Config {
	return Config{
		Backend:  strings.ToLower(config.GetEnvStr("MESSAGING_BACKEND", BackendSNS)),
		Region:   config.GetEnvStr("AWS_REGION", ""),
		Endpoint: config.GetEnvStr("SNS_ENDPOINT", ""),
		Brokers:  config.GetEnvList("KAFKA_BROKERS", nil),
	}
}

// NewPublisher creates the publisher named by cfg.Backend.
func NewPublisher(ctx context.Context, cfg Config, logger *slog.Logger) (Publisher, error) {
	switch cfg.Backend {
	case "", BackendSNS:
		return NewSNSPublisher(ctx, SNSConfig{Region: cfg.Region, Endpoint: cfg.Endpoint}, logger)
	case BackendKafka:
		return NewKafkaPublisher(cfg.Brokers, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
