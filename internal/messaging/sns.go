package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

var _ Publisher = (*SNSPublisher)(nil)

type (
	// SNSAPI is the subset of the SNS client used by SNSPublisher.
	SNSAPI interface {
		Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	}

	// SNSConfig holds configuration for SNSPublisher.
	SNSConfig struct {
		Region   string
		Endpoint string
	}

	// SNSPublisher publishes to SNS topics; the topic is the topic ARN.
	SNSPublisher struct {
		client SNSAPI
		logger *slog.Logger
	}
)

// NewSNSPublisher loads the default AWS configuration and creates an SNS publisher.
func NewSNSPublisher(ctx context.Context, cfg SNSConfig, logger *slog.Logger) (*SNSPublisher, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewSNSPublisherWithClient(client, logger), nil
}

// NewSNSPublisherWithClient wraps an existing client.
func NewSNSPublisherWithClient(client SNSAPI, logger *slog.Logger) *SNSPublisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &SNSPublisher{client: client, logger: logger}
}

// Publish sends payload as the message body to the topic ARN.
func (p *SNSPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topic),
		Message:  aws.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("%w to %s: %w", ErrPublishFailed, topic, err)
	}

	p.logger.Debug("Published message",
		slog.String("topic", topic),
		slog.String("message_id", aws.ToString(out.MessageId)))

	return nil
}

// Close is a no-op; the SNS client holds no connections of its own.
func (p *SNSPublisher) Close() error {
	return nil
}
