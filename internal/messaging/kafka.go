package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const kafkaWriteTimeout = 10 * time.Second

var _ Publisher = (*KafkaPublisher)(nil)

type (
	// MessageWriter is the subset of kafka.Writer used by KafkaPublisher.
	MessageWriter interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// KafkaPublisher publishes to Kafka topics through a single writer.
	KafkaPublisher struct {
		writer MessageWriter
		logger *slog.Logger
	}
)

// NewKafkaPublisher creates a publisher writing to brokers. Every message
// names its own topic, so one writer serves all topics.
func NewKafkaPublisher(brokers []string, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           kafkaWriteTimeout,
	}

	return NewKafkaPublisherWithWriter(writer, logger), nil
}

// NewKafkaPublisherWithWriter wraps an existing writer.
func NewKafkaPublisherWithWriter(writer MessageWriter, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &KafkaPublisher{writer: writer, logger: logger}
}

// Publish writes payload to topic and waits for all in-sync replicas.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Value: payload}); err != nil {
		return fmt.Errorf("%w to %s: %w", ErrPublishFailed, topic, err)
	}

	p.logger.Debug("Published message", slog.String("topic", topic))

	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
