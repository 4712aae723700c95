package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/messaging"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/notification"
)

// ErrNoRecords is returned for an event without records.
var ErrNoRecords = errors.New("event contains no records")

// Request announces newly written inventory reports to LP DAAC.
type Request struct {
	publisher messaging.Publisher
	topic     string
	logger    *slog.Logger
}

// NewRequest creates a Request handler publishing to topic.
func NewRequest(publisher messaging.Publisher, topic string, logger *slog.Logger) *Request {
	if logger == nil {
		logger = slog.Default()
	}

	return &Request{publisher: publisher, topic: topic, logger: logger}
}

// Handle publishes one reconciliation request per S3 record and returns the
// message of the first record.
func (h *Request) Handle(ctx context.Context, event events.S3Event) (notification.RequestMessage, error) {
	if len(event.Records) == 0 {
		return notification.RequestMessage{}, ErrNoRecords
	}

	var first notification.RequestMessage

	for i, record := range event.Records {
		key := record.S3.Object.URLDecodedKey
		if key == "" {
			key = record.S3.Object.Key
		}

		msg, err := h.Publish(ctx, record.S3.Bucket.Name, key)
		if err != nil {
			return notification.RequestMessage{}, err
		}

		if i == 0 {
			first = msg
		}
	}

	return first, nil
}

// Publish sends the reconciliation request for the report at bucket/key.
func (h *Request) Publish(ctx context.Context, bucket, key string) (notification.RequestMessage, error) {
	msg := notification.NewRequestMessage(bucket, key)

	payload, err := msg.Marshal()
	if err != nil {
		return notification.RequestMessage{}, fmt.Errorf("failed to encode request: %w", err)
	}

	h.logger.Info("Publishing HLS inventory report",
		slog.String("topic", h.topic),
		slog.String("report_uri", msg.Report.URI))

	if err := h.publisher.Publish(ctx, h.topic, payload); err != nil {
		return notification.RequestMessage{}, err
	}

	return msg, nil
}
