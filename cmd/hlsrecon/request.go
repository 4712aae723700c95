package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/handler"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/messaging"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/notification"
)

type requestOptions struct {
	topic string
}

func newRequestCmd(g *globals) *cobra.Command {
	opts := &requestOptions{}

	cmd := &cobra.Command{
		Use:   "request <s3-uri>",
		Short: "Announce a report to LP DAAC",
		Long: `Publish the reconciliation request message for an existing report.

The topic defaults to LPDAAC_REQUEST_TOPIC_ARN; MESSAGING_BACKEND selects sns or kafka.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runRequest(c.Context(), g, opts, args[0], c.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.topic, "topic", "", "topic to publish to")

	return cmd
}

func runRequest(ctx context.Context, g *globals, opts *requestOptions, uri string, out io.Writer) error {
	loc, err := notification.ParseS3URI(uri)
	if err != nil {
		return err
	}

	topic := opts.topic
	if topic == "" {
		if topic, err = handler.LoadRequestTopic(); err != nil {
			return err
		}
	}

	publisher, err := messaging.NewPublisher(ctx, messaging.LoadConfig(), g.logger)
	if err != nil {
		return err
	}

	defer func() { _ = publisher.Close() }()

	msg, err := handler.NewRequest(publisher, topic, g.logger).Publish(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return err
	}

	payload, err := msg.Marshal()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, string(payload))

	return nil
}
