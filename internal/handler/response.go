package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/discrepancy"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/notification"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/reingest"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/storage"
)

// Response processes LP DAAC reconciliation responses.
type Response struct {
	store   storage.ObjectStore
	decider *reingest.Decider
	router  reingest.BucketRouter
	ledger  Ledger
	logger  *slog.Logger
}

// NewResponse creates a Response handler. ledger may be nil.
func NewResponse(
	store storage.ObjectStore,
	decider *reingest.Decider,
	router reingest.BucketRouter,
	ledger Ledger,
	logger *slog.Logger,
) *Response {
	if logger == nil {
		logger = slog.Default()
	}

	return &Response{store: store, decider: decider, router: router, ledger: ledger, logger: logger}
}

// Handle processes every SNS record and returns the merged per-collection
// outcome counts. A record whose subject marks a clean reconciliation
// contributes nothing.
func (h *Response) Handle(ctx context.Context, event events.SNSEvent) (reingest.Summary, error) {
	if len(event.Records) == 0 {
		return nil, ErrNoRecords
	}

	summary := make(reingest.Summary)

	for _, record := range event.Records {
		if notification.IsNoDiscrepancy(record.SNS.Subject) {
			h.logger.Info("No discrepancies reported", slog.String("subject", record.SNS.Subject))

			continue
		}

		loc, err := notification.ExtractReportLocation(record.SNS.Message)
		if err != nil {
			return nil, err
		}

		result, err := h.ReconcileObject(ctx, loc)
		if err != nil {
			return nil, err
		}

		summary.Merge(result.Summary())
	}

	return summary, nil
}

// ReconcileObject fetches the discrepancy report at loc and processes it.
func (h *Response) ReconcileObject(ctx context.Context, loc notification.Location) (*reingest.Result, error) {
	data, err := storage.ReadAll(ctx, h.store, loc.Bucket, loc.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", loc, err)
	}

	return h.Reconcile(ctx, loc, data)
}

// Reconcile processes the discrepancy report data that was published at loc.
// The location selects the trigger bucket and names the run in the ledger.
func (h *Response) Reconcile(ctx context.Context, loc notification.Location, data []byte) (*reingest.Result, error) {
	return h.ReconcileInto(ctx, h.router.BucketFor(loc), loc.String(), data)
}

// ReconcileInto processes the discrepancy report data against the trigger
// objects in bucket. reportURI only names the run.
func (h *Response) ReconcileInto(ctx context.Context, bucket, reportURI string, data []byte) (*reingest.Result, error) {
	startTime := time.Now()
	invocationID := uuid.New()
	logger := h.logger.With(
		slog.String("invocation_id", invocationID.String()),
		slog.String("report_uri", reportURI),
	)

	run := startRun(ctx, h.ledger, logger, storage.Run{
		Kind:      storage.RunKindResponse,
		ReportURI: reportURI,
		Bucket:    bucket,
		DryRun:    h.decider.DryRun(),
	})

	result, err := h.process(ctx, bucket, data, logger)

	run.recordOutcomes(ctx, result)
	run.complete(ctx, err)

	if err != nil {
		logger.Error("Reconciliation failed", slog.String("error", err.Error()))

		return nil, err
	}

	totals := result.Totals()
	logger.Info("Reconciliation report processed",
		slog.String("bucket", bucket),
		slog.Int("collections", len(result.Collections)),
		slog.Int(string(reingest.OutcomeTriggered), totals[reingest.OutcomeTriggered]),
		slog.Int(string(reingest.OutcomeMissing), totals[reingest.OutcomeMissing]),
		slog.Int(string(reingest.OutcomeSkipped), totals[reingest.OutcomeSkipped]),
		slog.Int(string(reingest.OutcomeError), totals[reingest.OutcomeError]),
		slog.Duration("duration", time.Since(startTime)),
	)

	return result, nil
}

func (h *Response) process(ctx context.Context, bucket string, data []byte, logger *slog.Logger) (*reingest.Result, error) {
	rpt, err := discrepancy.Parse(data)
	if err != nil {
		return nil, err
	}

	groups := discrepancy.GroupGranuleIDs(rpt)

	logger.Info("Processing discrepancy report",
		slog.String("bucket", bucket),
		slog.Int("collections", len(groups)),
		slog.Bool("catalog_check", h.decider.CatalogEnabled()),
		slog.Bool("dry_run", h.decider.DryRun()),
	)

	return h.decider.ProcessReport(ctx, bucket, groups)
}
