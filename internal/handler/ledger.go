// Package handler implements the three Lambda entry points: publishing
// reconciliation requests, processing LP DAAC responses, and generating the
// daily inventory reports.
//
// Handlers receive their clients at construction and hold no per-invocation
// state, so one value serves every invocation of a warm Lambda container.
package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/reingest"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/report"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/storage"
)

// Ledger records runs. *storage.LedgerStore implements it.
type Ledger interface {
	StartRun(ctx context.Context, run storage.Run) (uuid.UUID, error)
	RecordOutcomes(ctx context.Context, runID uuid.UUID, outcomes []storage.CollectionOutcome) error
	RecordReportFile(ctx context.Context, runID uuid.UUID, file storage.ReportFile) error
	CompleteRun(ctx context.Context, runID uuid.UUID, runErr error) error
	Close() error
}

var _ Ledger = (*storage.LedgerStore)(nil)

// runRecorder writes one run to the ledger. Ledger failures are logged and
// never fail the invocation; a recorder without a ledger, or whose run could
// not be started, does nothing.
type runRecorder struct {
	ledger Ledger
	logger *slog.Logger
	runID  uuid.UUID
}

func startRun(ctx context.Context, ledger Ledger, logger *slog.Logger, run storage.Run) *runRecorder {
	r := &runRecorder{ledger: ledger, logger: logger}
	if ledger == nil {
		return r
	}

	runID, err := ledger.StartRun(ctx, run)
	if err != nil {
		logger.Warn("Failed to record run start",
			slog.Bool("connection_error", storage.IsConnectionError(err)),
			slog.String("error", err.Error()))

		return r
	}

	r.runID = runID

	return r
}

func (r *runRecorder) active() bool {
	return r.ledger != nil && r.runID != uuid.Nil
}

func (r *runRecorder) recordOutcomes(ctx context.Context, result *reingest.Result) {
	if !r.active() || result == nil {
		return
	}

	if err := r.ledger.RecordOutcomes(ctx, r.runID, collectionOutcomes(result)); err != nil {
		r.logger.Warn("Failed to record run outcomes",
			slog.String("run_id", r.runID.String()),
			slog.String("error", err.Error()))
	}
}

func (r *runRecorder) recordReportFiles(ctx context.Context, version string, result *report.Result) {
	if !r.active() || result == nil {
		return
	}

	for _, f := range result.Files {
		file := storage.ReportFile{
			URI:        f.URI(),
			Product:    f.Product,
			Version:    version,
			ReportDate: result.StartDate,
			RowCount:   f.Rows,
		}

		if err := r.ledger.RecordReportFile(ctx, r.runID, file); err != nil {
			r.logger.Warn("Failed to record report file",
				slog.String("run_id", r.runID.String()),
				slog.String("uri", file.URI),
				slog.String("error", err.Error()))
		}
	}
}

// complete closes the run. It uses a fresh context so that a cancelled
// invocation still records its failure.
func (r *runRecorder) complete(ctx context.Context, runErr error) {
	if !r.active() {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := r.ledger.CompleteRun(ctx, r.runID, runErr); err != nil {
		r.logger.Warn("Failed to record run completion",
			slog.String("run_id", r.runID.String()),
			slog.String("error", err.Error()))
	}
}

func collectionOutcomes(result *reingest.Result) []storage.CollectionOutcome {
	outcomes := make([]storage.CollectionOutcome, len(result.Collections))

	for i, c := range result.Collections {
		outcomes[i] = storage.CollectionOutcome{
			CollectionID:    c.CollectionID,
			FileCount:       c.FileCount,
			Triggered:       c.Count(reingest.OutcomeTriggered),
			Missing:         c.Count(reingest.OutcomeMissing),
			Skipped:         c.Count(reingest.OutcomeSkipped),
			Errored:         c.Count(reingest.OutcomeError),
			MissingGranules: c.Granules[reingest.OutcomeMissing],
		}
	}

	return outcomes
}
