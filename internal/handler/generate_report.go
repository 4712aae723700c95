package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/report"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/storage"
)

// DefaultReportLag is how far before today a report starts by default.
const DefaultReportLag = 2 * 24 * time.Hour

// ErrInvalidStartDate is returned for a report_start_date that is not YYYY-MM-DD.
var ErrInvalidStartDate = errors.New("invalid report start date")

type (
	// Event is the generate-report invocation payload. Both fields are optional.
	Event struct {
		//nolint:tagliatelle // field names are part of the scheduled event contract
		ReportStartDate string `json:"report_start_date,omitempty"`
		//nolint:tagliatelle // field names are part of the scheduled event contract
		ProductPrefixes []string `json:"product_prefixes,omitempty"`
	}

	// GenerateReport writes the daily per-product inventory reports.
	GenerateReport struct {
		generator  *report.Generator
		fileConfig *report.FileConfig
		version    string
		ledger     Ledger
		logger     *slog.Logger
		now        func() time.Time
	}
)

// NewGenerateReport creates a GenerateReport handler. fileConfig and ledger may be nil.
func NewGenerateReport(
	generator *report.Generator,
	fileConfig *report.FileConfig,
	version string,
	ledger Ledger,
	logger *slog.Logger,
) *GenerateReport {
	if logger == nil {
		logger = slog.Default()
	}

	return &GenerateReport{
		generator:  generator,
		fileConfig: fileConfig,
		version:    version,
		ledger:     ledger,
		logger:     logger,
		now:        time.Now,
	}
}

// StartDate resolves the report day of event: its report_start_date, or two
// days before today.
func (h *GenerateReport) StartDate(event Event) (time.Time, error) {
	if event.ReportStartDate == "" {
		y, m, d := h.now().UTC().Add(-DefaultReportLag).Date()

		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}

	day, err := time.Parse(time.DateOnly, event.ReportStartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidStartDate, event.ReportStartDate)
	}

	return day, nil
}

// Handle generates the reports selected by event.
func (h *GenerateReport) Handle(ctx context.Context, event Event) (*report.Result, error) {
	startTime := time.Now()

	day, err := h.StartDate(event)
	if err != nil {
		return nil, err
	}

	invocationID := uuid.New()
	logger := h.logger.With(slog.String("invocation_id", invocationID.String()))

	req := report.Request{
		StartDate:       day,
		ProductPrefixes: h.fileConfig.ResolveProductPrefixes(event.ProductPrefixes),
		FileExtensions:  h.fileConfig.ResolveFileExtensions(),
	}

	run := startRun(ctx, h.ledger, logger, storage.Run{Kind: storage.RunKindReport})

	result, err := h.generator.Generate(ctx, req)

	run.recordReportFiles(ctx, h.version, result)
	run.complete(ctx, err)

	if err != nil {
		logger.Error("Report generation failed",
			slog.String("start_date", day.Format(time.DateOnly)),
			slog.String("error", err.Error()))

		return nil, err
	}

	logger.Info("Report generation completed",
		slog.String("start_date", day.Format(time.DateOnly)),
		slog.String("query_id", result.QueryID),
		slog.Int("files", len(result.Files)),
		slog.Duration("duration", time.Since(startTime)),
	)

	return result, nil
}
