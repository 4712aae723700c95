package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/catalog"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/config"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/reingest"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/report"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/storage"
)

const (
	defaultTouchRateLimit = 50.0
	defaultTouchBurst     = 10
)

type (
	// ResponseConfig configures the response handler.
	ResponseConfig struct {
		Router         reingest.BucketRouter
		CatalogCheck   bool
		CMR            catalog.CMRConfig
		TouchRateLimit float64
		TouchBurst     int
		DryRun         bool
	}

	// GenerateReportConfig configures the generate-report handler.
	GenerateReportConfig struct {
		Report          report.Config
		PollDelay       time.Duration
		PollMaxAttempts int
	}
)

// LoadRequestTopic reads LPDAAC_REQUEST_TOPIC_ARN.
func LoadRequestTopic() (string, error) {
	return config.RequireEnvStr("LPDAAC_REQUEST_TOPIC_ARN")
}

// LoadResponseConfig reads the response handler configuration.
//
// Environment variables:
//   - HLS_FORWARD_BUCKET, HLS_HISTORICAL_BUCKET: trigger buckets (required)
//   - ENABLE_CATALOG_CHECK: skip granules already in CMR (default: false)
//   - CMR_URL, CMR_TIMEOUT, CMR_PROVIDER: catalog client settings
//   - TOUCH_RATE_LIMIT, TOUCH_BURST: trigger touch throttle (default: 50/s, burst 10)
//   - DRY_RUN: decide outcomes without touching (default: false)
func LoadResponseConfig() (ResponseConfig, error) {
	forward, forwardErr := config.RequireEnvStr("HLS_FORWARD_BUCKET")
	historical, historicalErr := config.RequireEnvStr("HLS_HISTORICAL_BUCKET")

	if err := errors.Join(forwardErr, historicalErr); err != nil {
		return ResponseConfig{}, err
	}

	return ResponseConfig{
		Router:         reingest.BucketRouter{Forward: forward, Historical: historical},
		CatalogCheck:   config.GetEnvBool("ENABLE_CATALOG_CHECK", false),
		CMR:            catalog.LoadCMRConfig(),
		TouchRateLimit: config.GetEnvFloat("TOUCH_RATE_LIMIT", defaultTouchRateLimit),
		TouchBurst:     config.GetEnvInt("TOUCH_BURST", defaultTouchBurst),
		DryRun:         config.GetEnvBool("DRY_RUN", false),
	}, nil
}

// NewDecider builds the decider described by c on store.
func (c ResponseConfig) NewDecider(store reingest.ObjectStore, logger *slog.Logger) *reingest.Decider {
	cfg := reingest.Config{
		TouchRateLimit: c.TouchRateLimit,
		TouchBurst:     c.TouchBurst,
		DryRun:         c.DryRun,
	}

	if c.CatalogCheck {
		cfg.Catalog = catalog.NewCMRClient(c.CMR, logger)
	}

	return reingest.NewDecider(store, cfg, logger)
}

// LoadGenerateReportConfig reads the generate-report handler configuration.
//
// Environment variables:
//   - INVENTORY_TABLE_NAME: inventory table (required)
//   - QUERY_OUTPUT_PREFIX: s3:// prefix for raw query results (required)
//   - REPORT_OUTPUT_PREFIX: s3:// prefix reports are written under (required)
//   - HLS_PRODUCT_VERSION: HLS version without "v", e.g. 2.0 (required)
//   - ATHENA_CATALOG, ATHENA_DATABASE: query context (default: AwsDataCatalog, default)
//   - HLS_LPDAAC_REPORT_EXTENSION: report file suffix (default: .rpt)
//   - QUERY_POLL_DELAY, QUERY_POLL_MAX_ATTEMPTS: query polling (default: 5s, 60)
//   - REPORT_TEMP_DIR: scratch directory for report files (default: os.TempDir)
func LoadGenerateReportConfig() (GenerateReportConfig, error) {
	table, tableErr := config.RequireEnvStr("INVENTORY_TABLE_NAME")
	queryOutput, queryErr := config.RequireEnvStr("QUERY_OUTPUT_PREFIX")
	reportOutput, reportErr := config.RequireEnvStr("REPORT_OUTPUT_PREFIX")
	version, versionErr := config.RequireEnvStr("HLS_PRODUCT_VERSION")

	if err := errors.Join(tableErr, queryErr, reportErr, versionErr); err != nil {
		return GenerateReportConfig{}, err
	}

	if _, _, err := report.ParseOutputPrefix(reportOutput); err != nil {
		return GenerateReportConfig{}, fmt.Errorf("REPORT_OUTPUT_PREFIX: %w", err)
	}

	return GenerateReportConfig{
		Report: report.Config{
			Table:               table,
			Catalog:             config.GetEnvStr("ATHENA_CATALOG", "AwsDataCatalog"),
			Database:            config.GetEnvStr("ATHENA_DATABASE", "default"),
			QueryOutputLocation: queryOutput,
			OutputPrefix:        reportOutput,
			ProductVersion:      version,
			Extension:           config.GetEnvStr("HLS_LPDAAC_REPORT_EXTENSION", report.DefaultReportExtension),
			TempDir:             config.GetEnvStr("REPORT_TEMP_DIR", ""),
		},
		PollDelay:       config.GetEnvDuration("QUERY_POLL_DELAY", report.DefaultPollDelay),
		PollMaxAttempts: config.GetEnvInt("QUERY_POLL_MAX_ATTEMPTS", report.DefaultPollMaxAttempts),
	}, nil
}

// NewGenerator builds the report generator described by c.
func (c GenerateReportConfig) NewGenerator(
	engine report.QueryEngine,
	store report.ObjectWriter,
	logger *slog.Logger,
) (*report.Generator, error) {
	poller := report.NewPoller(c.PollDelay, c.PollMaxAttempts, logger)

	return report.NewGenerator(engine, store, poller, c.Report, logger)
}

// OpenLedger connects the run ledger described by cfg. It returns a nil Ledger
// and no error when no database is configured.
func OpenLedger(cfg *storage.Config, logger *slog.Logger) (Ledger, error) {
	if !cfg.Enabled() {
		logger.Info("Run ledger disabled", slog.String("note", "Set DATABASE_URL to record runs"))

		return nil, nil
	}

	conn, err := storage.NewConnection(cfg)
	if err != nil {
		return nil, err
	}

	ledger, err := storage.NewLedgerStore(conn, logger)
	if err != nil {
		_ = conn.Close()

		return nil, err
	}

	logger.Info("Run ledger enabled", slog.String("database_url", cfg.MaskDatabaseURL()))

	return ledger, nil
}
