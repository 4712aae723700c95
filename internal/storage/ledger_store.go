package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	// ErrLedgerWriteFailed is returned when a ledger write fails.
	ErrLedgerWriteFailed = errors.New("ledger write failed")
	// ErrRunNotFound is returned when completing a run that was never started.
	ErrRunNotFound = errors.New("reconciliation run not found")
)

// RunKind names the handler that produced a run.
type RunKind string

const (
	// RunKindResponse is a run processing an LP DAAC discrepancy report.
	RunKindResponse RunKind = "response"
	// RunKindReport is a run generating inventory reports.
	RunKindReport RunKind = "report"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type (
	// Run is one recorded handler invocation.
	Run struct {
		ID           uuid.UUID
		Kind         RunKind
		ReportURI    string
		Bucket       string
		DryRun       bool
		Status       RunStatus
		ErrorMessage string
		StartedAt    time.Time
		CompletedAt  *time.Time
	}

	// CollectionOutcome holds one collection's outcome counts within a run.
	// MissingGranules lists the granules that need upstream reprocessing.
	CollectionOutcome struct {
		CollectionID    string
		FileCount       int
		Triggered       int
		Missing         int
		Skipped         int
		Errored         int
		MissingGranules []string
	}

	// ReportFile is one product report written by a report run.
	ReportFile struct {
		URI        string
		Product    string
		Version    string
		ReportDate time.Time
		RowCount   int64
	}

	// LedgerStore records reconciliation runs in PostgreSQL.
	LedgerStore struct {
		conn   *Connection
		logger *slog.Logger
		now    func() time.Time
	}
)

// NewLedgerStore creates a ledger on conn.
func NewLedgerStore(conn *Connection, logger *slog.Logger) (*LedgerStore, error) {
	if conn == nil || conn.DB == nil {
		return nil, ErrNoDatabaseConnection
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &LedgerStore{conn: conn, logger: logger, now: time.Now}, nil
}

// HealthCheck verifies the underlying connection.
func (s *LedgerStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

// Close releases the connection pool.
func (s *LedgerStore) Close() error {
	return s.conn.Close()
}

// StartRun inserts run in the running state. A zero ID is replaced by a new
// UUID; the stored ID is returned.
func (s *LedgerStore) StartRun(ctx context.Context, run Run) (uuid.UUID, error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	if run.StartedAt.IsZero() {
		run.StartedAt = s.now().UTC()
	}

	const query = `
		INSERT INTO reconciliation_runs (id, kind, report_uri, bucket, dry_run, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.conn.ExecContext(ctx, query,
		run.ID, string(run.Kind), run.ReportURI, run.Bucket, run.DryRun, string(RunStatusRunning), run.StartedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: start run: %w", ErrLedgerWriteFailed, err)
	}

	s.logger.Debug("Reconciliation run started",
		slog.String("run_id", run.ID.String()),
		slog.String("kind", string(run.Kind)),
	)

	return run.ID, nil
}

// RecordOutcomes stores the per-collection counts and missing granules of a
// run in a single transaction.
func (s *LedgerStore) RecordOutcomes(ctx context.Context, runID uuid.UUID, outcomes []CollectionOutcome) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", ErrLedgerWriteFailed, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	const outcomeQuery = `
		INSERT INTO collection_outcomes (run_id, collection_id, file_count, triggered, missing, skipped, errored)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, collection_id) DO UPDATE SET
			file_count = EXCLUDED.file_count,
			triggered = EXCLUDED.triggered,
			missing = EXCLUDED.missing,
			skipped = EXCLUDED.skipped,
			errored = EXCLUDED.errored`

	const missingQuery = `
		INSERT INTO missing_granules (run_id, collection_id, granule_id)
		SELECT $1, $2, unnest($3::text[])
		ON CONFLICT DO NOTHING`

	for _, o := range outcomes {
		_, err := tx.ExecContext(ctx, outcomeQuery,
			runID, o.CollectionID, o.FileCount, o.Triggered, o.Missing, o.Skipped, o.Errored,
		)
		if err != nil {
			return fmt.Errorf("%w: collection %s: %w", ErrLedgerWriteFailed, o.CollectionID, err)
		}

		if len(o.MissingGranules) == 0 {
			continue
		}

		if _, err := tx.ExecContext(ctx, missingQuery, runID, o.CollectionID, pq.Array(o.MissingGranules)); err != nil {
			return fmt.Errorf("%w: missing granules of %s: %w", ErrLedgerWriteFailed, o.CollectionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrLedgerWriteFailed, err)
	}

	return nil
}

// RecordReportFile stores one written report file.
func (s *LedgerStore) RecordReportFile(ctx context.Context, runID uuid.UUID, file ReportFile) error {
	const query = `
		INSERT INTO report_files (run_id, uri, product, version, report_date, row_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, uri) DO UPDATE SET row_count = EXCLUDED.row_count`

	_, err := s.conn.ExecContext(ctx, query,
		runID, file.URI, file.Product, file.Version, file.ReportDate.UTC().Format(time.DateOnly), file.RowCount,
	)
	if err != nil {
		return fmt.Errorf("%w: report file %s: %w", ErrLedgerWriteFailed, file.URI, err)
	}

	return nil
}

// CompleteRun moves a running run to completed, or to failed when runErr is
// non-nil. Runs already in a terminal state are left untouched.
func (s *LedgerStore) CompleteRun(ctx context.Context, runID uuid.UUID, runErr error) error {
	status := RunStatusCompleted

	var message sql.NullString

	if runErr != nil {
		status = RunStatusFailed
		message = sql.NullString{String: runErr.Error(), Valid: true}
	}

	const query = `
		UPDATE reconciliation_runs
		SET status = $2, error_message = $3, completed_at = $4
		WHERE id = $1 AND status = 'running'`

	result, err := s.conn.ExecContext(ctx, query, runID, string(status), message, s.now().UTC())
	if err != nil {
		return fmt.Errorf("%w: complete run: %w", ErrLedgerWriteFailed, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: complete run: %w", ErrLedgerWriteFailed, err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *LedgerStore) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	const query = `
		SELECT id, kind, report_uri, bucket, dry_run, status, COALESCE(error_message, ''), started_at, completed_at
		FROM reconciliation_runs
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := s.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var runs []Run

	for rows.Next() {
		var (
			run         Run
			kind        string
			status      string
			completedAt sql.NullTime
		)

		err := rows.Scan(
			&run.ID, &kind, &run.ReportURI, &run.Bucket, &run.DryRun,
			&status, &run.ErrorMessage, &run.StartedAt, &completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.Kind = RunKind(kind)
		run.Status = RunStatus(status)

		if completedAt.Valid {
			t := completedAt.Time
			run.CompletedAt = &t
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

// MissingGranules returns the granules recorded as missing by a run, ordered
// by collection then granule ID.
func (s *LedgerStore) MissingGranules(ctx context.Context, runID uuid.UUID) (map[string][]string, error) {
	const query = `
		SELECT collection_id, granule_id
		FROM missing_granules
		WHERE run_id = $1
		ORDER BY collection_id, granule_id`

	rows, err := s.conn.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query missing granules: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	missing := make(map[string][]string)

	for rows.Next() {
		var collectionID, granuleID string
		if err := rows.Scan(&collectionID, &granuleID); err != nil {
			return nil, fmt.Errorf("failed to scan missing granule: %w", err)
		}

		missing[collectionID] = append(missing[collectionID], granuleID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate missing granules: %w", err)
	}

	return missing, nil
}

// IsConnectionError reports whether err indicates a lost database connection.
// Uses PostgreSQL error class 08 (connection exception) and the database/sql
// connection sentinels.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.HasPrefix(string(pqErr.Code), "08")
	}

	return errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn)
}
