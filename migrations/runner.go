package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type (
	// MigrationRunner applies the ledger schema migrations.
	MigrationRunner interface {
		Up() error
		Down() error
		Status() (Status, error)
		Drop() error
		Close() error
	}

	// Status describes the schema version of the database against the
	// migrations compiled into the binary.
	Status struct {
		// Version is the applied version, 0 when no migration has run.
		Version int
		Dirty   bool
		Latest  int
	}

	// Runner implements MigrationRunner with golang-migrate.
	Runner struct {
		source  *Source
		migrate *migrate.Migrate
		db      *sql.DB
		logger  *slog.Logger
	}

	// migrateLogger forwards golang-migrate output to slog.
	migrateLogger struct {
		logger *slog.Logger
	}
)

var (
	_ MigrationRunner = (*Runner)(nil)
	_ migrate.Logger  = (*migrateLogger)(nil)
)

// NewMigrationRunner validates source, connects to the database and prepares
// the migrations. A nil source uses the embedded migrations.
func NewMigrationRunner(ctx context.Context, cfg *Config, source *Source, logger *slog.Logger) (*Runner, error) {
	if source == nil {
		source = NewSource(nil)
	}

	logger.Info("Initializing migration runner", slog.String("config", cfg.String()))

	if err := source.Validate(); err != nil {
		return nil, fmt.Errorf("migration validation failed: %w", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: cfg.MigrationTable})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(source.FS(), ".")
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{logger: logger}

	return &Runner{source: source, migrate: m, db: db, logger: logger}, nil
}

// Up applies every pending migration.
func (r *Runner) Up() error {
	err := r.migrate.Up()

	switch {
	case errors.Is(err, migrate.ErrNoChange):
		r.logger.Info("No new migrations to apply")
	case err != nil:
		return fmt.Errorf("migration up failed: %w", err)
	default:
		r.logger.Info("All migrations applied")
	}

	return nil
}

// Down rolls back the last applied migration.
func (r *Runner) Down() error {
	if _, _, err := r.migrate.Version(); errors.Is(err, migrate.ErrNilVersion) {
		r.logger.Info("No migrations to roll back")

		return nil
	}

	err := r.migrate.Steps(-1)

	switch {
	case errors.Is(err, migrate.ErrNoChange):
		r.logger.Info("No migrations to roll back")
	case err != nil:
		return fmt.Errorf("migration down failed: %w", err)
	default:
		r.logger.Info("Last migration rolled back")
	}

	return nil
}

// Status reports the applied and latest available schema versions.
func (r *Runner) Status() (Status, error) {
	latest, err := r.source.LatestVersion()
	if err != nil {
		return Status{}, err
	}

	status := Status{Latest: latest}

	version, dirty, err := r.migrate.Version()

	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return status, nil
	case err != nil:
		return Status{}, fmt.Errorf("failed to get migration version: %w", err)
	}

	status.Version = int(version) // #nosec G115 -- migration sequences are three digits
	status.Dirty = dirty

	return status, nil
}

// Drop removes every table in the database.
func (r *Runner) Drop() error {
	r.logger.Warn("Dropping all tables")

	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("drop failed: %w", err)
	}

	return nil
}

// Close releases the migration source and database connection.
func (r *Runner) Close() error {
	var errs []error

	if r.migrate != nil {
		sourceErr, dbErr := r.migrate.Close()
		errs = append(errs, sourceErr, dbErr)
	}

	if r.db != nil {
		errs = append(errs, r.db.Close())
	}

	return errors.Join(errs...)
}

// String renders the status for operators.
func (s Status) String() string {
	state := "clean"
	if s.Dirty {
		state = "dirty, needs manual intervention"
	}

	switch {
	case s.Version == 0:
		return fmt.Sprintf("no migrations applied (latest: %03d)", s.Latest)
	case s.Version == s.Latest:
		return fmt.Sprintf("version %03d (%s), up to date", s.Version, state)
	case s.Version < s.Latest:
		return fmt.Sprintf("version %03d (%s), %d migration(s) pending", s.Version, state, s.Latest-s.Version)
	default:
		return fmt.Sprintf("version %03d (%s), newer than this migrator (latest: %03d)", s.Version, state, s.Latest)
	}
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "migrate"))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
