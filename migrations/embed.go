package main

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
)

const (
	directionUp   = "up"
	directionDown = "down"
)

var (
	// ErrNoMigrations is returned when the source holds no migration files.
	ErrNoMigrations = errors.New("no migration files found")
	// ErrInvalidFilename is returned for .sql files not named NNN_name.(up|down).sql.
	ErrInvalidFilename = errors.New("invalid migration filename")
	// ErrUnpairedMigration is returned when an up or down file has no counterpart.
	ErrUnpairedMigration = errors.New("unpaired migration")
	// ErrSequenceGap is returned when sequence numbers do not run 001, 002, ... without gaps.
	ErrSequenceGap = errors.New("gap in migration sequence")
	// ErrDuplicateSequence is returned when two migrations share a sequence number.
	ErrDuplicateSequence = errors.New("duplicate migration sequence")
)

//go:embed *.sql
var embeddedMigrations embed.FS

var migrationFilenamePattern = regexp.MustCompile(`^(\d{3})_([a-z0-9_]+)\.(up|down)\.sql$`)

type (
	// Migration is one parsed migration file.
	Migration struct {
		Sequence  int
		Name      string
		Direction string
		Filename  string
	}

	// Source lists and validates the ledger schema migrations.
	Source struct {
		fs fs.FS
	}
)

// NewSource wraps filesystem, or the migrations compiled into the binary when nil.
func NewSource(filesystem fs.FS) *Source {
	if filesystem == nil {
		filesystem = embeddedMigrations
	}

	return &Source{fs: filesystem}
}

// FS returns the underlying file system.
func (s *Source) FS() fs.FS {
	return s.fs
}

// ParseMigrationFilename parses a name of the form 001_initial_schema.up.sql.
func ParseMigrationFilename(filename string) (Migration, error) {
	m := migrationFilenamePattern.FindStringSubmatch(filename)
	if m == nil {
		return Migration{}, fmt.Errorf("%w: %s (expected 001_name.up.sql or 001_name.down.sql)",
			ErrInvalidFilename, filename)
	}

	sequence, err := strconv.Atoi(m[1])
	if err != nil {
		return Migration{}, fmt.Errorf("%w: %s: %w", ErrInvalidFilename, filename, err)
	}

	return Migration{Sequence: sequence, Name: m[2], Direction: m[3], Filename: filename}, nil
}

// Migrations returns every migration file, ordered by sequence with the up
// file before the down file. Any other .sql file is an error.
func (s *Source) Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(s.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var migrations []Migration

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if path.Ext(entry.Name()) != ".sql" {
			continue
		}

		m, err := ParseMigrationFilename(entry.Name())
		if err != nil {
			return nil, err
		}

		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		if migrations[i].Sequence != migrations[j].Sequence {
			return migrations[i].Sequence < migrations[j].Sequence
		}

		return migrations[i].Direction == directionUp
	})

	return migrations, nil
}

// Validate checks that the migrations pair up and run from 001 without gaps.
func (s *Source) Validate() error {
	migrations, err := s.Migrations()
	if err != nil {
		return err
	}

	if len(migrations) == 0 {
		return ErrNoMigrations
	}

	directions := make(map[int]map[string]string)

	for _, m := range migrations {
		if directions[m.Sequence] == nil {
			directions[m.Sequence] = make(map[string]string)
		}

		if name, ok := directions[m.Sequence][m.Direction]; ok {
			return fmt.Errorf("%w: %03d is used by %s and %s", ErrDuplicateSequence, m.Sequence, name, m.Name)
		}

		directions[m.Sequence][m.Direction] = m.Name
	}

	for seq := 1; seq <= len(directions); seq++ {
		d, ok := directions[seq]
		if !ok {
			return fmt.Errorf("%w: expected %03d", ErrSequenceGap, seq)
		}

		up, hasUp := d[directionUp]
		down, hasDown := d[directionDown]

		switch {
		case !hasUp:
			return fmt.Errorf("%w: %03d_%s has no up file", ErrUnpairedMigration, seq, down)
		case !hasDown:
			return fmt.Errorf("%w: %03d_%s has no down file", ErrUnpairedMigration, seq, up)
		case up != down:
			return fmt.Errorf("%w: %03d_%s.up.sql and %03d_%s.down.sql differ in name",
				ErrUnpairedMigration, seq, up, seq, down)
		}
	}

	return nil
}

// LatestVersion returns the highest sequence number, or 0 when there are none.
func (s *Source) LatestVersion() (int, error) {
	migrations, err := s.Migrations()
	if err != nil {
		return 0, err
	}

	if len(migrations) == 0 {
		return 0, nil
	}

	return migrations[len(migrations)-1].Sequence, nil
}
