package main

import (
	"fmt"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/config"
	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/storage"
)

const defaultMigrationTable = "schema_migrations"

// Config holds the migrator settings.
type Config struct {
	DatabaseURL    string
	MigrationTable string
}

// LoadConfig reads DATABASE_URL (required) and MIGRATION_TABLE.
func LoadConfig() (*Config, error) {
	databaseURL, err := config.RequireEnvStr("DATABASE_URL")
	if err != nil {
		return nil, err
	}

	return &Config{
		DatabaseURL:    databaseURL,
		MigrationTable: config.GetEnvStr("MIGRATION_TABLE", defaultMigrationTable),
	}, nil
}

// String renders the configuration with the database password masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationTable: %s}",
		storage.NewConfig(c.DatabaseURL).MaskDatabaseURL(), c.MigrationTable)
}
