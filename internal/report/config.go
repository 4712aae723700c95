package report

import (
	"errors"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/nasa-impact/hls-lpdaac-reconciliation/internal/config"
)

const (
	// DefaultConfigPath is the default location of the reconciliation config file.
	DefaultConfigPath = ".reconciliation.yaml"
	// ConfigPathEnvVar overrides DefaultConfigPath.
	ConfigPathEnvVar = "RECONCILIATION_CONFIG_PATH"
)

// FileConfig holds report overrides loaded from .reconciliation.yaml.
//
//	product_prefixes: [S30_VI, L30_VI]
//	file_extensions: [tif, jpg, xml, stac.json]
type FileConfig struct {
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	ProductPrefixes []string `yaml:"product_prefixes"`
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	FileExtensions []string `yaml:"file_extensions"`
}

// LoadFileConfig loads report overrides from the YAML file at path.
//
// The file is optional: a missing, unreadable or invalid file logs and yields
// an empty config, so the generator falls back to its defaults.
func LoadFileConfig(path string) (*FileConfig, error) {
	cfg := &FileConfig{}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Config file not found, using report defaults",
				slog.String("path", path))

			return cfg, nil
		}

		slog.Warn("Failed to read config file, using report defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return cfg, nil
	}

	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("Failed to parse config file, using report defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return &FileConfig{}, nil
	}

	return cfg, nil
}

// LoadFileConfigFromEnv loads the file named by RECONCILIATION_CONFIG_PATH,
// falling back to DefaultConfigPath.
func LoadFileConfigFromEnv() (*FileConfig, error) {
	return LoadFileConfig(config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath))
}

// ResolveProductPrefixes picks the product prefixes for a run: the explicit
// override, else the config file, else DefaultProductPrefixes.
func (c *FileConfig) ResolveProductPrefixes(override []string) []string {
	switch {
	case len(override) > 0:
		return slices.Clone(override)
	case c != nil && len(c.ProductPrefixes) > 0:
		return slices.Clone(c.ProductPrefixes)
	default:
		return slices.Clone(DefaultProductPrefixes)
	}
}

// ResolveFileExtensions returns the configured file extensions or DefaultFileExtensions.
func (c *FileConfig) ResolveFileExtensions() []string {
	if c != nil && len(c.FileExtensions) > 0 {
		return slices.Clone(c.FileExtensions)
	}

	return slices.Clone(DefaultFileExtensions)
}
