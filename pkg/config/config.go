// Package config loads gitgraft settings from a YAML file and GITGRAFT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sentinel validation errors.
var (
	ErrInvalidWorkers     = errors.New("import workers must be positive")
	ErrInvalidAttempts    = errors.New("max attempts must be positive")
	ErrMissingStorePath   = errors.New("store path is required unless the store is in memory")
	ErrMissingBookmarks   = errors.New("bookmarks path is required")
	ErrNoDerivedKinds     = errors.New("at least one derived kind is required")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidMetricsAddr = errors.New("metrics address must be host:port")
)

// Config holds all gitgraft settings.
type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Bookmarks BookmarksConfig `mapstructure:"bookmarks"`
	Import    ImportConfig    `mapstructure:"import"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Derived   DerivedConfig   `mapstructure:"derived"`
	Land      LandConfig      `mapstructure:"land"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// StoreConfig selects the commit store.
type StoreConfig struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

// BookmarksConfig locates the bookmark database.
type BookmarksConfig struct {
	Path string `mapstructure:"path"`
}

// ImportConfig tunes GitImport.
type ImportConfig struct {
	Workers int `mapstructure:"workers"`
}

// RetryConfig bounds retries of transient batch failures.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

// DerivedConfig selects the derived data gating the merge.
type DerivedConfig struct {
	Kinds       []string `mapstructure:"kinds"`
	MaxAttempts int      `mapstructure:"max_attempts"`
}

// LandConfig bounds landing submissions.
type LandConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// TelemetryConfig holds OpenTelemetry exporter settings. Empty values disable export.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	MetricsAddr  string `mapstructure:"metrics_addr"`
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if !c.Store.InMemory && c.Store.Path == "" {
		return ErrMissingStorePath
	}

	if c.Bookmarks.Path == "" {
		return ErrMissingBookmarks
	}

	if c.Import.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Import.Workers)
	}

	for name, n := range map[string]int{
		"retry.max_attempts":   c.Retry.MaxAttempts,
		"derived.max_attempts": c.Derived.MaxAttempts,
		"land.max_attempts":    c.Land.MaxAttempts,
	} {
		if n <= 0 {
			return fmt.Errorf("%w: %s=%d", ErrInvalidAttempts, name, n)
		}
	}

	if len(c.Derived.Kinds) == 0 {
		return ErrNoDerivedKinds
	}

	_, err := c.Logging.SlogLevel()
	if err != nil {
		return err
	}

	if c.Telemetry.MetricsAddr != "" && !strings.Contains(c.Telemetry.MetricsAddr, ":") {
		return fmt.Errorf("%w: %q", ErrInvalidMetricsAddr, c.Telemetry.MetricsAddr)
	}

	return nil
}

// SlogLevel parses Level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(l.Level))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, l.Level)
	}

	return level, nil
}
