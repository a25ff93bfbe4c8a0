// Package config provides configuration types, defaults, and persistence for
// provender.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/provender-dev/provender/internal/log"
	"github.com/provender-dev/provender/internal/registry"
	"github.com/provender-dev/provender/internal/tracing"
)

// Config holds all configuration options for provender.
type Config struct {
	// Offline skips the background registry refresh entirely.
	Offline bool `mapstructure:"offline"`

	// RegistryURL overrides the endpoint the refresher fetches from.
	RegistryURL string `mapstructure:"registry_url"`

	// DisableTelemetry drops the telemetry header from refresh requests.
	DisableTelemetry bool `mapstructure:"disable_telemetry"`

	// ResolveCacheTTL controls how long resolved recipes are memoized.
	// Zero disables memoization.
	ResolveCacheTTL time.Duration `mapstructure:"resolve_cache_ttl"`

	Log     LogConfig      `mapstructure:"log"`
	Tracing tracing.Config `mapstructure:"tracing"`
}

// LogConfig holds file logging configuration.
type LogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"` // "debug", "info", "warn", "error"
	Path    string `mapstructure:"path"`  // Default: ~/.provender/debug.log
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Offline:          false,
		RegistryURL:      registry.DefaultRemoteURL,
		DisableTelemetry: false,
		ResolveCacheTTL:  5 * time.Minute,
		Log: LogConfig{
			Enabled: false,
			Level:   "info",
			Path:    "",
		},
		Tracing: tracing.DefaultConfig(),
	}
}

// DefaultConfigTemplate returns the default config file content with
// explanatory comments.
func DefaultConfigTemplate() string {
	return `# provender configuration
#
# This file is looked up at .provender/config.yaml in the current directory,
# then at ~/.config/provender/config.yaml.

# Skip the background registry refresh and serve only cached data.
offline: false

# Endpoint the background refresher fetches registry data from.
registry_url: "` + registry.DefaultRemoteURL + `"

# Drop the telemetry header from refresh requests.
disable_telemetry: false

# How long resolved recipes are memoized. Zero disables memoization.
resolve_cache_ttl: 5m

# File logging for debugging.
# log:
#   enabled: true
#   level: debug          # debug, info, warn, error
#   path: ~/.provender/debug.log

# Distributed tracing configuration
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.provender/traces/traces.jsonl  # Output file for file exporter
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
`
}

// WriteDefaultConfig creates a config file at the given path with default
// settings and comments. Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
