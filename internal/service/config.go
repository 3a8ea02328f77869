package service

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/queryhist/queryhist/internal/export"
	"github.com/queryhist/queryhist/internal/histogram"
)

// Config is the top-level configuration for the queryhist service.
type Config struct {
	// LogLevel sets the logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// Histogram configures the shared histogram segment.
	Histogram histogram.Config `yaml:"histogram"`

	// SnapshotPath is the file histograms are persisted to on
	// shutdown and restored from on startup. Empty disables
	// persistence.
	SnapshotPath string `yaml:"snapshot_path"`

	// SnapshotInterval is how often to persist histograms while
	// running. Zero saves only on shutdown.
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`

	// StatsInterval is how often segment gauges are refreshed on
	// the health server. Defaults to 15s.
	StatsInterval time.Duration `yaml:"stats_interval"`

	// Health configures the Prometheus health metrics server.
	Health export.HealthConfig `yaml:"health"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:      "info",
		Histogram:     histogram.DefaultConfig(),
		StatsInterval: 15 * time.Second,
		Health: export.HealthConfig{
			Addr: ":9090",
		},
	}
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for required fields and consistency.
func (c *Config) Validate() error {
	if err := c.Histogram.Validate(); err != nil {
		return fmt.Errorf("histogram: %w", err)
	}

	if c.SnapshotInterval < 0 {
		return fmt.Errorf("snapshot_interval must not be negative")
	}

	if c.StatsInterval <= 0 {
		return fmt.Errorf("stats_interval must be positive")
	}

	return nil
}
