package histogram

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config holds the histogram parameters a segment is created with. For
// a dynamic segment everything except MaxDatabases and Dynamic itself
// may be changed later through the setters; a static segment is fixed
// for its whole life.
type Config struct {
	// Kind selects linear or logarithmic bin scaling.
	Kind Kind `yaml:"kind"`

	// BinCount is the number of finite bins (0..BinLimit).
	// Zero disables recording on a static segment.
	BinCount int `yaml:"bin_count"`

	// BinWidthMs is the width of the first bin in milliseconds.
	BinWidthMs int `yaml:"bin_width_ms"`

	// SamplePct is the percentage of queries admitted (1..100).
	SamplePct int `yaml:"sample_pct"`

	// TrackUtility selects whether utility/administrative commands
	// are recorded alongside regular queries.
	TrackUtility bool `yaml:"track_utility"`

	// Dynamic allows reconfiguration after creation.
	Dynamic bool `yaml:"dynamic"`

	// MaxDatabases bounds the per-database breakdown. Zero tracks
	// only the global histogram. Fixed at creation.
	MaxDatabases int `yaml:"max_databases"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Kind:         KindLinear,
		BinCount:     100,
		BinWidthMs:   100,
		SamplePct:    100,
		TrackUtility: true,
		Dynamic:      false,
		MaxDatabases: 100,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.BinCount < 0 || c.BinCount > BinLimit {
		return fmt.Errorf("bin_count must be between 0 and %d, got %d", BinLimit, c.BinCount)
	}

	if c.BinWidthMs < 1 || c.BinWidthMs > MaxBinWidthMs {
		return fmt.Errorf("bin_width_ms must be between 1 and %d, got %d", MaxBinWidthMs, c.BinWidthMs)
	}

	if c.SamplePct < 1 || c.SamplePct > 100 {
		return fmt.Errorf("sample_pct must be between 1 and 100, got %d", c.SamplePct)
	}

	if c.MaxDatabases < 0 {
		return fmt.Errorf("max_databases must not be negative, got %d", c.MaxDatabases)
	}

	return nil
}

// MarshalYAML renders the kind as "linear" or "log".
func (k Kind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// UnmarshalYAML parses "linear" or "log".
func (k *Kind) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	switch s {
	case "", "linear":
		*k = KindLinear
	case "log", "logarithmic":
		*k = KindLog
	default:
		return fmt.Errorf("unknown histogram kind %q", s)
	}

	return nil
}
