package histogram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.BinCount = BinLimit + 1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.BinWidthMs = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.BinWidthMs = MaxBinWidthMs + 1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SamplePct = 101
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxDatabases = -1
	assert.Error(t, cfg.Validate())

	// Zero bins is allowed: it disables recording.
	cfg = DefaultConfig()
	cfg.BinCount = 0
	assert.NoError(t, cfg.Validate())
}

func TestConfig_YAML(t *testing.T) {
	var cfg Config

	data := `
kind: log
bin_count: 20
bin_width_ms: 10
sample_pct: 50
track_utility: false
dynamic: true
max_databases: 16
`
	require.NoError(t, yaml.Unmarshal([]byte(data), &cfg))

	assert.Equal(t, KindLog, cfg.Kind)
	assert.Equal(t, 20, cfg.BinCount)
	assert.Equal(t, 10, cfg.BinWidthMs)
	assert.Equal(t, 50, cfg.SamplePct)
	assert.False(t, cfg.TrackUtility)
	assert.True(t, cfg.Dynamic)
	assert.Equal(t, 16, cfg.MaxDatabases)

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "kind: log")

	var back Config
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, cfg, back)
}

func TestConfig_YAMLKindVariants(t *testing.T) {
	var k Kind

	require.NoError(t, yaml.Unmarshal([]byte(`"linear"`), &k))
	assert.Equal(t, KindLinear, k)

	require.NoError(t, yaml.Unmarshal([]byte(`"logarithmic"`), &k))
	assert.Equal(t, KindLog, k)

	assert.Error(t, yaml.Unmarshal([]byte(`"exponential"`), &k))
}
