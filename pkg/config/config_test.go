package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmatthiesen/efficient-global-opt/pkg/summary"
)

func TestDefaults(t *testing.T) {
	c := NewConfig()

	assert.Equal(t, "info", c.LogLevel())
	assert.Equal(t, 1000, c.BenchNumChannels())
	assert.Equal(t, 50, c.ChannelMaxUE())
	assert.Equal(t, 100, c.ChannelFirstBatch())
	assert.Equal(t, "individual_wp_results", c.JoinArchive())
	assert.Equal(t, "res_sndBench*_3_*.db", c.BenchSource("cluster3").Pattern)

	b, err := c.Benchmark()
	require.NoError(t, err)
	assert.Equal(t, 0.028, b.Cutoff)
	assert.Equal(t, summary.DefaultFits, b.Fits)

	ee, err := c.EnergyEfficiency()
	require.NoError(t, err)
	assert.Equal(t, summary.DefaultEE, ee)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	yaml := `
logging:
  level: debug
bench:
  num_channels: 20
  users7:
    dir: /data/ue7
summary:
  data_cutoff: 0.1
  benchmark:
    fits:
      - column: NC2
        start: 1
        end: 3
  ee:
    index_dataset: sweep
    series:
      - name: SND
        dataset: sweep
        source: joint
      - name: TIN
        dataset: sweep
        source: raw
        slot: 0
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	c := NewConfig()
	require.NoError(t, c.LoadFromFile(path))

	assert.Equal(t, "debug", c.LogLevel())
	assert.Equal(t, 20, c.BenchNumChannels())
	assert.Equal(t, "/data/ue7", c.BenchSource("users7").Dir)
	assert.Equal(t, "res_sndBench*.db", c.BenchSource("users7").Pattern, "unset keys keep their default")

	b, err := c.Benchmark()
	require.NoError(t, err)
	assert.Equal(t, 0.1, b.Cutoff)
	assert.Equal(t, []summary.FitSpec{{Column: "NC2", Start: 1, End: 3}}, b.Fits)

	ee, err := c.EnergyEfficiency()
	require.NoError(t, err)
	assert.Equal(t, "sweep", ee.IndexDataset)
	assert.Equal(t, []summary.Series{
		{Name: "SND", Dataset: "sweep", Source: summary.SourceJoint},
		{Name: "TIN", Dataset: "sweep", Source: summary.SourceRaw},
	}, ee.Series)
	assert.Equal(t, summary.DefaultEE.Gains, ee.Gains)

	assert.Error(t, NewConfig().LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestSetAndLogger(t *testing.T) {
	c := NewConfig()
	c.Set("logging.level", "warn")
	assert.Equal(t, zerolog.WarnLevel, c.CreateLogger().GetLevel())

	c.Set("logging.level", "nonsense")
	assert.Equal(t, zerolog.InfoLevel, c.CreateLogger().GetLevel())
}
