// Package config holds the pipeline configuration shared by the command
// line tools.
package config

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/bmatthiesen/efficient-global-opt/pkg/bench"
	"github.com/bmatthiesen/efficient-global-opt/pkg/join"
	"github.com/bmatthiesen/efficient-global-opt/pkg/summary"
)

// Config manages pipeline configuration using Viper
type Config struct {
	v *viper.Viper
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	v := viper.New()

	// Logging parameters
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.service", "egopt")

	// Benchmark aggregation
	v.SetDefault("bench.num_channels", 1000)
	v.SetDefault("bench.output", "benchmark.db")
	v.SetDefault("bench.cluster2.dir", "2_benchmark/results")
	v.SetDefault("bench.cluster2.pattern", "res_sndBench*_2_*.db")
	v.SetDefault("bench.cluster3.dir", "3_benchmark/results")
	v.SetDefault("bench.cluster3.pattern", "res_sndBench*_3_*.db")
	v.SetDefault("bench.users7.dir", "7_benchmark/results")
	v.SetDefault("bench.users7.pattern", "res_sndBench*.db")

	// Channel generation
	v.SetDefault("channel.output", "wp-bench.db")
	v.SetDefault("channel.num_channels", 1000)
	v.SetDefault("channel.max_ue", 50)
	v.SetDefault("channel.first_batch", 100)
	v.SetDefault("channel.seed1", uint64(0))
	v.SetDefault("channel.seed2", uint64(0))

	// Joining
	v.SetDefault("join.archive", join.DefaultArchive)

	// Summary tables
	v.SetDefault("summary.data_cutoff", summary.DefaultCutoff)
	v.SetDefault("summary.benchmark.input", "benchmark.db")
	v.SetDefault("summary.benchmark.ue_csv", "benchUE.dat")
	v.SetDefault("summary.benchmark.nc_csv", "benchNC.dat")
	v.SetDefault("summary.ee.input", "results.db")
	v.SetDefault("summary.ee.objective_csv", "ee.dat")
	v.SetDefault("summary.ee.runtime_csv", "ee_runtime.dat")
	v.SetDefault("summary.ee.gain_csv", "ee_gain.dat")

	return &Config{v: v}
}

// LoadFromFile loads configuration from file
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	return c.v.ReadInConfig()
}

func (c *Config) LogLevel() string { return c.v.GetString("logging.level") }
func (c *Config) Service() string { return c.v.GetString("logging.service") }

func (c *Config) BenchNumChannels() int { return c.v.GetInt("bench.num_channels") }
func (c *Config) BenchOutput() string { return c.v.GetString("bench.output") }

// BenchSource returns the directory and glob of a benchmark sweep
// ("cluster2", "cluster3" or "users7")
func (c *Config) BenchSource(name string) bench.Source {
	return bench.Source{
		Dir:     c.v.GetString("bench." + name + ".dir"),
		Pattern: c.v.GetString("bench." + name + ".pattern"),
	}
}

func (c *Config) ChannelOutput() string { return c.v.GetString("channel.output") }
func (c *Config) ChannelNumChannels() int { return c.v.GetInt("channel.num_channels") }
func (c *Config) ChannelMaxUE() int { return c.v.GetInt("channel.max_ue") }
func (c *Config) ChannelFirstBatch() int { return c.v.GetInt("channel.first_batch") }
func (c *Config) ChannelSeed1() uint64 { return c.v.GetUint64("channel.seed1") }
func (c *Config) ChannelSeed2() uint64 { return c.v.GetUint64("channel.seed2") }

func (c *Config) JoinArchive() string { return c.v.GetString("join.archive") }

func (c *Config) DataCutoff() float64 { return c.v.GetFloat64("summary.data_cutoff") }
func (c *Config) BenchmarkInput() string { return c.v.GetString("summary.benchmark.input") }
func (c *Config) BenchmarkUECSV() string { return c.v.GetString("summary.benchmark.ue_csv") }
func (c *Config) BenchmarkNCCSV() string { return c.v.GetString("summary.benchmark.nc_csv") }
func (c *Config) EEInput() string { return c.v.GetString("summary.ee.input") }
func (c *Config) EEObjectiveCSV() string { return c.v.GetString("summary.ee.objective_csv") }
func (c *Config) EERuntimeCSV() string { return c.v.GetString("summary.ee.runtime_csv") }
func (c *Config) EEGainCSV() string { return c.v.GetString("summary.ee.gain_csv") }

// Benchmark returns the benchmark table settings. Fit windows default to
// the published ones when the file names none.
func (c *Config) Benchmark() (summary.BenchmarkConfig, error) {
	cfg := summary.BenchmarkConfig{Cutoff: c.DataCutoff(), Fits: summary.DefaultFits}
	if c.v.IsSet("summary.benchmark.fits") {
		cfg.Fits = nil
		if err := c.v.UnmarshalKey("summary.benchmark.fits", &cfg.Fits); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// EnergyEfficiency returns the energy efficiency table settings, falling
// back to the published series and gains for keys the file leaves out
func (c *Config) EnergyEfficiency() (summary.EEConfig, error) {
	cfg := summary.DefaultEE
	if c.v.IsSet("summary.ee.index_dataset") {
		cfg.IndexDataset = c.v.GetString("summary.ee.index_dataset")
	}
	if c.v.IsSet("summary.ee.series") {
		cfg.Series = nil
		if err := c.v.UnmarshalKey("summary.ee.series", &cfg.Series); err != nil {
			return cfg, err
		}
	}
	if c.v.IsSet("summary.ee.gains") {
		cfg.Gains = nil
		if err := c.v.UnmarshalKey("summary.ee.gains", &cfg.Gains); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Set allows dynamic configuration changes
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// CreateLogger creates a zerolog logger based on config
func (c *Config) CreateLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Str("service", c.Service()).Logger()
}
