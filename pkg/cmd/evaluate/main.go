package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/bmatthiesen/efficient-global-opt/pkg/bench"
	"github.com/bmatthiesen/efficient-global-opt/pkg/cmd/cmdutil"
	"github.com/bmatthiesen/efficient-global-opt/pkg/container"
	"github.com/bmatthiesen/efficient-global-opt/pkg/summary"
)

var (
	eeCommand = &cli.Command{
		Name:  "ee",
		Usage: "energy efficiency, runtime and gain tables of a results file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "results container"},
			&cli.StringFlag{Name: "objective-csv", Usage: "energy efficiency table"},
			&cli.StringFlag{Name: "runtime-csv", Usage: "runtime table"},
			&cli.StringFlag{Name: "gain-csv", Usage: "gain table"},
		},
		Action: energyEfficiency,
	}
	benchmarkCommand = &cli.Command{
		Name:  "benchmark",
		Usage: "mean runtime tables of an aggregated benchmark file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "benchmark container"},
			&cli.StringFlag{Name: "ue-csv", Usage: "runtime over the number of users"},
			&cli.StringFlag{Name: "nc-csv", Usage: "runtime over the number of clusters"},
			&cli.Float64Flag{Name: "cutoff", Usage: "largest tolerated share of missing channels"},
		},
		Action: benchmark,
	}
)

func main() {
	cmdutil.Main(&cli.App{
		Name:     "evaluate",
		Usage:    "export the summary tables of the paper",
		Flags:    cmdutil.Flags(),
		Commands: []*cli.Command{eeCommand, benchmarkCommand},
	})
}

func energyEfficiency(c *cli.Context) error {
	cfg, logger, err := cmdutil.Setup(c, map[string]string{
		"input":         "summary.ee.input",
		"objective-csv": "summary.ee.objective_csv",
		"runtime-csv":   "summary.ee.runtime_csv",
		"gain-csv":      "summary.ee.gain_csv",
	})
	if err != nil {
		return err
	}
	eeCfg, err := cfg.EnergyEfficiency()
	if err != nil {
		return fmt.Errorf("invalid energy efficiency settings: %w", err)
	}

	f, err := container.OpenReadOnly(cfg.EEInput())
	if err != nil {
		return err
	}
	defer f.Close()

	tables, err := summary.EnergyEfficiency(f, eeCfg, logger)
	if err != nil {
		return err
	}
	return export(logger, map[string]*summary.Frame{
		cfg.EEObjectiveCSV(): tables.Objective,
		cfg.EERuntimeCSV():   tables.Runtime,
		cfg.EEGainCSV():      tables.Gain,
	})
}

func benchmark(c *cli.Context) error {
	cfg, logger, err := cmdutil.Setup(c, map[string]string{
		"input":  "summary.benchmark.input",
		"ue-csv": "summary.benchmark.ue_csv",
		"nc-csv": "summary.benchmark.nc_csv",
		"cutoff": "summary.data_cutoff",
	})
	if err != nil {
		return err
	}
	benchCfg, err := cfg.Benchmark()
	if err != nil {
		return fmt.Errorf("invalid benchmark settings: %w", err)
	}

	tables, err := bench.LoadTables(cfg.BenchmarkInput())
	if err != nil {
		return err
	}
	byUE, byNC, err := summary.Benchmark(tables, benchCfg)
	if err != nil {
		return err
	}
	return export(logger, map[string]*summary.Frame{
		cfg.BenchmarkUECSV(): byUE,
		cfg.BenchmarkNCCSV(): byNC,
	})
}

func export(logger zerolog.Logger, frames map[string]*summary.Frame) error {
	for path, fr := range frames {
		if err := fr.WriteFile(path); err != nil {
			return err
		}
		logger.Info().Str("file", path).Int("rows", len(fr.Index)).Strs("columns", fr.Columns()).Msg("Table written")
	}
	return nil
}
