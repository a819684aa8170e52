package main

import (
	"github.com/urfave/cli/v2"

	"github.com/bmatthiesen/efficient-global-opt/pkg/bench"
	"github.com/bmatthiesen/efficient-global-opt/pkg/cmd/cmdutil"
)

func main() {
	cmdutil.Main(&cli.App{
		Name:  "collect_bench",
		Usage: "aggregate the solver runtime benchmarks into runtime tables",
		Flags: cmdutil.Flags(
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "benchmark container to create"},
			&cli.IntFlag{Name: "channels", Usage: "number of channel realisations per sweep point"},
			&cli.StringFlag{Name: "cluster2-dir", Usage: "result directory of the 2 cluster user sweep"},
			&cli.StringFlag{Name: "cluster3-dir", Usage: "result directory of the 3 cluster user sweep"},
			&cli.StringFlag{Name: "users7-dir", Usage: "result directory of the 7 user cluster sweep"},
		),
		Action: run,
	})
}

func run(c *cli.Context) error {
	cfg, logger, err := cmdutil.Setup(c, map[string]string{
		"out":          "bench.output",
		"channels":     "bench.num_channels",
		"cluster2-dir": "bench.cluster2.dir",
		"cluster3-dir": "bench.cluster3.dir",
		"users7-dir":   "bench.users7.dir",
	})
	if err != nil {
		return err
	}
	ctx, cancel := cmdutil.Context(c)
	defer cancel()

	report, err := bench.Run(ctx, bench.Options{
		OutFile:     cfg.BenchOutput(),
		Cluster2:    cfg.BenchSource("cluster2"),
		Cluster3:    cfg.BenchSource("cluster3"),
		Users7:      cfg.BenchSource("users7"),
		NumChannels: cfg.BenchNumChannels(),
	}, logger)
	if err != nil {
		return err
	}
	return cmdutil.WriteReport(c, report)
}
