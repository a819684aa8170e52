package main

import (
	"github.com/urfave/cli/v2"

	"github.com/bmatthiesen/efficient-global-opt/pkg/channel"
	"github.com/bmatthiesen/efficient-global-opt/pkg/cmd/cmdutil"
)

func main() {
	cmdutil.Main(&cli.App{
		Name:  "gen_channel",
		Usage: "draw the benchmark channel realisations",
		Flags: cmdutil.Flags(
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "channel container to create"},
			&cli.IntFlag{Name: "channels", Usage: "number of channel realisations"},
			&cli.IntFlag{Name: "max-ue", Usage: "largest number of users"},
			&cli.IntFlag{Name: "first-batch", Usage: "channels drawn before the second state snapshot"},
			&cli.Uint64Flag{Name: "seed1", Usage: "first PCG seed word"},
			&cli.Uint64Flag{Name: "seed2", Usage: "second PCG seed word"},
		),
		Action: run,
	})
}

func run(c *cli.Context) error {
	cfg, logger, err := cmdutil.Setup(c, map[string]string{
		"out":         "channel.output",
		"channels":    "channel.num_channels",
		"max-ue":      "channel.max_ue",
		"first-batch": "channel.first_batch",
		"seed1":       "channel.seed1",
		"seed2":       "channel.seed2",
	})
	if err != nil {
		return err
	}
	ctx, cancel := cmdutil.Context(c)
	defer cancel()

	report, err := channel.Generate(ctx, channel.Options{
		OutFile:     cfg.ChannelOutput(),
		NumChannels: cfg.ChannelNumChannels(),
		MaxUE:       cfg.ChannelMaxUE(),
		FirstBatch:  cfg.ChannelFirstBatch(),
		Seed1:       cfg.ChannelSeed1(),
		Seed2:       cfg.ChannelSeed2(),
	}, logger)
	if err != nil {
		return err
	}
	return cmdutil.WriteReport(c, report)
}
