package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/bmatthiesen/efficient-global-opt/pkg/cmd/cmdutil"
	"github.com/bmatthiesen/efficient-global-opt/pkg/join"
)

const argsUsage = "file joined_name dataset..."

func main() {
	cmdutil.Main(&cli.App{
		Name:      "join",
		Usage:     "concatenate results datasets along the power axis",
		ArgsUsage: argsUsage,
		Flags: cmdutil.Flags(
			&cli.StringFlag{Name: "archive", Usage: "group that receives the joined datasets"},
		),
		Action: run,
	})
}

func run(c *cli.Context) error {
	if c.NArg() < 3 {
		return fmt.Errorf("expected at least 3 arguments (%s), got %d", argsUsage, c.NArg())
	}
	cfg, logger, err := cmdutil.Setup(c, map[string]string{"archive": "join.archive"})
	if err != nil {
		return err
	}
	ctx, cancel := cmdutil.Context(c)
	defer cancel()

	args := c.Args().Slice()
	report, err := join.Run(ctx, join.Options{
		File:       args[0],
		JoinedName: args[1],
		Names:      args[2:],
		Archive:    cfg.JoinArchive(),
	}, logger)
	if err != nil {
		return err
	}
	return cmdutil.WriteReport(c, report)
}
