package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/bmatthiesen/efficient-global-opt/pkg/cmd/cmdutil"
	"github.com/bmatthiesen/efficient-global-opt/pkg/collect"
	"github.com/bmatthiesen/efficient-global-opt/pkg/container"
)

const argsUsage = "wpfile outfile dsetname respath glob_pattern"

func main() {
	cmdutil.Main(&cli.App{
		Name:      "collect",
		Usage:     "gather per work package result files into one results dataset",
		ArgsUsage: argsUsage,
		Flags:     cmdutil.Flags(),
		Action:    run,
	})
}

func run(c *cli.Context) error {
	if err := cmdutil.NArgs(c, 5, argsUsage); err != nil {
		return err
	}
	opts := collect.Options{
		WPFile:      c.Args().Get(0),
		OutFile:     c.Args().Get(1),
		DatasetName: c.Args().Get(2),
		ResultsPath: c.Args().Get(3),
		Pattern:     c.Args().Get(4),
	}
	if err := validate(opts); err != nil {
		return err
	}

	_, logger, err := cmdutil.Setup(c, nil)
	if err != nil {
		return err
	}
	ctx, cancel := cmdutil.Context(c)
	defer cancel()

	report, err := collect.Run(ctx, opts, logger)
	if err != nil {
		return err
	}
	return cmdutil.WriteReport(c, report)
}

func validate(opts collect.Options) error {
	if !container.IsContainer(opts.WPFile) {
		return fmt.Errorf("wpfile %s is not a container file", opts.WPFile)
	}
	if _, err := os.Stat(opts.OutFile); err == nil {
		if !container.IsContainer(opts.OutFile) {
			return fmt.Errorf("outfile %s exists and is not a container file", opts.OutFile)
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	info, err := os.Stat(opts.ResultsPath)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("respath %s is not a directory", opts.ResultsPath)
	}
	if opts.Pattern == "" {
		return fmt.Errorf("glob_pattern must not be empty")
	}
	return nil
}
