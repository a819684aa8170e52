// Package cmdutil holds the flags and setup shared by the pipeline tools.
package cmdutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/bmatthiesen/efficient-global-opt/pkg/config"
)

var (
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "load pipeline settings from `FILE`",
	}
	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "log level (debug, info, warn, error)",
	}
	ReportFlag = &cli.StringFlag{
		Name:  "report",
		Usage: "write the run report as JSON to `FILE`",
	}
)

// Flags returns the shared flags followed by extra
func Flags(extra ...cli.Flag) []cli.Flag {
	return append([]cli.Flag{ConfigFlag, LogLevelFlag, ReportFlag}, extra...)
}

// Setup loads the configuration, applies the flags named in bind (flag
// name to configuration key) that were set on the command line and
// builds the logger.
func Setup(c *cli.Context, bind map[string]string) (*config.Config, zerolog.Logger, error) {
	cfg := config.NewConfig()
	if path := c.String(ConfigFlag.Name); path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, zerolog.Nop(), fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}
	if c.IsSet(LogLevelFlag.Name) {
		cfg.Set("logging.level", c.String(LogLevelFlag.Name))
	}
	for flag, key := range bind {
		if c.IsSet(flag) {
			cfg.Set(key, c.Value(flag))
		}
	}
	return cfg, cfg.CreateLogger(), nil
}

// Context returns the command context, cancelled on interrupt
func Context(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt)
}

// WriteReport writes report to the file named by the report flag, if any
func WriteReport(c *cli.Context, report any) error {
	path := c.String(ReportFlag.Name)
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// NArgs fails unless exactly n positional arguments were given
func NArgs(c *cli.Context, n int, usage string) error {
	if c.NArg() != n {
		return fmt.Errorf("expected %d arguments (%s), got %d", n, usage, c.NArg())
	}
	return nil
}

// Main runs app and exits with status 1 on error
func Main(app *cli.App) {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}).With().Timestamp().Str("service", app.Name).Logger()

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg(app.Name + " failed")
	}
}
