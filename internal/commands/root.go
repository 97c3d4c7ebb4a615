package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/colonyops/lxfeed/internal/core/config"
	"github.com/colonyops/lxfeed/internal/core/styles"
	"github.com/colonyops/lxfeed/pkg/logutils"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

// NewRoot builds the lxfeed command tree. The Before hook configures logging,
// loads the config and opens the store; After releases them.
func NewRoot(version string, flags *Flags) *cli.Command {
	var logCloser func()

	app := &cli.Command{
		Name:      "lxfeed",
		Usage:     "Watch package data and reconcile item feeds",
		UsageText: "lxfeed [global options] command [command options]",
		Description: `lxfeed keeps a live feed of the items inside watched package versions.

Packages are stored as graph nodes (pkg/<name>/data/<version>) whose children
are items. 'lxfeed watch' prints item-watch, change and item-unwatch events as
items appear, mutate and disappear; 'lxfeed put' and 'lxfeed seed' write data,
from this or any other process sharing the data directory.`,
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("LXFEED_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to <data-dir>/lxfeed.log)",
				Sources:     cli.EnvVars("LXFEED_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("LXFEED_CONFIG"),
				Value:       DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("LXFEED_DATA_DIR"),
				Value:       DefaultDataDir(),
				Destination: &flags.DataDir,
			},
			&cli.StringFlag{
				Name:        "theme",
				Usage:       "output color theme",
				Sources:     cli.EnvVars("LXFEED_THEME"),
				Value:       styles.DefaultTheme,
				Destination: &flags.Theme,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			// Always log to a file; use explicit path or default to <datadir>/lxfeed.log
			logFile := flags.LogFile
			if logFile == "" {
				logFile = filepath.Join(flags.DataDir, "lxfeed.log")
			}

			logger, closer, err := logutils.New(logutils.Options{
				Level:  flags.LogLevel,
				File:   logFile,
				Append: true,
			})
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			logCloser = closer

			palette, ok := styles.GetPalette(flags.Theme)
			if !ok {
				return ctx, fmt.Errorf("unknown theme %q, expected one of %v", flags.Theme, styles.ThemeNames())
			}
			styles.SetTheme(palette)

			cfg, err := config.Load(flags.ConfigPath, flags.DataDir)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.Config = cfg

			flags.App, err = OpenApp(ctx, cfg)
			if err != nil {
				return ctx, fmt.Errorf("open store: %w", err)
			}

			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if flags.App != nil {
				if err := flags.App.Close(); err != nil {
					log.Error().Err(err).Msg("failed to close store")
					return err
				}
			}

			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	app = NewWatchCmd(flags).Register(app)
	app = NewNodeCmd(flags).Register(app)
	app = NewSeedCmd(flags).Register(app)
	app = NewProfileCmd(flags).Register(app)
	app = NewConfigValidateCmd(flags).Register(app)

	return app
}
