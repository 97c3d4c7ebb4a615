package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/colonyops/lxfeed/internal/core/eventbus"
	"github.com/colonyops/lxfeed/internal/core/logging"
	"github.com/urfave/cli/v3"
)

type WatchCmd struct {
	flags *Flags

	// flags
	packages   []string
	topics     []string
	user       string
	jsonOutput bool
	once       bool
	timeout    time.Duration
}

// NewWatchCmd creates a new watch command
func NewWatchCmd(flags *Flags) *WatchCmd {
	return &WatchCmd{flags: flags}
}

// Register adds the watch command to the application
func (cmd *WatchCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "watch",
		Usage:     "Watch packages and print the item event stream",
		UsageText: "lxfeed watch [--package id]... [--topic name]... [--user name] [--json] [--once]",
		Description: `Starts a feed, adds the configured packages, the packages given with
--package and, with --user, the packages installed in that profile, then prints
every feed event until interrupted.

--once waits until the initial state has been reconciled, prints it and exits.`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:        "package",
				Aliases:     []string{"p"},
				Usage:       "package id (name@version) to watch",
				Destination: &cmd.packages,
			},
			&cli.StringSliceFlag{
				Name:        "topic",
				Aliases:     []string{"t"},
				Usage:       "topic to raise",
				Destination: &cmd.topics,
			},
			&cli.StringFlag{
				Name:        "user",
				Aliases:     []string{"u"},
				Usage:       "restore installed packages and topics of this profile",
				Sources:     cli.EnvVars("LXFEED_USER"),
				Destination: &cmd.user,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output events as JSON lines",
				Destination: &cmd.jsonOutput,
			},
			&cli.BoolFlag{
				Name:        "once",
				Usage:       "exit once the initial state is reconciled",
				Destination: &cmd.once,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Usage:       "maximum time --once waits for reconciliation",
				Value:       10 * time.Second,
				Destination: &cmd.timeout,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *WatchCmd) run(ctx context.Context, c *cli.Command) error {
	app := cmd.flags.App
	cfg := cmd.flags.Config
	out := c.Root().Writer
	p := newPrinter(out)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := eventbus.New(cfg.Feed.EventBuffer)
	var writeMu sync.Mutex
	bus.SubscribeAll(func(event eventbus.Event, payload any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if cmd.jsonOutput {
			if err := writeEventJSON(out, event, payload); err != nil {
				wlog := logging.Component("watch")
				wlog.Error().Err(err).Msg("write event")
			}
			return
		}
		p.Event(event, payload)
	})

	user := app.User(cmd.user)
	f := app.NewFeed(bus, app.ContextID(user))
	log := logging.Component("watch").With().Str("prefix", f.LogPrefix()).Logger()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); bus.Start(ctx) }()
	go func() { defer wg.Done(); f.Start(ctx) }()
	go func() {
		defer wg.Done()
		if err := app.Stream(ctx); err != nil {
			log.Error().Err(err).Msg("store stream stopped")
		}
	}()
	defer wg.Wait()
	defer cancel()

	var errs []error
	if user != "" {
		prof, err := app.Profile(user, f)
		if err != nil {
			return err
		}
		if _, err := prof.Restore(ctx); err != nil {
			errs = append(errs, err)
		}
		topics, err := prof.ListTopics(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		cmd.topics = append(cmd.topics, topics...)
	}

	ids := append(append([]string{}, cfg.Feed.Packages...), cmd.packages...)
	if len(ids) > 0 {
		if err := f.AddManyPackages(ids); err != nil {
			errs = append(errs, err)
		}
	}

	topics := append(append([]string{}, cfg.Feed.Topics...), cmd.topics...)
	if len(topics) > 0 {
		if err := f.AddManyTopics(topics); err != nil {
			errs = append(errs, err)
		}
	}

	if !cmd.once {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		<-ctx.Done()
		return nil
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, cmd.timeout)
	defer waitCancel()
	if err := f.Wait(waitCtx); err != nil {
		return fmt.Errorf("wait for feed: %w", err)
	}
	if err := bus.Flush(waitCtx); err != nil {
		return fmt.Errorf("flush events: %w", err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
