package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/colonyops/lxfeed/internal/core/graph"
	"github.com/colonyops/lxfeed/internal/core/pkgref"
	"github.com/colonyops/lxfeed/internal/core/profile"
	"github.com/colonyops/lxfeed/pkg/iojson"
	"github.com/urfave/cli/v3"
)

type ProfileCmd struct {
	flags *Flags

	// flags
	user       string
	jsonOutput bool
	markerData string
}

// NewProfileCmd creates the profile commands: install, uninstall, ls, topics
// and marker
func NewProfileCmd(flags *Flags) *ProfileCmd {
	return &ProfileCmd{flags: flags}
}

func (cmd *ProfileCmd) userFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "user",
		Aliases:     []string{"u"},
		Usage:       "profile user (defaults to profile.user)",
		Sources:     cli.EnvVars("LXFEED_USER"),
		Destination: &cmd.user,
	}
}

// Register adds the profile commands to the application
func (cmd *ProfileCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands,
		&cli.Command{
			Name:      "install",
			Usage:     "Install a package version in the profile",
			UsageText: "lxfeed install <name@version> [--user name]",
			Flags:     []cli.Flag{cmd.userFlag()},
			Action:    cmd.runInstall,
		},
		&cli.Command{
			Name:      "uninstall",
			Usage:     "Remove a package from the profile",
			UsageText: "lxfeed uninstall <name|name@version> [--user name]",
			Flags:     []cli.Flag{cmd.userFlag()},
			Action:    cmd.runUninstall,
		},
		&cli.Command{
			Name:      "ls",
			Usage:     "List installed packages",
			UsageText: "lxfeed ls [--user name] [--json]",
			Flags: []cli.Flag{
				cmd.userFlag(),
				&cli.BoolFlag{
					Name:        "json",
					Usage:       "output as JSON lines",
					Destination: &cmd.jsonOutput,
				},
			},
			Action: cmd.runLs,
		},
		&cli.Command{
			Name:  "topics",
			Usage: "Manage topic subscriptions",
			Flags: []cli.Flag{cmd.userFlag()},
			Commands: []*cli.Command{
				{
					Name:      "add",
					Usage:     "Subscribe to topics",
					UsageText: "lxfeed topics add <topic>...",
					Action:    cmd.runTopics(true),
				},
				{
					Name:      "rm",
					Usage:     "Unsubscribe from topics",
					UsageText: "lxfeed topics rm <topic>...",
					Action:    cmd.runTopics(false),
				},
				{
					Name:      "ls",
					Usage:     "List subscribed topics",
					UsageText: "lxfeed topics ls",
					Action:    cmd.runTopicsLs,
				},
			},
		},
		&cli.Command{
			Name:  "marker",
			Usage: "Manage the profile marker",
			Flags: []cli.Flag{cmd.userFlag()},
			Commands: []*cli.Command{
				{
					Name:      "get",
					Usage:     "Print the marker record",
					UsageText: "lxfeed marker get",
					Action:    cmd.runMarkerGet,
				},
				{
					Name:      "set",
					Usage:     "Point the profile at a marker record",
					UsageText: "lxfeed marker set <id> [--json record]",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:        "json",
							Usage:       "record to write, e.g. {\"g\":\"9q8y\",\"o\":1,\"t\":1700000000}",
							Destination: &cmd.markerData,
						},
					},
					Action: cmd.runMarkerSet,
				},
				{
					Name:      "clear",
					Usage:     "Remove the marker",
					UsageText: "lxfeed marker clear",
					Action:    cmd.runMarkerClear,
				},
			},
		},
	)

	return app
}

func (cmd *ProfileCmd) profile() (*profile.Profile, error) {
	return cmd.flags.App.Profile(cmd.user, nil)
}

func (cmd *ProfileCmd) runInstall(ctx context.Context, c *cli.Command) error {
	ref, err := pkgref.Parse(c.Args().First())
	if err != nil {
		return err
	}
	prof, err := cmd.profile()
	if err != nil {
		return err
	}

	saved, err := prof.Install(ctx, ref)
	if err != nil {
		return err
	}

	p := newPrinter(c.Root().Writer)
	if saved {
		p.Successf("installed %s", ref)
	} else {
		p.Infof("%s already installed", ref)
	}
	return nil
}

func (cmd *ProfileCmd) runUninstall(ctx context.Context, c *cli.Command) error {
	name, _, _ := strings.Cut(c.Args().First(), "@")
	if name == "" {
		return fmt.Errorf("%w: package name required", pkgref.ErrInvalidIdentifier)
	}
	prof, err := cmd.profile()
	if err != nil {
		return err
	}

	removed, err := prof.Uninstall(ctx, name)
	if err != nil {
		return err
	}

	p := newPrinter(c.Root().Writer)
	if removed {
		p.Successf("uninstalled %s", name)
	} else {
		p.Infof("%s is not installed", name)
	}
	return nil
}

func (cmd *ProfileCmd) runLs(ctx context.Context, c *cli.Command) error {
	prof, err := cmd.profile()
	if err != nil {
		return err
	}
	refs, err := prof.ListPackages(ctx)
	if err != nil {
		return err
	}

	out := c.Root().Writer
	if cmd.jsonOutput {
		for _, ref := range refs {
			if err := iojson.WriteLine(out, ref); err != nil {
				return fmt.Errorf("encode package: %w", err)
			}
		}
		return nil
	}

	if len(refs) == 0 {
		fmt.Fprintf(os.Stderr, "No packages installed\n")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tVERSION\tPATH")
	for _, ref := range refs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", ref.Name, ref.Version, ref.DataPath())
	}
	return w.Flush()
}

func (cmd *ProfileCmd) runTopics(on bool) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() == 0 {
			return fmt.Errorf("at least one topic required")
		}
		prof, err := cmd.profile()
		if err != nil {
			return err
		}

		p := newPrinter(c.Root().Writer)
		for _, topic := range c.Args().Slice() {
			if on {
				err = prof.Subscribe(ctx, topic)
			} else {
				err = prof.Unsubscribe(ctx, topic)
			}
			if err != nil {
				return err
			}
			if on {
				p.Successf("subscribed to %s", topic)
			} else {
				p.Successf("unsubscribed from %s", topic)
			}
		}
		return nil
	}
}

func (cmd *ProfileCmd) runTopicsLs(ctx context.Context, c *cli.Command) error {
	prof, err := cmd.profile()
	if err != nil {
		return err
	}
	topics, err := prof.ListTopics(ctx)
	if err != nil {
		return err
	}
	for _, topic := range topics {
		_, _ = fmt.Fprintln(c.Root().Writer, topic)
	}
	return nil
}

func (cmd *ProfileCmd) runMarkerGet(ctx context.Context, c *cli.Command) error {
	prof, err := cmd.profile()
	if err != nil {
		return err
	}
	id, record, ok, err := prof.Marker(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "No marker set\n")
		return nil
	}

	return iojson.WriteWith(c.Root().Writer, c.Root().ErrWriter, map[string]any{
		"id":     id,
		"record": record,
	})
}

func (cmd *ProfileCmd) runMarkerSet(ctx context.Context, c *cli.Command) error {
	id := c.Args().First()
	prof, err := cmd.profile()
	if err != nil {
		return err
	}

	var data graph.Value
	if cmd.markerData != "" {
		if err := json.Unmarshal([]byte(cmd.markerData), &data); err != nil {
			return fmt.Errorf("decode --json: %w", err)
		}
	}

	if err := prof.SetMarker(ctx, id, data); err != nil {
		return err
	}
	newPrinter(c.Root().Writer).Successf("marker set to %s", id)
	return nil
}

func (cmd *ProfileCmd) runMarkerClear(ctx context.Context, c *cli.Command) error {
	prof, err := cmd.profile()
	if err != nil {
		return err
	}
	if err := prof.ClearMarker(ctx); err != nil {
		return err
	}
	newPrinter(c.Root().Writer).Successf("marker cleared")
	return nil
}
