package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/colonyops/lxfeed/internal/core/graph"
	"github.com/colonyops/lxfeed/internal/core/item"
	"github.com/colonyops/lxfeed/internal/core/pkgref"
	"github.com/colonyops/lxfeed/pkg/iojson"
	"github.com/urfave/cli/v3"
)

// SeedFile describes packages, their items and user profiles to write.
type SeedFile struct {
	// Packages maps a package id to its items. A null item is removed.
	Packages map[string]map[string]any `json:"packages" yaml:"packages"`
	Users    map[string]SeedUser       `json:"users" yaml:"users"`
}

// SeedUser is the profile part of a seed file.
type SeedUser struct {
	Packages []string `json:"packages" yaml:"packages"`
	Topics   []string `json:"topics" yaml:"topics"`
}

type SeedCmd struct {
	flags  *Flags
	reader iojson.FileReader[SeedFile]
}

// NewSeedCmd creates a new seed command
func NewSeedCmd(flags *Flags) *SeedCmd {
	return &SeedCmd{flags: flags}
}

// Register adds the seed command to the application
func (cmd *SeedCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "seed",
		Usage:     "Write packages, items and profiles from a file",
		UsageText: "lxfeed seed -f seed.yaml",
		Description: `Reads a YAML or JSON document and writes it to the store:

  packages:
    acme@1.0:
      itm1: {g: 9q8y, o: 1, t: 1700000000}
      old: null
  users:
    ann:
      packages: [acme@1.0]
      topics: [weather]

Every listed package version is created even without items.`,
		Flags: []cli.Flag{
			cmd.reader.Flag(),
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *SeedCmd) run(ctx context.Context, c *cli.Command) error {
	seed, err := cmd.reader.Read()
	if err != nil {
		return err
	}

	p := newPrinter(c.Root().Writer)
	store := cmd.flags.App.Store

	for _, id := range sortedKeys(seed.Packages) {
		ref, err := pkgref.Parse(id)
		if err != nil {
			return err
		}

		if err := store.Put(ctx, ref.DataPath(), graph.Value{item.MetaKey: "seed"}); err != nil {
			return fmt.Errorf("seed %s: %w", ref, err)
		}

		items := seed.Packages[id]
		for _, itemID := range sortedKeys(items) {
			value, err := seedValue(items[itemID])
			if err != nil {
				return fmt.Errorf("seed %s item %s: %w", ref, itemID, err)
			}
			if err := store.Put(ctx, ref.ItemPath(itemID), value); err != nil {
				return fmt.Errorf("seed %s item %s: %w", ref, itemID, err)
			}
		}
		p.Successf("%s: %d item(s)", ref, len(items))
	}

	for _, user := range sortedKeys(seed.Users) {
		prof, err := cmd.flags.App.Profile(user, nil)
		if err != nil {
			return err
		}

		u := seed.Users[user]
		for _, id := range u.Packages {
			ref, err := pkgref.Parse(id)
			if err != nil {
				return err
			}
			if _, err := prof.Install(ctx, ref); err != nil {
				return err
			}
		}
		for _, topic := range u.Topics {
			if err := prof.Subscribe(ctx, topic); err != nil {
				return err
			}
		}
		p.Successf("user %s: %d package(s), %d topic(s)", user, len(u.Packages), len(u.Topics))
	}

	return nil
}

func seedValue(raw any) (graph.Value, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("expected an object or null, got %T", raw)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
