package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/colonyops/lxfeed/internal/core/config"
	"github.com/colonyops/lxfeed/internal/core/eventbus"
	"github.com/colonyops/lxfeed/internal/core/graph"
	"github.com/colonyops/lxfeed/internal/core/logging"
	"github.com/colonyops/lxfeed/internal/core/profile"
	"github.com/colonyops/lxfeed/internal/data/db"
	"github.com/colonyops/lxfeed/internal/data/memgraph"
	"github.com/colonyops/lxfeed/internal/data/sqlgraph"
	"github.com/colonyops/lxfeed/internal/feed"
	"github.com/google/uuid"
)

// Store is the graph store used by the commands.
type Store interface {
	graph.Adapter
	List(ctx context.Context, path string) (map[string]graph.Value, error)
}

// streamer is implemented by stores that pick up writes made elsewhere.
type streamer interface {
	Run(ctx context.Context) error
}

// App is the state shared by commands once the store is open.
type App struct {
	Config *config.Config
	Store  Store

	closer func() error
}

// OpenApp opens the store selected by cfg.
func OpenApp(ctx context.Context, cfg *config.Config) (*App, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return &App{Config: cfg, Store: memgraph.New()}, nil
	case config.DriverSQLite:
		s, err := sqlgraph.Open(ctx, cfg.DatabaseFile(), db.OpenOptions{
			MaxOpenConns: cfg.Store.MaxOpenConns,
			MaxIdleConns: cfg.Store.MaxIdleConns,
			BusyTimeout:  cfg.Store.BusyTimeout,
		}, sqlgraph.Options{
			PollInterval: cfg.Store.PollInterval,
			Debounce:     cfg.Store.Debounce,
		})
		if err != nil {
			return nil, err
		}
		return &App{Config: cfg, Store: s, closer: s.Close}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// NewApp wraps an already open store.
func NewApp(cfg *config.Config, store Store) *App {
	return &App{Config: cfg, Store: store}
}

// Close releases the store.
func (a *App) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	return a.closer()
}

// Stream runs the change stream of the store until ctx is cancelled. Stores
// without one return immediately.
func (a *App) Stream(ctx context.Context) error {
	s, ok := a.Store.(streamer)
	if !ok {
		return nil
	}
	return s.Run(ctx)
}

// ContextID returns the configured feed context, the user name, or a
// generated id.
func (a *App) ContextID(user string) string {
	if a.Config.Context != "" {
		return a.Config.Context
	}
	if user != "" {
		return user
	}
	return uuid.NewString()
}

// NewFeed builds a feed over the store publishing on bus.
func (a *App) NewFeed(bus *eventbus.EventBus, contextID string) *feed.Feed {
	eventbus.RegisterDebugLogger(bus, logging.Component("eventbus"))
	return feed.New(a.Store, bus, feed.Options{
		Context: contextID,
		Allow:   a.Config.Feed.Allow,
	})
}

// Profile opens the profile of user, falling back to the configured user.
func (a *App) Profile(user string, sub profile.Subscriber) (*profile.Profile, error) {
	user = a.User(user)
	p, err := profile.New(a.Store, sub, user)
	if errors.Is(err, profile.ErrNoUser) {
		return nil, fmt.Errorf("%w: pass --user or set profile.user", err)
	}
	return p, err
}

// User returns user or the configured profile user.
func (a *App) User(user string) string {
	if u := strings.TrimSpace(user); u != "" {
		return u
	}
	return a.Config.Profile.User
}
