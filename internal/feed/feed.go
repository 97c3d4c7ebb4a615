// Package feed turns the notification stream of a graph store into a stable
// lifecycle event stream for the packages a user subscribes to.
//
// A Feed owns a single mailbox. Public calls and every adapter callback are
// posted onto it, so the registry and item state are only ever touched by one
// goroutine. Calls never block on the store; their effects are observable
// through the events published on the bus.
package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/colonyops/lxfeed/internal/core/eventbus"
	"github.com/colonyops/lxfeed/internal/core/graph"
	"github.com/colonyops/lxfeed/internal/core/item"
	"github.com/colonyops/lxfeed/internal/core/logging"
	"github.com/colonyops/lxfeed/internal/core/pkgref"
	"github.com/colonyops/lxfeed/pkg/mailbox"
	"github.com/rs/zerolog"
)

// ErrStopped is returned by queries issued after the feed stopped.
var ErrStopped = errors.New("feed stopped")

// ErrInvalidTopic is returned for empty topic names.
var ErrInvalidTopic = errors.New("invalid topic")

// Options configures a Feed.
type Options struct {
	// Context identifies the owner of the feed (user or session). It tags
	// every event and the log prefix.
	Context string
	// Allow restricts watchable packages to identifiers matching one of the
	// glob patterns. Empty allows everything.
	Allow []string
	// Logger overrides the default feed logger.
	Logger *zerolog.Logger
}

// Feed is the public surface over the package registry and the item feed.
type Feed struct {
	box      *mailbox.Mailbox
	bus      *eventbus.EventBus
	log      zerolog.Logger
	context  string
	ctx      context.Context
	cancel   context.CancelFunc
	registry *Registry
	items    *Items

	topics map[string]bool
}

// New wires a feed over store that publishes on bus. Call Start to run it.
func New(store graph.Adapter, bus *eventbus.EventBus, opts Options) *Feed {
	ctx, cancel := context.WithCancel(logging.WithContextID(context.Background(), opts.Context))
	logger := logging.Feed(ctx)
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("prefix", logging.Prefix(opts.Context)).Ctx(ctx).Logger()
	}
	box := mailbox.New()
	box.OnPanic(func(r any) {
		logger.Error().Str("panic", fmt.Sprint(r)).Msg("feed task panicked")
	})

	f := &Feed{
		box:     box,
		bus:     bus,
		log:     logger,
		context: opts.Context,
		ctx:     ctx,
		cancel:  cancel,
		topics:  map[string]bool{},
	}

	f.registry = newRegistry(ctx, store, bus, box, logger, opts.Context, opts.Allow)
	f.items = newItems(ctx, store, bus, box, logger, opts.Context, f.registry)
	f.registry.items = f.items
	return f
}

// Start processes feed work until ctx is cancelled.
func (f *Feed) Start(ctx context.Context) {
	defer f.cancel()
	f.box.Start(ctx)
}

// Wait blocks until every queued call and callback has been applied and no
// store read is in flight.
func (f *Feed) Wait(ctx context.Context) error {
	return f.box.Wait(ctx)
}

// Context returns the owner id of the feed.
func (f *Feed) Context() string {
	return f.context
}

// LogPrefix returns the padded prefix identifying this feed in logs.
func (f *Feed) LogPrefix() string {
	return logging.Prefix(f.context)
}

// AddOnePackage starts watching the package identified by name@version.
func (f *Feed) AddOnePackage(id string) error {
	ref, err := pkgref.Parse(id)
	if err != nil {
		f.log.Error().Err(err).Str("package", id).Msg("invalid identifier provided to add package")
		return err
	}
	f.post(func() { f.registry.Add(ref) })
	return nil
}

// AddManyPackages starts watching every valid id in order. Bad ids are
// skipped and reported together.
func (f *Feed) AddManyPackages(ids []string) error {
	refs, err := pkgref.ParseMany(ids)
	if err != nil {
		f.log.Error().Err(err).Msg("invalid identifiers provided to add packages")
	}
	f.post(func() {
		for _, ref := range refs {
			f.registry.Add(ref)
		}
	})
	return err
}

// RemoveOnePackage stops watching the package identified by name@version.
func (f *Feed) RemoveOnePackage(id string) error {
	ref, err := pkgref.Parse(id)
	if err != nil {
		f.log.Error().Err(err).Str("package", id).Msg("invalid identifier provided to remove package")
		return err
	}
	f.post(func() { f.registry.Remove(ref) })
	return nil
}

// RemoveManyPackages stops watching every valid id. Bad ids are skipped and
// reported together.
func (f *Feed) RemoveManyPackages(ids []string) error {
	refs, err := pkgref.ParseMany(ids)
	if err != nil {
		f.log.Error().Err(err).Msg("invalid identifiers provided to remove packages")
	}
	f.post(func() {
		for _, ref := range refs {
			f.registry.Remove(ref)
		}
	})
	return err
}

// AddOneTopic raises the flag of topic name.
func (f *Feed) AddOneTopic(name string) error {
	return f.setTopic(name, true)
}

// AddManyTopics raises every topic flag.
func (f *Feed) AddManyTopics(names []string) error {
	var errs []error
	for _, name := range names {
		if err := f.AddOneTopic(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveOneTopic lowers the flag of topic name.
func (f *Feed) RemoveOneTopic(name string) error {
	return f.setTopic(name, false)
}

// RemoveManyTopics lowers every topic flag.
func (f *Feed) RemoveManyTopics(names []string) error {
	var errs []error
	for _, name := range names {
		if err := f.RemoveOneTopic(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Feed) setTopic(name string, on bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		f.log.Error().Err(ErrInvalidTopic).Msg("empty topic name")
		return ErrInvalidTopic
	}

	f.post(func() {
		if f.topics[name] == on {
			return
		}
		f.topics[name] = on
		if on {
			f.log.Info().Str("topic", name).Msg("add topic")
		} else {
			f.log.Info().Str("topic", name).Msg("remove topic")
		}
		f.bus.PublishTopicChanged(eventbus.TopicChangedPayload{
			Context:    f.context,
			Topic:      name,
			Subscribed: on,
		})
	})
	return nil
}

// Reset unwatches every package and item and clears the feed state. Used when
// the owning context is torn down.
func (f *Feed) Reset() {
	f.post(f.items.Reset)
}

// Refresh re-reads every tracked item of the watched packages.
func (f *Feed) Refresh() {
	f.post(func() {
		for _, ref := range f.registry.Watched() {
			f.items.Resync(ref)
		}
	})
}

// State returns the watch state of the package identified by id.
func (f *Feed) State(ctx context.Context, id string) (State, error) {
	ref, err := pkgref.Parse(id)
	if err != nil {
		return StateUnwatched, err
	}
	return query(ctx, f, func() State { return f.registry.State(ref) })
}

// IsWatched reports whether the package identified by id is watched.
func (f *Feed) IsWatched(ctx context.Context, id string) (bool, error) {
	s, err := f.State(ctx, id)
	return s == StateWatched, err
}

// Packages returns the watched packages.
func (f *Feed) Packages(ctx context.Context) ([]pkgref.Ref, error) {
	return query(ctx, f, f.registry.Watched)
}

// HasTopic reports whether the topic flag is raised.
func (f *Feed) HasTopic(ctx context.Context, name string) (bool, error) {
	return query(ctx, f, func() bool { return f.topics[name] })
}

// Topics returns the raised topic flags in lexical order.
func (f *Feed) Topics(ctx context.Context) ([]string, error) {
	return query(ctx, f, func() []string {
		var out []string
		for name, on := range f.topics {
			if on {
				out = append(out, name)
			}
		}
		slices.Sort(out)
		return out
	})
}

// ActiveItems returns the active items in watch order.
func (f *Feed) ActiveItems(ctx context.Context) ([]*item.Item, error) {
	return query(ctx, f, f.items.Active)
}

// InactiveItems returns the tombstoned items.
func (f *Feed) InactiveItems(ctx context.Context) ([]*item.Item, error) {
	return query(ctx, f, f.items.Inactive)
}

// Item returns the entry for id, active or tombstoned.
func (f *Feed) Item(ctx context.Context, id string) (*item.Item, bool, error) {
	type result struct {
		it *item.Item
		ok bool
	}
	r, err := query(ctx, f, func() result {
		it, ok := f.items.Get(id)
		return result{it: it, ok: ok}
	})
	return r.it, r.ok, err
}

func (f *Feed) post(fn func()) {
	if !f.box.Post(fn) {
		f.log.Warn().Msg("feed stopped, dropping call")
	}
}

// query runs fn on the mailbox and waits for its result. Bus subscribers must
// not call it synchronously.
func query[T any](ctx context.Context, f *Feed, fn func() T) (T, error) {
	ch := make(chan T, 1)
	var zero T
	if !f.box.Post(func() { ch <- fn() }) {
		return zero, ErrStopped
	}

	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-f.ctx.Done():
		return zero, ErrStopped
	}
}
