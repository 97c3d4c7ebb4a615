package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/colonyops/lxfeed/internal/core/eventbus"
	"github.com/colonyops/lxfeed/internal/core/graph"
	"github.com/colonyops/lxfeed/internal/core/item"
	"github.com/colonyops/lxfeed/internal/core/logging"
	"github.com/colonyops/lxfeed/internal/core/pkgref"
	"github.com/colonyops/lxfeed/pkg/mailbox"
	"github.com/rs/zerolog"
)

// ErrMissingPackage describes a package whose versioned node does not exist.
// It is recorded as StateMissing and never returned to callers.
var ErrMissingPackage = errors.New("package version not found")

// State is the watch state of a package.
type State int

const (
	StateUnwatched State = iota
	StatePending
	StateWatched
	StateMissing
)

func (s State) String() string {
	switch s {
	case StateUnwatched:
		return "unwatched"
	case StatePending:
		return "pending"
	case StateWatched:
		return "watched"
	case StateMissing:
		return "missing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// itemWatcher receives the item ids found under a watched package.
type itemWatcher interface {
	Watch(id string, ref pkgref.Ref)
	Resync(ref pkgref.Ref)
}

// Registry tracks which packages are watched and gates all item level
// watching. Every method must run on the feed mailbox.
type Registry struct {
	ctx     context.Context
	store   graph.Adapter
	bus     *eventbus.EventBus
	box     *mailbox.Mailbox
	log     zerolog.Logger
	context string
	allow   []string
	items   itemWatcher

	states     map[pkgref.Ref]State
	gens       map[pkgref.Ref]uint64
	enumerated map[pkgref.Ref]bool
}

func newRegistry(ctx context.Context, store graph.Adapter, bus *eventbus.EventBus, box *mailbox.Mailbox, log zerolog.Logger, contextID string, allow []string) *Registry {
	return &Registry{
		ctx:        ctx,
		store:      store,
		bus:        bus,
		box:        box,
		log:        log,
		context:    contextID,
		allow:      allow,
		states:     map[pkgref.Ref]State{},
		gens:       map[pkgref.Ref]uint64{},
		enumerated: map[pkgref.Ref]bool{},
	}
}

// Add starts watching ref: the package moves to StatePending and a one-shot
// read confirms that its versioned node exists.
func (r *Registry) Add(ref pkgref.Ref) {
	switch r.states[ref] {
	case StatePending, StateWatched:
		r.log.Debug().Ctx(r.logCtx(ref)).Msg("already watching")
		return
	}

	if !r.allowed(ref) {
		r.log.Warn().Ctx(r.logCtx(ref)).Msg("package not in allow list")
		return
	}

	r.states[ref] = StatePending
	r.gens[ref]++
	gen := r.gens[ref]

	r.box.Go(func() func() {
		v, err := r.store.Once(r.logCtx(ref), ref.DataPath())
		return func() { r.confirm(ref, gen, v, err) }
	})
}

func (r *Registry) confirm(ref pkgref.Ref, gen uint64, v graph.Value, err error) {
	if r.gens[ref] != gen || r.states[ref] != StatePending {
		r.log.Debug().Ctx(r.logCtx(ref)).Msg("discarding stale confirmation")
		return
	}

	if err != nil {
		r.states[ref] = StateUnwatched
		r.log.Error().Err(err).Ctx(r.logCtx(ref)).Msg("confirm package")
		r.bus.PublishPackageWatchFailed(eventbus.PackageWatchFailedPayload{
			Context: r.context,
			Package: ref,
			Err:     err,
		})
		return
	}

	if v == nil {
		r.states[ref] = StateMissing
		r.log.Warn().Err(ErrMissingPackage).Ctx(r.logCtx(ref)).Msg("missing package")
		return
	}

	r.states[ref] = StateWatched
	r.log.Info().Ctx(r.logCtx(ref)).Msg("watch package")
	r.bus.PublishPackageWatched(eventbus.PackageWatchedPayload{Context: r.context, Package: ref})

	if !r.enumerated[ref] {
		r.enumerated[ref] = true
		r.store.Children(ref.DataPath(), graph.ChildOptions{}, func(child any, key string) {
			if child == nil {
				return
			}
			r.box.Post(func() { r.forward(ref, key) })
		})
		return
	}

	// The live enumeration from an earlier watch is still registered and only
	// reports future changes, so replay the keys we just read.
	for _, key := range graph.SortedKeys(v) {
		if v[key] != nil {
			r.forward(ref, key)
		}
	}
	r.items.Resync(ref)
}

func (r *Registry) forward(ref pkgref.Ref, key string) {
	if r.states[ref] != StateWatched || key == item.MetaKey {
		return
	}
	r.items.Watch(key, ref)
}

// Remove stops watching ref. The adapter subscription stays registered; the
// registry state gates its effects.
func (r *Registry) Remove(ref pkgref.Ref) {
	switch r.states[ref] {
	case StateWatched:
		r.states[ref] = StateUnwatched
		r.log.Info().Ctx(r.logCtx(ref)).Msg("unwatch package")
		r.bus.PublishPackageUnwatched(eventbus.PackageUnwatchedPayload{Context: r.context, Package: ref})
	case StatePending:
		r.states[ref] = StateUnwatched
		r.gens[ref]++
		r.log.Debug().Ctx(r.logCtx(ref)).Msg("cancel pending package")
	default:
		r.log.Debug().Ctx(r.logCtx(ref)).Msg("not watching")
	}
}

// RemoveAll removes every watched or pending package.
func (r *Registry) RemoveAll() {
	for _, ref := range r.tracked() {
		r.Remove(ref)
	}
}

// IsWatched reports whether ref is confirmed and watched.
func (r *Registry) IsWatched(ref pkgref.Ref) bool {
	return r.states[ref] == StateWatched
}

// State returns the watch state of ref.
func (r *Registry) State(ref pkgref.Ref) State {
	return r.states[ref]
}

// Watched returns the watched packages sorted by identifier.
func (r *Registry) Watched() []pkgref.Ref {
	var out []pkgref.Ref
	for ref, s := range r.states {
		if s == StateWatched {
			out = append(out, ref)
		}
	}
	sortRefs(out)
	return out
}

func (r *Registry) tracked() []pkgref.Ref {
	var out []pkgref.Ref
	for ref, s := range r.states {
		if s == StateWatched || s == StatePending {
			out = append(out, ref)
		}
	}
	sortRefs(out)
	return out
}

// logCtx is the feed context tagged with ref for ContextHook.
func (r *Registry) logCtx(ref pkgref.Ref) context.Context {
	return logging.WithPackageID(r.ctx, ref.String())
}

func (r *Registry) allowed(ref pkgref.Ref) bool {
	if len(r.allow) == 0 {
		return true
	}
	id := ref.String()
	for _, pattern := range r.allow {
		if ok, _ := doublestar.Match(pattern, id); ok {
			return true
		}
	}
	return false
}

func sortRefs(refs []pkgref.Ref) {
	slices.SortFunc(refs, func(a, b pkgref.Ref) int {
		return strings.Compare(a.String(), b.String())
	})
}
