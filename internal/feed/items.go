package feed

import (
	"context"
	"maps"
	"slices"

	"github.com/colonyops/lxfeed/internal/core/eventbus"
	"github.com/colonyops/lxfeed/internal/core/graph"
	"github.com/colonyops/lxfeed/internal/core/item"
	"github.com/colonyops/lxfeed/internal/core/logging"
	"github.com/colonyops/lxfeed/internal/core/pkgref"
	"github.com/colonyops/lxfeed/pkg/mailbox"
	"github.com/rs/zerolog"
)

// packageGate is the part of the registry the item feed consults.
type packageGate interface {
	IsWatched(ref pkgref.Ref) bool
	RemoveAll()
}

// Items reconciles the notifications of every item node into the feed state
// and emits the item lifecycle events. Every method must run on the feed
// mailbox.
//
// An id is in active iff its entry exists and is active. tracked holds every
// entry id in first-seen order. subscribed outlives Reset: the store has no
// unsubscribe, so an item is subscribed at most once per feed lifetime.
// versions counts the live notifications applied per id; a one-shot read is
// dropped when a live notification landed while it was in flight.
type Items struct {
	ctx     context.Context
	store   graph.Adapter
	bus     *eventbus.EventBus
	box     *mailbox.Mailbox
	log     zerolog.Logger
	context string
	gate    packageGate

	entries    map[string]*item.Item
	active     []string
	tracked    []string
	subscribed map[string]pkgref.Ref
	reseeding  map[string]bool
	versions   map[string]uint64
}

func newItems(ctx context.Context, store graph.Adapter, bus *eventbus.EventBus, box *mailbox.Mailbox, log zerolog.Logger, contextID string, gate packageGate) *Items {
	return &Items{
		ctx:        ctx,
		store:      store,
		bus:        bus,
		box:        box,
		log:        log,
		context:    contextID,
		gate:       gate,
		entries:    map[string]*item.Item{},
		subscribed: map[string]pkgref.Ref{},
		reseeding:  map[string]bool{},
		versions:   map[string]uint64{},
	}
}

// Watch subscribes to item id of ref. It is a no-op for ids that already have
// an entry; ids whose subscription survived a reset are reseeded from a
// one-shot read instead of subscribing twice.
func (f *Items) Watch(id string, ref pkgref.Ref) {
	if _, ok := f.entries[id]; ok {
		return
	}

	if owner, ok := f.subscribed[id]; ok {
		f.reseed(id, owner)
		return
	}

	f.subscribed[id] = ref
	path := ref.ItemPath(id)
	f.log.Debug().Ctx(f.logCtx(ref)).Str("item", id).Msg("subscribe item")

	f.store.On(path, func(v any, _ string) {
		value := asValue(v)
		f.box.Post(func() {
			f.bump(id, ref)
			f.onValue(id, ref, value)
		})
	})

	// field diffs only count once the item has been added
	f.store.Children(path, graph.ChildOptions{ChangeOnly: true}, func(v any, key string) {
		f.box.Post(func() {
			f.bump(id, ref)
			f.onField(id, ref, key, v)
		})
	})
}

func (f *Items) bump(id string, ref pkgref.Ref) {
	if f.gate.IsWatched(ref) {
		f.versions[id]++
	}
}

func (f *Items) onValue(id string, ref pkgref.Ref, v graph.Value) {
	if !f.gate.IsWatched(ref) {
		return
	}

	cur, ok := f.entries[id]

	if v == nil {
		if ok && !cur.Active {
			return
		}
		if !ok {
			// never seen alive: remember the tombstone so the id is not
			// reseeded on every enumeration
			f.entries[id] = &item.Item{ID: id, Package: ref, Data: map[string]any{}}
			f.tracked = append(f.tracked, id)
			f.log.Debug().Ctx(f.logCtx(ref)).Str("item", id).Msg("unwatch unseen item")
			f.bus.PublishItemUnwatched(eventbus.ItemUnwatchedPayload{
				Context: f.context,
				ID:      id,
				Package: ref,
			})
			return
		}

		cur.Active = false
		f.active = slices.DeleteFunc(f.active, func(s string) bool { return s == id })
		f.log.Debug().Ctx(f.logCtx(ref)).Str("item", id).Msg("unwatch item")
		f.bus.PublishItemUnwatched(eventbus.ItemUnwatchedPayload{
			Context: f.context,
			ID:      id,
			Package: ref,
			Item:    cur.Clone(),
		})
		return
	}

	if ok && cur.Active {
		// an add is never reprocessed, only field diffs update an item
		return
	}

	it := item.New(id, ref, v)
	if !ok {
		f.tracked = append(f.tracked, id)
	}
	f.entries[id] = it
	f.active = append(f.active, id)

	f.log.Debug().Ctx(f.logCtx(ref)).Str("item", id).Stringer("kind", it.Kind).Msg("watch item")
	f.bus.PublishItemWatched(eventbus.ItemWatchedPayload{
		Context: f.context,
		ID:      id,
		Package: ref,
		Data:    maps.Clone(it.Data),
		Item:    it.Clone(),
	})
}

func (f *Items) onField(id string, ref pkgref.Ref, key string, v any) {
	if !f.gate.IsWatched(ref) {
		return
	}

	cur, ok := f.entries[id]
	if !ok || !cur.Active {
		return
	}

	if !cur.Merge(key, v) {
		return
	}

	f.bus.PublishItemChanged(eventbus.ItemChangedPayload{
		Context: f.context,
		ID:      id,
		Package: ref,
		Data:    map[string]any{key: v},
	})
}

// Resync re-reads every tracked item of ref and applies the result through
// the regular value and field rules.
func (f *Items) Resync(ref pkgref.Ref) {
	for _, id := range f.tracked {
		if e := f.entries[id]; e != nil && e.Package == ref {
			f.reseed(id, ref)
		}
	}
}

func (f *Items) reseed(id string, ref pkgref.Ref) {
	if f.reseeding[id] {
		return
	}
	f.reseeding[id] = true
	version := f.versions[id]

	f.box.Go(func() func() {
		v, err := f.store.Once(f.ctx, ref.ItemPath(id))
		return func() {
			delete(f.reseeding, id)
			if f.versions[id] != version {
				f.log.Debug().Ctx(f.logCtx(ref)).Str("item", id).Msg("discarding stale item read")
				return
			}
			if err != nil {
				f.log.Warn().Err(err).Ctx(f.logCtx(ref)).Str("item", id).Msg("resync item")
				return
			}
			f.reconcile(id, ref, v)
		}
	})
}

func (f *Items) reconcile(id string, ref pkgref.Ref, v graph.Value) {
	f.onValue(id, ref, v)

	cur, ok := f.entries[id]
	if v == nil || !ok || !cur.Active {
		return
	}
	fields := item.Fields(v)
	for _, key := range graph.DiffFields(cur.Data, fields) {
		f.onField(id, ref, key, fields[key])
	}
}

// Reset removes every package, emits one item-unwatch per tracked entry,
// clears the feed state and emits reset.
func (f *Items) Reset() {
	f.gate.RemoveAll()

	for _, id := range f.tracked {
		e := f.entries[id]
		f.bus.PublishItemUnwatched(eventbus.ItemUnwatchedPayload{
			Context: f.context,
			ID:      id,
			Package: e.Package,
			Item:    e.Clone(),
		})
	}

	f.log.Info().Int("items", len(f.tracked)).Msg("reset feed")

	f.entries = map[string]*item.Item{}
	f.active = nil
	f.tracked = nil
	f.bus.PublishFeedReset(eventbus.FeedResetPayload{Context: f.context})
}

// Active returns copies of the active items in watch order.
func (f *Items) Active() []*item.Item {
	out := make([]*item.Item, 0, len(f.active))
	for _, id := range f.active {
		out = append(out, f.entries[id].Clone())
	}
	return out
}

// Inactive returns copies of the tombstoned items in first-seen order.
func (f *Items) Inactive() []*item.Item {
	var out []*item.Item
	for _, id := range f.tracked {
		if e := f.entries[id]; !e.Active {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Get returns a copy of the entry for id.
func (f *Items) Get(id string) (*item.Item, bool) {
	e, ok := f.entries[id]
	return e.Clone(), ok
}

// logCtx is the feed context tagged with ref for ContextHook.
func (f *Items) logCtx(ref pkgref.Ref) context.Context {
	return logging.WithPackageID(f.ctx, ref.String())
}

func asValue(v any) graph.Value {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return nil
}
