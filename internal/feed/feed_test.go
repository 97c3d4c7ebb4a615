package feed

import (
	"context"
	"testing"
	"time"

	"github.com/colonyops/lxfeed/internal/core/eventbus"
	"github.com/colonyops/lxfeed/internal/core/eventbus/testbus"
	"github.com/colonyops/lxfeed/internal/core/graph"
	"github.com/colonyops/lxfeed/internal/core/item"
	"github.com/colonyops/lxfeed/internal/core/pkgref"
	"github.com/colonyops/lxfeed/internal/data/memgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t     *testing.T
	store *memgraph.Store
	bus   *testbus.Bus
	feed  *Feed
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	if opts.Context == "" {
		opts.Context = "alice"
	}

	h := &harness{
		t:     t,
		store: memgraph.New(),
		bus:   testbus.New(t),
	}
	h.feed = New(h.store, h.bus.EventBus, opts)

	ctx, cancel := context.WithCancel(context.Background())
	go h.feed.Start(ctx)
	t.Cleanup(cancel)
	return h
}

func (h *harness) put(path string, v graph.Value) {
	h.t.Helper()
	require.NoError(h.t, h.store.Put(context.Background(), path, v))
}

// sync waits for the feed to go idle and for the bus to dispatch what it
// published.
func (h *harness) sync() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(h.t, h.feed.Wait(ctx))
	h.bus.Settle(10 * time.Millisecond)
}

func (h *harness) watch(id string) {
	h.t.Helper()
	require.NoError(h.t, h.feed.AddOnePackage(id))
	h.sync()
}

func TestFeed_AddPackage_ConfirmsAndWatches(t *testing.T) {
	h := newHarness(t, Options{})
	h.put("pkg/acme/data/1.0", graph.Value{"itm1": map[string]any{"a": 1}})

	h.watch("acme@1.0")

	watched := h.bus.Of(eventbus.EventPackageWatched)
	require.Len(t, watched, 1)
	p := watched[0].(eventbus.PackageWatchedPayload)
	assert.Equal(t, pkgref.Ref{Name: "acme", Version: "1.0"}, p.Package)
	assert.Equal(t, "alice", p.Context)

	ok, err := h.feed.IsWatched(context.Background(), "acme@1.0")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFeed_AddPackage_InvalidIdentifier(t *testing.T) {
	h := newHarness(t, Options{})

	err := h.feed.AddOnePackage("bad-id-no-version")
	require.ErrorIs(t, err, pkgref.ErrInvalidIdentifier)
	h.sync()

	assert.Empty(t, h.bus.Events())

	pkgs, err := h.feed.Packages(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pkgs)
}

func TestFeed_AddPackage_Twice(t *testing.T) {
	h := newHarness(t, Options{})
	h.put("pkg/acme/data/1.0", graph.Value{"itm1": map[string]any{"a": 1}})

	require.NoError(t, h.feed.AddOnePackage("acme@1.0"))
	require.NoError(t, h.feed.AddOnePackage("acme@1.0"))
	h.sync()

	assert.Equal(t, 1, h.store.OnceCalls("pkg/acme/data/1.0"))
	assert.Equal(t, 1, h.bus.Count(eventbus.EventPackageWatched))
	assert.Equal(t, 1, h.bus.Count(eventbus.EventItemWatched))
}

func TestFeed_AddPackage_Missing(t *testing.T) {
	h := newHarness(t, Options{})

	h.watch("ghost@1.0")

	assert.Empty(t, h.bus.Events())
	s, err := h.feed.State(context.Background(), "ghost@1.0")
	require.NoError(t, err)
	assert.Equal(t, StateMissing, s)
}

func TestFeed_AddPackage_MissingCanBeRetried(t *testing.T) {
	h := newHarness(t, Options{})

	h.watch("late@1.0")
	h.put("pkg/late/data/1.0", graph.Value{"x": map[string]any{"a": 1}})
	h.watch("late@1.0")

	assert.Equal(t, 1, h.bus.Count(eventbus.EventPackageWatched))
	assert.Equal(t, 1, h.bus.Count(eventbus.EventItemWatched))
}

func TestFeed_AddPackage_StoreUnavailable(t *testing.T) {
	h := newHarness(t, Options{})
	h.store.SetUnavailable(true)

	h.watch("acme@1.0")

	failed := h.bus.Of(eventbus.EventPackageWatchFailed)
	require.Len(t, failed, 1)
	p := failed[0].(eventbus.PackageWatchFailedPayload)
	assert.ErrorIs(t, p.Err, graph.ErrUnavailable)
	assert.Equal(t, 0, h.bus.Count(eventbus.EventPackageWatched))

	s, err := h.feed.State(context.Background(), "acme@1.0")
	require.NoError(t, err)
	assert.Equal(t, StateUnwatched, s)
}

func TestFeed_AddManyPackages_ReportsBadIDs(t *testing.T) {
	h := newHarness(t, Options{})
	h.put("pkg/a/data/1", graph.Value{"i": map[string]any{"v": 1}})
	h.put("pkg/b/data/2", graph.Value{"j": map[string]any{"v": 2}})

	err := h.feed.AddManyPackages([]string{"a@1", "nope", "b@2", "x@y@z"})
	require.ErrorIs(t, err, pkgref.ErrInvalidIdentifier)
	h.sync()

	pkgs, err := h.feed.Packages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []pkgref.Ref{pkgref.MustParse("a@1"), pkgref.MustParse("b@2")}, pkgs)
}

func TestFeed_RemoveManyPackages_SkipsBadIDs(t *testing.T) {
	h := newHarness(t, Options{})
	h.put("pkg/a/data/1", graph.Value{"i": map[string]any{"v": 1}})
	h.put("pkg/b/data/2", graph.Value{"j": map[string]any{"v": 2}})
	require.NoError(t, h.feed.AddManyPackages([]string{"a@1", "b@2"}))
	h.sync()

	err := h.feed.RemoveManyPackages([]string{"a@1", "nope"})
	require.ErrorIs(t, err, pkgref.ErrInvalidIdentifier)
	h.sync()

	assert.Equal(t, 1, h.bus.Count(eventbus.EventPackageUnwatched))
	pkgs, err := h.feed.Packages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []pkgref.Ref{pkgref.MustParse("b@2")}, pkgs)
}

func TestFeed_AllowList(t *testing.T) {
	h := newHarness(t, Options{Allow: []string{"acme@*"}})
	h.put("pkg/acme/data/1.0", graph.Value{"i": map[string]any{"v": 1}})
	h.put("pkg/other/data/1.0", graph.Value{"j": map[string]any{"v": 1}})

	require.NoError(t, h.feed.AddManyPackages([]string{"acme@1.0", "other@1.0"}))
	h.sync()

	assert.Equal(t, 1, h.bus.Count(eventbus.EventPackageWatched))
	assert.Equal(t, 0, h.store.OnceCalls("pkg/other/data/1.0"))
}

func TestFeed_RemovePackage(t *testing.T) {
	h := newHarness(t, Options{})
	h.put("pkg/acme/data/1.0", graph.Value{"itm1": map[string]any{"a": 1}})
	h.watch("acme@1.0")

	require.NoError(t, h.feed.RemoveOnePackage("acme@1.0"))
	require.NoError(t, h.feed.RemoveOnePackage("acme@1.0"))
	h.sync()

	assert.Equal(t, 1, h.bus.Count(eventbus.EventPackageUnwatched))

	// callbacks of an unwatched package have no effect
	h.bus.Reset()
	h.put("pkg/acme/data/1.0/itm1", graph.Value{"a": 2})
	h.put("pkg/acme/data/1.0", graph.Value{"itm2": map[string]any{"b": 1}})
	h.sync()
	assert.Empty(t, h.bus.Events())
}

// gatedStore holds one-shot reads until release is closed.
type gatedStore struct {
	*memgraph.Store
	release chan struct{}
}

func (s *gatedStore) Once(ctx context.Context, path string) (graph.Value, error) {
	<-s.release
	return s.Store.Once(ctx, path)
}

func TestFeed_RemovePendingPackage(t *testing.T) {
	store := &gatedStore{Store: memgraph.New(), release: make(chan struct{})}
	bus := testbus.New(t)
	f := New(store, bus.EventBus, Options{Context: "alice"})
	ctx, cancel := context.WithCancel(context.Background())
	go f.Start(ctx)
	t.Cleanup(cancel)
	h := &harness{t: t, store: store.Store, bus: bus, feed: f}

	h.put("pkg/acme/data/1.0", graph.Value{"itm1": map[string]any{"a": 1}})

	require.NoError(t, f.AddOnePackage("acme@1.0"))
	s, err := f.State(context.Background(), "acme@1.0")
	require.NoError(t, err)
	assert.Equal(t, StatePending, s)

	require.NoError(t, f.RemoveOnePackage("acme@1.0"))
	close(store.release)
	h.sync()

	assert.Equal(t, 0, h.bus.Count(eventbus.EventPackageWatched))
	assert.Equal(t, 0, h.bus.Count(eventbus.EventPackageUnwatched))

	s, err = f.State(context.Background(), "acme@1.0")
	require.NoError(t, err)
	assert.Equal(t, StateUnwatched, s)
}

func TestFeed_RewatchReplaysItems(t *testing.T) {
	h := newHarness(t, Options{})
	h.put("pkg/acme/data/1.0", graph.Value{"itm1": map[string]any{"a": 1}})
	h.watch("acme@1.0")

	require.NoError(t, h.feed.RemoveOnePackage("acme@1.0"))
	h.sync()

	// changes made while unwatched are picked up on the next watch
	h.put("pkg/acme/data/1.0/itm1", graph.Value{"a": 2})
	h.put("pkg/acme/data/1.0", graph.Value{"itm2": map[string]any{"b": 1}})
	h.bus.Reset()

	h.watch("acme@1.0")

	assert.Equal(t, 1, h.bus.Count(eventbus.EventPackageWatched))

	watched := h.bus.Of(eventbus.EventItemWatched)
	require.Len(t, watched, 1)
	assert.Equal(t, "itm2", watched[0].(eventbus.ItemWatchedPayload).ID)

	changed := h.bus.Of(eventbus.EventItemChanged)
	require.Len(t, changed, 1)
	c := changed[0].(eventbus.ItemChangedPayload)
	assert.Equal(t, "itm1", c.ID)
	assert.Equal(t, map[string]any{"a": 2}, c.Data)

	on, children := h.store.Subscriptions("pkg/acme/data/1.0")
	assert.Equal(t, 0, on)
	assert.Equal(t, 1, children)
	on, children = h.store.Subscriptions("pkg/acme/data/1.0/itm1")
	assert.Equal(t, 1, on)
	assert.Equal(t, 1, children)
}

func TestFeed_ItemLifecycle(t *testing.T) {
	h := newHarness(t, Options{})
	h.put("pkg/acme/data/1.0", graph.Value{"itm42": map[string]any{"a": 1}})
	h.watch("acme@1.0")

	h.put("pkg/acme/data/1.0/itm42", nil)
	h.sync()

	assert.Equal(t, []eventbus.Event{
		eventbus.EventPackageWatched,
		eventbus.EventItemWatched,
		eventbus.EventItemUnwatched,
	}, h.bus.Names())

	w := h.bus.Of(eventbus.EventItemWatched)[0].(eventbus.ItemWatchedPayload)
	assert.Equal(t, "itm42", w.ID)
	assert.Equal(t, map[string]any{"a": 1}, w.Data)

	u := h.bus.Of(eventbus.EventItemUnwatched)[0].(eventbus.ItemUnwatchedPayload)
	assert.Equal(t, "itm42", u.ID)
	require.NotNil(t, u.Item)
	assert.Equal(t, map[string]any{"a": 1}, u.Item.Data)
	assert.False(t, u.Item.Active)

	active, err := h.feed.ActiveItems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)

	inactive, err := h.feed.InactiveItems(context.Background())
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.Equal(t, "itm42", inactive[0].ID)
}

func TestFeed_ItemRevived(t *testing.T) {
	h := newHarness(t, Options{})
	h.put("pkg/acme/data/1.0", graph.Value{"itm1": map[string]any{"a": 1}})
	h.watch("acme@1.0")

	h.put("pkg/acme/data/1.0/itm1", nil)
	h.put("pkg/acme/data/1.0/itm1", graph.Value{"a": 5})
	h.sync()

	assert.Equal(t, 2, h.bus.Count(eventbus.EventItemWatched))
	assert.Equal(t, 1, h.bus.Count(eventbus.EventItemUnwatched))
	assert.Equal(t, 0, h.bus.Count(eventbus.EventItemChanged))

	it, ok, err := h.feed.Item(context.Background(), "itm1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, it.Active)
	assert.Equal(t, map[string]any{"a": 5}, it.Data)
}

func TestFeed_ItemFieldChanges(t *testing.T) {
	h := newHarness(t, Options{})
	h.put("pkg/acme/data/1.0", graph.Value{"itm1": map[string]any{"a": 1, "b": "x"}})
	h.watch("acme@1.0")

	h.put("pkg/acme/data/1.0/itm1", graph.Value{"a": 2})
	h.put("pkg/acme/data/1.0/itm1", graph.Value{"a": 2})
	h.put("pkg/acme/data/1.0/itm1", graph.Value{"b": nil})
	h.sync()

	changed := h.bus.Of(eventbus.EventItemChanged)
	require.Len(t, changed, 2)
	assert.Equal(t, map[string]any{"a": 2}, changed[0].(eventbus.ItemChangedPayload).Data)
	assert.Equal(t, map[string]any{"b": nil}, changed[1].(eventbus.ItemChangedPayload).Data)

	it, ok, err := h.feed.Item(context.Background(), "itm1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": 2}, it.Data)
}

func TestFeed_ItemClassification(t *testing.T) {
	h := newHarness(t, Options{})
	h.put("pkg/acme/data/1.0", graph.Value{
		"pin":  map[string]any{"g": 1, "o": 2, "t": 3},
		"note": map[string]any{"x": 1},
	})
	h.watch("acme@1.0")

	kinds := map[string]item.Kind{}
	for _, p := range h.bus.Of(eventbus.EventItemWatched) {
		w := p.(eventbus.ItemWatchedPayload)
		kinds[w.ID] = w.Item.Kind
	}
	assert.Equal(t, map[string]item.Kind{"pin": item.KindMarker, "note": item.KindGeneric}, kinds)
}

func TestFeed_NewItemsAreDiscovered(t *testing.T) {
	h := newHarness(t, Options{})
	h.put("pkg/acme/data/1.0", graph.Value{"itm1": map[string]any{"a": 1}})
	h.watch("acme@1.0")

	h.put("pkg/acme/data/1.0/itm2", graph.Value{"b": 1})
	h.put("pkg/acme/data/1.0/itm3", graph.Value{"c": 1})
	h.sync()

	active, err := h.feed.ActiveItems(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(active))
	for _, it := range active {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"itm1", "itm2", "itm3"}, ids)
	assert.Equal(t, 3, h.bus.Count(eventbus.EventItemWatched))
}

func TestFeed_MetadataKeyIsNotAnItem(t *testing.T) {
	h := newHarness(t, Options{})
	h.put("pkg/acme/data/1.0", graph.Value{
		item.MetaKey: map[string]any{"title": "Acme"},
		"itm1":       map[string]any{"a": 1},
	})
	h.watch("acme@1.0")

	assert.Equal(t, 1, h.bus.Count(eventbus.EventItemWatched))
	on, _ := h.store.Subscriptions("pkg/acme/data/1.0/" + item.MetaKey)
	assert.Equal(t, 0, on)
}

func TestFeed_Reset(t *testing.T) {
	h := newHarness(t, Options{})
	h.put("pkg/acme/data/1.0", graph.Value{
		"itm1": map[string]any{"a": 1},
		"itm2": map[string]any{"a": 2},
	})
	h.watch("acme@1.0")
	h.put("pkg/acme/data/1.0/itm2", nil)
	h.sync()
	h.bus.Reset()

	h.feed.Reset()
	h.sync()

	assert.Equal(t, 1, h.bus.Count(eventbus.EventPackageUnwatched))
	assert.Equal(t, 2, h.bus.Count(eventbus.EventItemUnwatched))
	assert.Equal(t, 1, h.bus.Count(eventbus.EventFeedReset))

	names := h.bus.Names()
	assert.Equal(t, eventbus.EventFeedReset, names[len(names)-1])

	active, err := h.feed.ActiveItems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
	pkgs, err := h.feed.Packages(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pkgs)
}

func TestFeed_ResetThenRewatch(t *testing.T) {
	h := newHarness(t, Options{})
	h.put("pkg/acme/data/1.0", graph.Value{"itm1": map[string]any{"a": 1}})
	h.watch("acme@1.0")

	h.feed.Reset()
	h.sync()
	h.bus.Reset()

	h.watch("acme@1.0")

	assert.Equal(t, 1, h.bus.Count(eventbus.EventItemWatched))
	on, children := h.store.Subscriptions("pkg/acme/data/1.0/itm1")
	assert.Equal(t, 1, on)
	assert.Equal(t, 1, children)
}

func TestFeed_Refresh(t *testing.T) {
	h := newHarness(t, Options{})
	h.put("pkg/acme/data/1.0", graph.Value{"itm1": map[string]any{"a": 1}})
	h.watch("acme@1.0")
	h.bus.Reset()

	h.feed.Refresh()
	h.sync()

	assert.Equal(t, 1, h.store.OnceCalls("pkg/acme/data/1.0/itm1"))
	assert.Empty(t, h.bus.Events())
}

func TestFeed_Topics(t *testing.T) {
	h := newHarness(t, Options{})

	require.NoError(t, h.feed.AddManyTopics([]string{"news", "alerts", "news"}))
	require.ErrorIs(t, h.feed.AddOneTopic("  "), ErrInvalidTopic)
	h.sync()

	topics, err := h.feed.Topics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alerts", "news"}, topics)
	assert.Equal(t, 2, h.bus.Count(eventbus.EventTopicChanged))

	require.NoError(t, h.feed.RemoveOneTopic("news"))
	require.NoError(t, h.feed.RemoveOneTopic("never"))
	h.sync()

	on, err := h.feed.HasTopic(context.Background(), "news")
	require.NoError(t, err)
	assert.False(t, on)

	changes := h.bus.Of(eventbus.EventTopicChanged)
	require.Len(t, changes, 3)
	last := changes[2].(eventbus.TopicChangedPayload)
	assert.Equal(t, "news", last.Topic)
	assert.False(t, last.Subscribed)
}

func TestFeed_QueryAfterStop(t *testing.T) {
	store := memgraph.New()
	bus := testbus.New(t)
	f := New(store, bus.EventBus, Options{Context: "bob"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Start(ctx)
		close(done)
	}()
	cancel()
	<-done

	_, err := f.Packages(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestFeed_LogPrefix(t *testing.T) {
	f := New(memgraph.New(), eventbus.New(1), Options{Context: "carol"})
	assert.Equal(t, "carol", f.Context())
	assert.Contains(t, f.LogPrefix(), "[f:carol]")
}
