package profile

import (
	"context"
	"testing"

	"github.com/colonyops/lxfeed/internal/core/graph"
	"github.com/colonyops/lxfeed/internal/core/pkgref"
	"github.com/colonyops/lxfeed/internal/data/memgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeed struct {
	added   []string
	removed []string
	topics  map[string]bool
}

func newFakeFeed() *fakeFeed { return &fakeFeed{topics: map[string]bool{}} }

func (f *fakeFeed) AddOnePackage(id string) error {
	if _, err := pkgref.Parse(id); err != nil {
		return err
	}
	f.added = append(f.added, id)
	return nil
}

func (f *fakeFeed) AddManyPackages(ids []string) error {
	for _, id := range ids {
		if err := f.AddOnePackage(id); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeFeed) RemoveOnePackage(id string) error {
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeFeed) AddOneTopic(name string) error {
	f.topics[name] = true
	return nil
}

func (f *fakeFeed) RemoveOneTopic(name string) error {
	f.topics[name] = false
	return nil
}

func newProfile(t *testing.T) (*Profile, *memgraph.Store, *fakeFeed) {
	t.Helper()
	store := memgraph.New()
	feed := newFakeFeed()
	p, err := New(store, feed, "ann")
	require.NoError(t, err)
	return p, store, feed
}

func TestNew(t *testing.T) {
	_, err := New(memgraph.New(), nil, " ")
	require.ErrorIs(t, err, ErrNoUser)

	_, err = New(memgraph.New(), nil, "a/b")
	require.Error(t, err)

	p, err := New(memgraph.New(), nil, "ann")
	require.NoError(t, err)
	assert.Equal(t, "usr/ann", p.Path())
	assert.Equal(t, "[u:ann]             ", p.LogPrefix())
}

func TestProfile_InstallAndList(t *testing.T) {
	ctx := context.Background()
	p, _, feed := newProfile(t)

	saved, err := p.Install(ctx, pkgref.MustParse("acme@1.0"))
	require.NoError(t, err)
	assert.True(t, saved)

	saved, err = p.Install(ctx, pkgref.MustParse("acme@1.0"))
	require.NoError(t, err)
	assert.False(t, saved, "already installed")

	_, err = p.Install(ctx, pkgref.MustParse("beta@2"))
	require.NoError(t, err)

	refs, err := p.ListPackages(ctx)
	require.NoError(t, err)
	assert.Equal(t, []pkgref.Ref{pkgref.MustParse("acme@1.0"), pkgref.MustParse("beta@2")}, refs)

	// the feed is asked to watch on every install, newly saved or not
	assert.Equal(t, []string{"acme@1.0", "acme@1.0", "beta@2"}, feed.added)
}

func TestProfile_InstallReplacesVersion(t *testing.T) {
	ctx := context.Background()
	p, _, feed := newProfile(t)

	_, err := p.Install(ctx, pkgref.MustParse("acme@1.0"))
	require.NoError(t, err)
	saved, err := p.Install(ctx, pkgref.MustParse("acme@2.0"))
	require.NoError(t, err)
	assert.True(t, saved)

	refs, err := p.ListPackages(ctx)
	require.NoError(t, err)
	assert.Equal(t, []pkgref.Ref{pkgref.MustParse("acme@2.0")}, refs)
	assert.Equal(t, []string{"acme@1.0"}, feed.removed)
}

func TestProfile_InstallRejectsZeroRef(t *testing.T) {
	p, _, _ := newProfile(t)
	_, err := p.Install(context.Background(), pkgref.Ref{})
	require.ErrorIs(t, err, pkgref.ErrInvalidIdentifier)
}

func TestProfile_ListPackagesNullifiesBadVersions(t *testing.T) {
	ctx := context.Background()
	p, store, _ := newProfile(t)
	require.NoError(t, store.Put(ctx, "usr/ann/packages", graph.Value{
		"acme": "1.0",
		"bad":  42,
		"gone": nil,
	}))

	refs, err := p.ListPackages(ctx)
	require.NoError(t, err)
	assert.Equal(t, []pkgref.Ref{pkgref.MustParse("acme@1.0")}, refs)

	v, err := store.Once(ctx, "usr/ann/packages")
	require.NoError(t, err)
	assert.Contains(t, v, "bad")
	assert.Nil(t, v["bad"])
}

func TestProfile_Uninstall(t *testing.T) {
	ctx := context.Background()
	p, _, feed := newProfile(t)

	_, err := p.Install(ctx, pkgref.MustParse("acme@1.0"))
	require.NoError(t, err)

	removed, err := p.Uninstall(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = p.Uninstall(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, removed)

	refs, err := p.ListPackages(ctx)
	require.NoError(t, err)
	assert.Empty(t, refs)
	assert.Equal(t, []string{"acme@1.0"}, feed.removed)
}

func TestProfile_Restore(t *testing.T) {
	ctx := context.Background()
	p, store, feed := newProfile(t)
	require.NoError(t, store.Put(ctx, "usr/ann/packages", graph.Value{"b": "2", "a": "1"}))

	refs, err := p.Restore(ctx)
	require.NoError(t, err)
	assert.Len(t, refs, 2)
	assert.Equal(t, []string{"a@1", "b@2"}, feed.added)
}

func TestProfile_Topics(t *testing.T) {
	ctx := context.Background()
	p, _, feed := newProfile(t)

	require.NoError(t, p.Subscribe(ctx, "weather"))
	require.NoError(t, p.Subscribe(ctx, "alerts"))
	require.NoError(t, p.Unsubscribe(ctx, "weather"))
	require.Error(t, p.Subscribe(ctx, ""))

	topics, err := p.ListTopics(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alerts"}, topics)
	assert.Equal(t, map[string]bool{"weather": false, "alerts": true}, feed.topics)
}

func TestProfile_Marker(t *testing.T) {
	ctx := context.Background()
	p, store, _ := newProfile(t)

	_, _, ok, err := p.Marker(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.SetMarker(ctx, "m1", graph.Value{"g": "9q8y", "o": 1, "t": 100}))

	id, record, ok, err := p.Marker(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "m1", id)
	assert.Equal(t, "9q8y", record["g"])

	require.NoError(t, p.ClearMarker(ctx))

	_, _, ok, err = p.Marker(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := store.Once(ctx, "itm/m1")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestProfile_MarkerClearsInvalidFormat(t *testing.T) {
	ctx := context.Background()
	p, store, _ := newProfile(t)
	require.NoError(t, store.Put(ctx, "usr/ann", graph.Value{"marker": 12}))

	_, _, ok, err := p.Marker(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := store.Once(ctx, "usr/ann")
	require.NoError(t, err)
	assert.Nil(t, v["marker"])
}

func TestProfile_StoreUnavailable(t *testing.T) {
	ctx := context.Background()
	p, store, _ := newProfile(t)
	store.SetUnavailable(true)

	_, err := p.ListPackages(ctx)
	require.ErrorIs(t, err, graph.ErrUnavailable)

	_, err = p.Install(ctx, pkgref.MustParse("acme@1.0"))
	require.ErrorIs(t, err, graph.ErrUnavailable)
}
