package memgraph

import (
	"context"
	"testing"

	"github.com/colonyops/lxfeed/internal/core/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutAndOnce(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Put(ctx, "pkg/acme/data/1.0/itm42", graph.Value{"a": 1}))

	v, err := s.Once(ctx, "pkg/acme/data/1.0/itm42")
	require.NoError(t, err)
	assert.Equal(t, graph.Value{"a": 1}, v)

	v, err = s.Once(ctx, "pkg/acme/data/1.0")
	require.NoError(t, err)
	assert.Equal(t, graph.Link{Path: "pkg/acme/data/1.0/itm42"}, v["itm42"])

	v, err = s.Once(ctx, "pkg/missing")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, 1, s.OnceCalls("pkg/missing"))
}

func TestStore_OnceReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Put(ctx, "usr/ann", graph.Value{"a": 1}))

	v, err := s.Once(ctx, "usr/ann")
	require.NoError(t, err)
	v["a"] = 2

	v, err = s.Once(ctx, "usr/ann")
	require.NoError(t, err)
	assert.Equal(t, 1, v["a"])
}

func TestStore_ListenersFireSynchronously(t *testing.T) {
	ctx := context.Background()
	s := New()

	var values []any
	s.On("itm/a", func(v any, _ string) { values = append(values, v) })

	require.NoError(t, s.Put(ctx, "itm/a", graph.Value{"x": 1}))
	require.NoError(t, s.Put(ctx, "itm/a", nil))

	require.Len(t, values, 2)
	assert.Equal(t, graph.Value{"x": 1}, values[0])
	assert.Nil(t, values[1])

	on, children := s.Subscriptions("itm/a")
	assert.Equal(t, 1, on)
	assert.Equal(t, 0, children)
}

func TestStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.SetUnavailable(true)

	_, err := s.Once(ctx, "pkg/acme/data/1.0")
	assert.ErrorIs(t, err, graph.ErrUnavailable)
	assert.ErrorIs(t, s.Put(ctx, "usr/ann", graph.Value{"a": 1}), graph.ErrUnavailable)

	s.SetUnavailable(false)
	_, err = s.Once(ctx, "pkg/acme/data/1.0")
	assert.NoError(t, err)
}

func TestStore_PutRejectsInvalidPath(t *testing.T) {
	assert.Error(t, New().Put(context.Background(), "a//b", graph.Value{"x": 1}))
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Put(ctx, "pkg/acme/data/1.0", graph.Value{
		"itm1": graph.Value{"g": "a"},
		"itm2": graph.Value{"g": "b"},
	}))
	require.NoError(t, s.Put(ctx, "pkg/acme/data/1.0/itm2", nil))

	children, err := s.List(ctx, "pkg/acme/data/1.0")
	require.NoError(t, err)
	assert.Equal(t, map[string]graph.Value{
		"itm1": {"g": "a"},
		"itm2": nil,
	}, children)
}
