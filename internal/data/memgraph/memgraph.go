// Package memgraph is an in-memory graph store. Listeners are invoked
// synchronously from the call that caused them, which makes it a
// deterministic backend for tests and one-shot CLI runs.
package memgraph

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/colonyops/lxfeed/internal/core/graph"
)

// Store implements graph.Adapter in memory.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]graph.Value
	hub   *graph.Hub

	unavailable atomic.Bool

	callsMu   sync.Mutex
	onceCalls map[string]int
}

var _ graph.Adapter = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	s := &Store{
		nodes:     map[string]graph.Value{},
		onceCalls: map[string]int{},
	}
	s.hub = graph.NewHub(s.get)
	return s
}

func (s *Store) get(path string) graph.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[path]
}

// Once returns a copy of the current value of path.
func (s *Store) Once(ctx context.Context, path string) (graph.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.callsMu.Lock()
	s.onceCalls[path]++
	s.callsMu.Unlock()

	if s.unavailable.Load() {
		return nil, fmt.Errorf("once %q: %w", path, graph.ErrUnavailable)
	}

	return maps.Clone(s.get(path)), nil
}

// On implements graph.Adapter.
func (s *Store) On(path string, fn graph.Listener) {
	s.hub.On(path, fn)
}

// Children implements graph.Adapter.
func (s *Store) Children(path string, opts graph.ChildOptions, fn graph.Listener) {
	s.hub.Children(path, opts, fn)
}

// Put merges v into path and notifies listeners before returning.
func (s *Store) Put(ctx context.Context, path string, v graph.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.unavailable.Load() {
		return fmt.Errorf("put %q: %w", path, graph.ErrUnavailable)
	}

	s.mu.Lock()
	transitions, err := graph.Plan(func(p string) graph.Value { return s.nodes[p] }, path, v)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("put %q: %w", path, err)
	}
	for _, t := range transitions {
		s.nodes[t.Path] = t.New
	}
	s.mu.Unlock()

	s.hub.Notify(transitions)
	return nil
}

// List returns the child nodes of path that were ever written, with their
// current values. Tombstoned children are included with a nil value.
func (s *Store) List(ctx context.Context, path string) (map[string]graph.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.unavailable.Load() {
		return nil, fmt.Errorf("list %q: %w", path, graph.ErrUnavailable)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]graph.Value{}
	for p, v := range s.nodes {
		if parent, key, ok := graph.Parent(p); ok && parent == path {
			out[key] = maps.Clone(v)
		}
	}
	return out, nil
}

// SetUnavailable makes reads and writes fail with graph.ErrUnavailable.
func (s *Store) SetUnavailable(v bool) {
	s.unavailable.Store(v)
}

// OnceCalls returns how many one-shot reads were issued for path.
func (s *Store) OnceCalls(path string) int {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	return s.onceCalls[path]
}

// Subscriptions returns the number of On and Children listeners on path.
func (s *Store) Subscriptions(path string) (on, children int) {
	return s.hub.Subscriptions(path)
}

// Paths returns every node path ever written, including tombstones.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.nodes))
	for p := range s.nodes {
		out = append(out, p)
	}
	return out
}
