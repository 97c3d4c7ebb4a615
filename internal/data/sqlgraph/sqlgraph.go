// Package sqlgraph is a graph store persisted in SQLite. Every write bumps a
// global sequence, and a sync step turns rows written since the last sync into
// node transitions for listeners. Writes made by other processes sharing the
// database file are picked up by a file watcher with a polling fallback.
package sqlgraph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/colonyops/lxfeed/internal/core/graph"
	"github.com/colonyops/lxfeed/internal/core/logging"
	"github.com/colonyops/lxfeed/internal/data/db"
	"github.com/rs/zerolog"
)

// Options configures change streaming.
type Options struct {
	// PollInterval is how often the database is checked for writes made by
	// other processes when no file event arrived.
	PollInterval time.Duration
	// Debounce coalesces bursts of file events into one sync.
	Debounce time.Duration
}

// DefaultOptions returns the streaming settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		PollInterval: 2 * time.Second,
		Debounce:     50 * time.Millisecond,
	}
}

// Store implements graph.Adapter over a SQLite database.
type Store struct {
	db   *db.DB
	opts Options
	hub  *graph.Hub
	log  zerolog.Logger

	mu     sync.RWMutex
	cache  map[string]graph.Value
	cursor int64

	syncMu sync.Mutex
}

var _ graph.Adapter = (*Store)(nil)

// Open opens the database at path and loads its nodes.
func Open(ctx context.Context, path string, dbOpts db.OpenOptions, opts Options) (*Store, error) {
	database, err := db.Open(path, dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w: %w", graph.ErrUnavailable, err)
	}

	s, err := New(ctx, database, opts)
	if err != nil {
		_ = database.Close()
		return nil, err
	}
	return s, nil
}

// New builds a store over an open database and loads its nodes.
func New(ctx context.Context, database *db.DB, opts Options) (*Store, error) {
	defaults := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.Debounce < 0 {
		opts.Debounce = defaults.Debounce
	}

	s := &Store{
		db:    database,
		opts:  opts,
		log:   logging.Component("sqlgraph"),
		cache: map[string]graph.Value{},
	}
	s.hub = graph.NewHub(s.cached)

	// nothing is subscribed yet, so the initial load notifies nobody
	if err := s.Sync(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path()
}

func (s *Store) cached(path string) graph.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[path]
}

// Once reads the committed value of path from the database.
func (s *Store) Once(ctx context.Context, path string) (graph.Value, error) {
	n, err := s.db.Queries().GetNode(ctx, path)
	if db.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("once", path, err)
	}
	return decode(n)
}

// On implements graph.Adapter.
func (s *Store) On(path string, fn graph.Listener) {
	s.hub.On(path, fn)
}

// Children implements graph.Adapter.
func (s *Store) Children(path string, opts graph.ChildOptions, fn graph.Listener) {
	s.hub.Children(path, opts, fn)
}

// Put merges v into path in one transaction and delivers the resulting
// transitions before returning.
func (s *Store) Put(ctx context.Context, path string, v graph.Value) error {
	var planErr error
	err := s.db.WithTx(ctx, func(q *db.Queries) error {
		var readErr error
		get := func(p string) graph.Value {
			n, err := q.GetNode(ctx, p)
			if db.IsNotFoundError(err) {
				return nil
			}
			if err != nil {
				if readErr == nil {
					readErr = err
				}
				return nil
			}
			val, err := decode(n)
			if err != nil && readErr == nil {
				readErr = err
			}
			return val
		}

		transitions, err := graph.Plan(get, path, v)
		if err != nil {
			planErr = fmt.Errorf("put %q: %w", path, err)
			return planErr
		}
		if readErr != nil {
			return unavailable("put", path, readErr)
		}
		if len(transitions) == 0 {
			return nil
		}

		last, err := q.ReserveSeq(ctx, int64(len(transitions)))
		if err != nil {
			return unavailable("put", path, err)
		}
		first := last - int64(len(transitions)) + 1

		for i, t := range transitions {
			value, err := encode(t.New)
			if err != nil {
				planErr = fmt.Errorf("put %q: %w", path, err)
				return planErr
			}
			parent, _, _ := graph.Parent(t.Path)
			if err := q.UpsertNode(ctx, db.UpsertNodeParams{
				Path:   t.Path,
				Parent: parent,
				Value:  value,
				Seq:    first + int64(i),
			}); err != nil {
				return unavailable("put", t.Path, err)
			}
		}
		return nil
	})
	switch {
	case err == nil:
	case planErr != nil, errors.Is(err, graph.ErrUnavailable):
		return err
	default:
		return unavailable("put", path, err)
	}

	return s.Sync(ctx)
}

// List returns the stored child nodes of path with their values. Tombstoned
// children are included with a nil value.
func (s *Store) List(ctx context.Context, path string) (map[string]graph.Value, error) {
	rows, err := s.db.Queries().ListChildren(ctx, path)
	if err != nil {
		return nil, unavailable("list", path, err)
	}

	out := make(map[string]graph.Value, len(rows))
	for _, n := range rows {
		v, err := decode(n)
		if err != nil {
			return nil, err
		}
		out[graph.Key(n.Path)] = v
	}
	return out, nil
}

// Sync loads the rows written since the last sync, updates the cache and
// notifies listeners in write order. Listeners run on the syncing goroutine
// and must not write to the store synchronously.
func (s *Store) Sync(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.mu.RLock()
	cursor := s.cursor
	s.mu.RUnlock()

	rows, err := s.db.Queries().ListNodesSince(ctx, cursor)
	if err != nil {
		return unavailable("sync", "", err)
	}
	if len(rows) == 0 {
		return nil
	}

	transitions := make([]graph.Transition, 0, len(rows))
	s.mu.Lock()
	for _, n := range rows {
		v, err := decode(n)
		if err != nil {
			s.log.Warn().Err(err).Str("path", n.Path).Msg("skipping undecodable node")
			s.cursor = n.Seq
			continue
		}
		old := s.cache[n.Path]
		if v == nil {
			delete(s.cache, n.Path)
		} else {
			s.cache[n.Path] = v
		}
		s.cursor = n.Seq
		if !graph.Equal(old, v) {
			transitions = append(transitions, graph.Transition{Path: n.Path, Old: old, New: v})
		}
	}
	s.mu.Unlock()

	s.log.Debug().Int("rows", len(rows)).Int("transitions", len(transitions)).Msg("synced")
	s.hub.Notify(transitions)
	return nil
}

// Cursor returns the sequence number of the last synced write.
func (s *Store) Cursor() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

func decode(n db.Node) (graph.Value, error) {
	if !n.Value.Valid {
		return nil, nil
	}
	v, err := graph.Decode([]byte(n.Value.String))
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", n.Path, err)
	}
	return v, nil
}

func encode(v graph.Value) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := graph.Encode(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unavailable(op, path string, err error) error {
	if path == "" {
		return fmt.Errorf("%s: %w: %w", op, graph.ErrUnavailable, err)
	}
	return fmt.Errorf("%s %q: %w: %w", op, path, graph.ErrUnavailable, err)
}
