package sqlgraph

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Run streams writes made by other processes until ctx is cancelled. Changes
// to the database file or its WAL trigger a debounced sync, and a poll ticker
// covers filesystems that deliver no events.
func (s *Store) Run(ctx context.Context) error {
	dir := filepath.Dir(s.db.Path())
	base := filepath.Base(s.db.Path())

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Warn().Err(err).Msg("file watcher unavailable, falling back to polling")
		return s.poll(ctx)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		s.log.Warn().Err(err).Str("dir", dir).Msg("cannot watch data dir, falling back to polling")
		return s.poll(ctx)
	}

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	var (
		debounce *time.Timer
		fire     <-chan time.Time
	)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return s.poll(ctx)
			}
			if !isDatabaseEvent(event, base) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(s.opts.Debounce)
			} else {
				debounce.Reset(s.opts.Debounce)
			}
			fire = debounce.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return s.poll(ctx)
			}
			s.log.Warn().Err(err).Msg("file watcher error")
		case <-fire:
			fire = nil
			s.syncLogged(ctx)
		case <-ticker.C:
			s.syncLogged(ctx)
		}
	}
}

func (s *Store) poll(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.syncLogged(ctx)
		}
	}
}

func (s *Store) syncLogged(ctx context.Context) {
	if err := s.Sync(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn().Err(err).Msg("sync failed")
	}
}

// isDatabaseEvent reports whether event touches the database file or one of
// its sidecar files.
func isDatabaseEvent(event fsnotify.Event, base string) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(event.Name)
	return name == base || strings.HasPrefix(name, base+"-")
}
