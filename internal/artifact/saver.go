package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/cachesync/internal/runlock"
	"github.com/roach88/cachesync/internal/store"
	"github.com/roach88/cachesync/internal/timer"
)

// ErrChecksumMismatch is returned by Restore when a stored body does not
// match its checksum.
var ErrChecksumMismatch = errors.New("artifact: snapshot checksum mismatch")

// Saver writes a Cache to the snapshot log. It implements persister.Saver.
//
// Successive persister instances of one artifact share a Saver, so saves
// are serialized here and the log never goes backwards in version.
type Saver struct {
	cache  *Cache
	store  *store.Store
	clock  timer.Clock
	keep   int
	logger *slog.Logger

	writes *runlock.Lock // serializes Save and Restore

	mu          sync.Mutex // guards the fields below
	lastSum     string
	lastVersion int64
	written     int
}

// SaverOption configures a Saver.
type SaverOption func(*Saver)

// WithKeep prunes the log to the newest n snapshots after every write.
// n <= 0 keeps everything.
func WithKeep(n int) SaverOption {
	return func(s *Saver) {
		s.keep = n
	}
}

// WithSaverClock sets the clock stamped into saved_at.
func WithSaverClock(c timer.Clock) SaverOption {
	return func(s *Saver) {
		s.clock = c
	}
}

// WithSaverLogger sets the logger. Default: slog.Default().
func WithSaverLogger(l *slog.Logger) SaverOption {
	return func(s *Saver) {
		s.logger = l
	}
}

// NewSaver creates a Saver for cache backed by st.
func NewSaver(cache *Cache, st *store.Store, opts ...SaverOption) *Saver {
	s := &Saver{
		cache:  cache,
		store:  st,
		clock:  timer.System{},
		logger: slog.Default(),
		writes: runlock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save encodes the current cache contents and appends them to the log.
// Contents identical to the last written snapshot are skipped.
func (s *Saver) Save(ctx context.Context) error {
	if err := s.writes.LockContext(ctx); err != nil {
		return err
	}
	defer s.writes.Unlock()

	contents := s.cache.Contents()
	body, err := Encode(contents.Entries)
	if err != nil {
		return err
	}
	sum := Checksum(body)
	s.mu.Lock()
	unchanged := sum == s.lastSum
	s.mu.Unlock()
	if unchanged {
		s.logger.Debug("snapshot unchanged",
			"artifact", s.cache.Name(),
			"version", contents.Version,
		)
		return nil
	}

	seq, err := s.store.WriteSnapshot(ctx, store.Snapshot{
		Artifact: s.cache.Name(),
		Version:  contents.Version,
		Checksum: sum,
		Entries:  len(contents.Entries),
		Body:     body,
		SavedAt:  s.clock.Now(),
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lastSum = sum
	s.lastVersion = contents.Version
	s.written++
	s.mu.Unlock()

	s.logger.Info("snapshot saved",
		"artifact", s.cache.Name(),
		"seq", seq,
		"version", contents.Version,
		"entries", len(contents.Entries),
	)

	if s.keep > 0 {
		pruned, err := s.store.Prune(ctx, s.cache.Name(), s.keep)
		if err != nil {
			// The snapshot is durable; a failed prune is retried on the next save.
			s.logger.Warn("prune failed", "artifact", s.cache.Name(), "error", err)
		} else if pruned > 0 {
			s.logger.Debug("snapshots pruned", "artifact", s.cache.Name(), "removed", pruned)
		}
	}

	return nil
}

// Restore loads the newest snapshot into the cache. It reports false when
// the artifact has never been saved.
func (s *Saver) Restore(ctx context.Context) (bool, error) {
	s.writes.Lock()
	defer s.writes.Unlock()

	snap, err := s.store.ReadLatest(ctx, s.cache.Name())
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if got := Checksum(snap.Body); got != snap.Checksum {
		return false, fmt.Errorf("restore %s seq %d: %w", s.cache.Name(), snap.Seq, ErrChecksumMismatch)
	}
	entries, err := Decode(snap.Body)
	if err != nil {
		return false, fmt.Errorf("restore %s seq %d: %w", s.cache.Name(), snap.Seq, err)
	}

	s.cache.Load(Contents{Version: snap.Version, Entries: entries})
	s.mu.Lock()
	s.lastSum = snap.Checksum
	s.lastVersion = snap.Version
	s.mu.Unlock()

	s.logger.Info("snapshot restored",
		"artifact", s.cache.Name(),
		"seq", snap.Seq,
		"version", snap.Version,
		"entries", len(entries),
	)
	return true, nil
}

// Written returns how many snapshots this Saver has appended.
func (s *Saver) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// LastVersion returns the cache version of the newest snapshot written or
// restored.
func (s *Saver) LastVersion() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastVersion
}
