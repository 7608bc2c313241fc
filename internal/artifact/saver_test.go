package artifact

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cachesync/internal/persister"
	"github.com/roach88/cachesync/internal/runner"
	"github.com/roach88/cachesync/internal/store"
	"github.com/roach88/cachesync/internal/testutil"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSaver_WritesSnapshot(t *testing.T) {
	st := openStore(t)
	clock := testutil.NewFakeClock()
	c := NewCache("users")
	s := NewSaver(c, st, WithSaverClock(clock))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "1"))
	require.NoError(t, c.Set(ctx, "b", "2"))
	require.NoError(t, s.Save(ctx))

	snap, err := st.ReadLatest(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)
	assert.Equal(t, 2, snap.Entries)
	assert.Equal(t, `{"a":"1","b":"2"}`, string(snap.Body))
	assert.Equal(t, Checksum(snap.Body), snap.Checksum)
	assert.True(t, testutil.Epoch.Equal(snap.SavedAt))
	assert.Equal(t, 1, s.Written())
	assert.Equal(t, int64(2), s.LastVersion())
}

func TestSaver_SkipsUnchangedContents(t *testing.T) {
	st := openStore(t)
	c := NewCache("k")
	s := NewSaver(c, st)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "1"))
	require.NoError(t, s.Save(ctx))
	require.NoError(t, s.Save(ctx))

	// A set that restores the same contents bumps the version but not the body.
	require.NoError(t, c.Set(ctx, "a", "1"))
	require.NoError(t, s.Save(ctx))

	snaps, err := st.ListSnapshots(ctx, "k", 0)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
	assert.Equal(t, 1, s.Written())
}

func TestSaver_SaveWaitsForInFlightWrite(t *testing.T) {
	st := openStore(t)
	c := NewCache("k")
	s := NewSaver(c, st)
	require.NoError(t, c.Set(context.Background(), "a", "1"))

	s.writes.Lock()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Save(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, s.Written())

	s.writes.Unlock()
	require.NoError(t, s.Save(context.Background()))
	assert.Equal(t, 1, s.Written())
}

func TestSaver_PrunesToKeep(t *testing.T) {
	st := openStore(t)
	c := NewCache("k")
	s := NewSaver(c, st, WithKeep(2))
	ctx := context.Background()

	for i, v := range []string{"1", "2", "3", "4"} {
		require.NoError(t, c.Set(ctx, "a", v), "set %d", i)
		require.NoError(t, s.Save(ctx))
	}

	snaps, err := st.ListSnapshots(ctx, "k", 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, int64(4), snaps[0].Version)
	assert.Equal(t, int64(3), snaps[1].Version)
}

func TestSaver_Restore(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	orig := NewCache("k")
	require.NoError(t, orig.Set(ctx, "a", "1"))
	require.NoError(t, orig.Set(ctx, "b", "<2>"))
	require.NoError(t, NewSaver(orig, st).Save(ctx))

	restored := NewCache("k")
	s := NewSaver(restored, st)
	ok, err := s.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, orig.Contents(), restored.Contents())

	// Restored contents count as already saved.
	require.NoError(t, s.Save(ctx))
	assert.Zero(t, s.Written())
}

func TestSaver_RestoreNothingSaved(t *testing.T) {
	st := openStore(t)
	c := NewCache("k")

	ok, err := NewSaver(c, st).Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestSaver_RestoreChecksumMismatch(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	c := NewCache("k")
	require.NoError(t, c.Set(ctx, "a", "1"))
	require.NoError(t, NewSaver(c, st).Save(ctx))

	_, err := st.DB().Exec(`UPDATE snapshots SET body = ? WHERE artifact = ?`, []byte(`{"a":"forged"}`), "k")
	require.NoError(t, err)

	fresh := NewCache("k")
	ok, err := NewSaver(fresh, st).Restore(ctx)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assert.False(t, ok)
	assert.Zero(t, fresh.Len())
}

func TestSaver_DebouncedThroughRunner(t *testing.T) {
	st := openStore(t)
	clock := testutil.NewFakeClock()
	r := runner.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	c := NewCache("k")
	s := NewSaver(c, st, WithSaverClock(clock))
	c.Attach(persister.NewCell(persister.New(r, s, persister.WithClock(clock))))

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Set(ctx, "a", string(rune('a'+i))))
		clock.Advance(time.Second)
	}
	assert.Zero(t, s.Written(), "burst is still debouncing")

	clock.Advance(persister.DefaultWait)
	require.Eventually(t, func() bool { return s.Written() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.Set(ctx, "b", "x"))
	require.NoError(t, r.Shutdown(context.Background()))
	assert.Equal(t, 2, s.Written(), "pending change flushed at shutdown")

	snap, err := st.ReadLatest(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, int64(6), snap.Version)
	assert.Equal(t, `{"a":"e","b":"x"}`, string(snap.Body))
}
