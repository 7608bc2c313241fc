package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func testSnapshot(artifact string, version int64) Snapshot {
	return Snapshot{
		Artifact: artifact,
		Version:  version,
		Checksum: "sum-" + artifact,
		Entries:  int(version),
		Body:     []byte(`{"k":"v"}`),
		SavedAt:  time.Date(2024, 1, 1, 0, 0, int(version), 0, time.UTC),
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	_, path := openTestStore(t)

	_, err := os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s, _ := openTestStore(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
	} {
		got, err := s.pragma(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

func TestOpen_MigratesToLatestVersion(t *testing.T) {
	s, path := openTestStore(t)

	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)

	var idx string
	err = s.DB().QueryRow(`SELECT name FROM sqlite_master
		WHERE type = 'index' AND name = 'idx_snapshots_artifact_checksum'`).Scan(&idx)
	require.NoError(t, err)

	// Reopening an up-to-date file runs no migration.
	require.NoError(t, s.Close())
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	v, err = s2.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	assert.Error(t, err)
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}

func TestWriteSnapshot_AssignsIncreasingSeq(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	seq1, err := s.WriteSnapshot(ctx, testSnapshot("a", 1))
	require.NoError(t, err)
	seq2, err := s.WriteSnapshot(ctx, testSnapshot("b", 1))
	require.NoError(t, err)
	seq3, err := s.WriteSnapshot(ctx, testSnapshot("a", 2))
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3}, []int64{seq1, seq2, seq3})
}

func TestWriteSnapshot_RequiresArtifact(t *testing.T) {
	s, _ := openTestStore(t)

	_, err := s.WriteSnapshot(context.Background(), Snapshot{})
	assert.Error(t, err)
}

func TestWriteSnapshot_SeqResumesAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	_, err = s1.WriteSnapshot(ctx, testSnapshot("a", 1))
	require.NoError(t, err)
	_, err = s1.WriteSnapshot(ctx, testSnapshot("a", 2))
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	seq, err := s2.WriteSnapshot(ctx, testSnapshot("a", 3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), seq)
}

func TestReadLatest_ReturnsNewest(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	_, err := s.WriteSnapshot(ctx, testSnapshot("a", 1))
	require.NoError(t, err)
	want := testSnapshot("a", 2)
	want.Body = []byte(`{"k":"newer"}`)
	seq, err := s.WriteSnapshot(ctx, want)
	require.NoError(t, err)
	_, err = s.WriteSnapshot(ctx, testSnapshot("b", 7))
	require.NoError(t, err)

	got, err := s.ReadLatest(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, seq, got.Seq)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "sum-a", got.Checksum)
	assert.Equal(t, 2, got.Entries)
	assert.Equal(t, `{"k":"newer"}`, string(got.Body))
	assert.True(t, want.SavedAt.Equal(got.SavedAt))
}

func TestReadLatest_NotFound(t *testing.T) {
	s, _ := openTestStore(t)

	_, err := s.ReadLatest(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSnapshots_NewestFirstWithoutBody(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	for v := int64(1); v <= 3; v++ {
		_, err := s.WriteSnapshot(ctx, testSnapshot("a", v))
		require.NoError(t, err)
	}

	snaps, err := s.ListSnapshots(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, int64(3), snaps[0].Version)
	assert.Equal(t, int64(1), snaps[2].Version)
	for _, snap := range snaps {
		assert.Nil(t, snap.Body)
	}

	limited, err := s.ListSnapshots(ctx, "a", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestListSnapshots_EmptyNotNil(t *testing.T) {
	s, _ := openTestStore(t)

	snaps, err := s.ListSnapshots(context.Background(), "a", 0)
	require.NoError(t, err)
	assert.NotNil(t, snaps)
	assert.Empty(t, snaps)
}

func TestPrune_KeepsNewest(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	for v := int64(1); v <= 5; v++ {
		_, err := s.WriteSnapshot(ctx, testSnapshot("a", v))
		require.NoError(t, err)
	}
	_, err := s.WriteSnapshot(ctx, testSnapshot("b", 1))
	require.NoError(t, err)

	n, err := s.Prune(ctx, "a", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	snaps, err := s.ListSnapshots(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, int64(5), snaps[0].Version)
	assert.Equal(t, int64(4), snaps[1].Version)

	others, err := s.ListSnapshots(ctx, "b", 0)
	require.NoError(t, err)
	assert.Len(t, others, 1, "prune must not touch other artifacts")
}

func TestPrune_ZeroKeepDisabled(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	_, err := s.WriteSnapshot(ctx, testSnapshot("a", 1))
	require.NoError(t, err)

	n, err := s.Prune(ctx, "a", 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestArtifacts_SortedDistinct(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha", "zeta", "Beta"} {
		_, err := s.WriteSnapshot(ctx, testSnapshot(name, 1))
		require.NoError(t, err)
	}

	names, err := s.Artifacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Beta", "alpha", "zeta"}, names)
}

func TestClock_NextAndCurrent(t *testing.T) {
	c := NewClockAt(41)
	assert.Equal(t, int64(41), c.Current())
	assert.Equal(t, int64(42), c.Next())
	assert.Equal(t, int64(42), c.Current())
}
