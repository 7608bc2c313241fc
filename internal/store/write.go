package store

import (
	"context"
	"fmt"
	"time"
)

// WriteSnapshot appends a snapshot and returns the seq assigned to it.
// The Seq field of snap is ignored. A zero SavedAt is stored as the current
// wall time.
func (s *Store) WriteSnapshot(ctx context.Context, snap Snapshot) (int64, error) {
	if snap.Artifact == "" {
		return 0, fmt.Errorf("write snapshot: artifact name is required")
	}
	if snap.Body == nil {
		snap.Body = []byte{}
	}
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	seq := s.clock.Next()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots
		(seq, artifact, version, checksum, entries, body, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		seq,
		snap.Artifact,
		snap.Version,
		snap.Checksum,
		snap.Entries,
		snap.Body,
		savedAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("write snapshot: %w", err)
	}

	return seq, nil
}

// Prune deletes all but the newest keep snapshots of an artifact and
// reports how many rows were removed. keep <= 0 disables pruning.
func (s *Store) Prune(ctx context.Context, artifact string, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE artifact = ?
		  AND seq NOT IN (
			SELECT seq FROM snapshots
			WHERE artifact = ?
			ORDER BY seq DESC
			LIMIT ?
		  )
	`, artifact, artifact, keep)
	if err != nil {
		return 0, fmt.Errorf("prune %s: %w", artifact, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune %s: %w", artifact, err)
	}
	return n, nil
}
