package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ReadLatest returns the newest snapshot of an artifact, body included.
// Returns ErrNotFound if the artifact has never been saved.
func (s *Store) ReadLatest(ctx context.Context, artifact string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, artifact, version, checksum, entries, body, saved_at
		FROM snapshots
		WHERE artifact = ?
		ORDER BY seq DESC
		LIMIT 1
	`, artifact)

	var snap Snapshot
	var savedAt int64
	err := row.Scan(&snap.Seq, &snap.Artifact, &snap.Version, &snap.Checksum, &snap.Entries, &snap.Body, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("read latest %s: %w", artifact, ErrNotFound)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read latest %s: %w", artifact, err)
	}
	snap.SavedAt = time.UnixMilli(savedAt).UTC()
	return snap, nil
}

// ListSnapshots returns snapshot metadata for an artifact, newest first.
// Bodies are not loaded. limit <= 0 returns every row.
//
// Returns an empty slice (not nil) if nothing has been saved.
func (s *Store) ListSnapshots(ctx context.Context, artifact string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT means no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, artifact, version, checksum, entries, saved_at
		FROM snapshots
		WHERE artifact = ?
		ORDER BY seq DESC
		LIMIT ?
	`, artifact, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []Snapshot{}
	for rows.Next() {
		var snap Snapshot
		var savedAt int64
		if err := rows.Scan(&snap.Seq, &snap.Artifact, &snap.Version, &snap.Checksum, &snap.Entries, &savedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.SavedAt = time.UnixMilli(savedAt).UTC()
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snaps, nil
}

// Artifacts returns the names of all saved artifacts in binary order.
func (s *Store) Artifacts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT artifact FROM snapshots
		ORDER BY artifact COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return names, nil
}
