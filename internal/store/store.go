package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when no snapshot matches a read.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is one stored save of an artifact.
type Snapshot struct {
	Seq      int64     // assigned by WriteSnapshot
	Artifact string    // artifact name
	Version  int64     // content version at save time
	Checksum string    // content checksum of Body
	Entries  int       // number of entries encoded in Body
	Body     []byte    // encoded content; nil in listings
	SavedAt  time.Time // informational, millisecond precision
}

// Store is the snapshot log of one database file.
//
// Thread-safety: safe for concurrent use. The pool holds a single
// connection, so writes are serialized by database/sql.
type Store struct {
	db    *sql.DB
	clock *Clock
}

// connPragmas configure the single pooled connection. Each value is what
// the pragma reads back as once applied.
var connPragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
}

// migrations upgrade the schema one user_version at a time. Entry i moves
// a database from version i to i+1.
var migrations = []func(*sql.Tx) error{
	// 1: lookup of a snapshot by content checksum.
	func(tx *sql.Tx) error {
		_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_snapshots_artifact_checksum
			ON snapshots(artifact, checksum)`)
		return err
	},
}

// Open opens or creates the snapshot database at path, configures it, and
// brings its schema up to date. Opening an existing file is safe; the seq
// clock resumes after the newest stored snapshot.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	last, err := prepare(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare snapshot database %s: %w", path, err)
	}
	return &Store{db: db, clock: NewClockAt(last)}, nil
}

// prepare applies pragmas, schema and migrations, and returns the highest
// stored seq.
func prepare(db *sql.DB) (int64, error) {
	for _, p := range connPragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return 0, fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return 0, fmt.Errorf("schema: %w", err)
	}
	if err := migrate(db); err != nil {
		return 0, err
	}

	var last sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(seq) FROM snapshots`).Scan(&last); err != nil {
		return 0, fmt.Errorf("read last seq: %w", err)
	}
	return last.Int64, nil
}

// migrate runs every migration newer than the stored user_version, each in
// its own transaction together with the version bump.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	for v := version; v < len(migrations); v++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		if err := migrations[v](tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: set user_version: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", v+1, err)
		}
	}
	return nil
}

// SchemaVersion returns the applied schema version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle for tests and maintenance queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// pragma reads back the current value of a pragma.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("pragma %s: %w", name, err)
	}
	return value, nil
}
