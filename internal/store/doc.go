// Package store provides SQLite-backed durable storage for artifact
// snapshots.
//
// Every save appends one row to the snapshots table. Rows are ordered by
// seq, a logical clock that resumes from the highest stored value when the
// database is reopened. saved_at is informational only.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Single open connection: one writer, seq assigned in commit order
package store
