// Package store provides SQLite-backed run history for cosimkit.
//
// Each simulation run is recorded twice: once when it starts (status
// "running") and once when it ends, together with the result files it
// produced. The history is informational; a run never fails because its
// history could not be written.
//
// # Tables
//
//   - runs: one row per run (id, kind, work dir, duration, status, error)
//   - result_files: one row per component table loaded after a run
//
// # Ordering
//
// ListRuns returns newest first: ORDER BY started_at DESC, id DESC.
// Timestamps are stored as RFC 3339 text in UTC so they sort lexically.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: result files are deleted with their run
package store
