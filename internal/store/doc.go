// Package store provides SQLite-backed durable storage for the step tracker.
//
// The store is a passive key-value medium with:
//   - kv: one row per key, holding either an integer or a string
//   - daily_totals: an optional per-day mirror of the step total
//
// # Critical Patterns
//
// CP-1: Atomic Batches
//   - SetMany writes every value in one transaction or none
//   - The reconciliation record (day, steps, sensor value) is always one batch
//
// CP-2: No Write-Behind
//   - synchronous=FULL: a returned write is on disk
//   - A crash can lose at most the batch in flight
//
// CP-3: Absent Is Not An Error
//   - Missing keys report found=false with a nil error
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=FULL: Durable commits
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Memory implements the same contract in-process for tests.
package store
