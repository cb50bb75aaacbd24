// Package tracker implements the step reconciliation core.
//
// The tracker converts raw odometer readings (cumulative steps since a
// source-chosen reference point) into a day-scoped cumulative total that
// survives process restarts, sensor resets and device reboots.
//
// # State
//
// A single Record is persisted through a KV store under three keys:
//   - steps_date: the local calendar day the total belongs to
//   - cumulative_steps: steps attributed to that day so far
//   - last_sensor_count: the most recent raw odometer reading
//
// # Reconciliation Rules
//
// R-1: Day Rollover
//   - When the stored day is not today, the total resets to 0
//   - The last sensor value is kept; the hardware odometer does not reset at midnight
//
// R-2: Reset Detection
//   - A reading below the last sensor value means the source lost its state
//   - The whole new reading counts as fresh progress
//
// R-3: Anomaly Filter
//   - A delta above MaxDelta is discarded (delta = 0)
//   - The reading still becomes the new last sensor value
//
// R-4: Synchronous Persistence
//   - The triple is written in one KV batch on every reading, even when delta is 0
//
// Storage read failures are logged and treated as "no record". The tracker
// never panics on bad input or bad storage.
package tracker
