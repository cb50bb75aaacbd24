// Package sensor provides step odometer sources.
//
// A Source emits tracker.Reading values carrying a cumulative step count
// since a source-chosen reference point. The reconciliation core does not
// care which variant produced a reading; the variant is selected once, at
// composition time, by New.
//
// Variants:
//   - OdometerSource: reads a counter file exposed by the motion driver and
//     re-reads it on every fsnotify write
//   - HealthSource: polls a HealthQuery on an interval
//   - ManualSource: fed in-process by Push (HTTP ingest, tests)
//
// Every Stop is idempotent and safe on a source that was never started.
// Start on a running source restarts it.
package sensor
