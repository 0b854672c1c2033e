// Package store records host runs in SQLite.
//
// Three tables:
//   - runs: one row per host run, keyed by its UUIDv7 run id
//   - dispatch_trace: the order tasks finished in, per scheduler tick
//   - saves: save slots holding the CBOR documents Host.Save produces
//
// Trace rows are ordered by (frame, scheduler, tick, seq). Recording the
// same tick twice is a no-op, so a Recorder can be attached to any tick
// hook without deduplication.
//
// # Database Configuration
//
// Set on every connection through the driver DSN:
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
