// Package storage is cpbot's durable key-value layer.
//
// Keys live in one of two scopes:
//   - settings: small, low-volume user settings
//   - local: larger state (problems, contests, armed triggers, bindings)
//
// Drivers:
//   - "memory": process-local map, used by tests and dry runs
//   - "file": snapshot + append-only JSON Lines journal
//   - "sqlite": single-file SQLite database (modernc.org/sqlite, no cgo)
//   - "gcs": one object per key in a Google Cloud Storage bucket
package storage
