// Package storage keeps an optional append-only audit trail of membership
// changes (listener and ignore toggles).
//
// Drivers:
//   - "file": JSON lines appended to <prefix>.audit.jsonl
//   - "sqlite": a SQLite database (modernc.org/sqlite, no cgo)
package storage
