// Package storage persists the alert set across process restarts.
//
// It currently supports:
//   - SQLite database file (default)
//   - dependency-free JSON-lines file backend (snapshot + journal)
//
// Persistence is optional: without it the engine runs memory-only.
package storage
