// Package storage persists users, schedules and the run journal in SQLite,
// and the per-user gateway session blobs in a JSON file.
//
// Writes go through Store.Exec with a Command; each command runs in its own
// transaction on a single connection, so writers never interleave.
package storage
