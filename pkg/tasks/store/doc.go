// Package store persists task cache entries.
//
// Every backend offers the same operations over content-addressed entries.
// An atomic CreateIfAbsent decides which caller owns a new key. Put records
// state transitions and Get serves polling. Delete releases a key whose
// worker could not record an outcome, and Prune drops entries written by
// other software versions.
//
// Available backends:
//   - memory: process-local map, for tests and single-process development
//   - sqlite: a local database file (modernc.org/sqlite, no cgo)
//   - badger: an embedded key-value store
//   - redis: a shared Redis instance, create-if-absent via SETNX
//   - gcs: a Cloud Storage bucket, one <key>.json object per entry, with
//     create-if-absent via a DoesNotExist precondition
package store
