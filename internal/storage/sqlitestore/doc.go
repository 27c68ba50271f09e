// Package sqlitestore provides a SQLite-backed storage adapter.
//
// It serves the metadata tier: session records, the MRU index and the
// active-session pointer live in a single key/value table. The database
// runs in WAL mode so readers are not blocked by the writer.
package sqlitestore
