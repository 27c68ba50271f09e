// Package badgerstore provides a Badger-backed storage adapter.
//
// It serves the blob tier: dataset payloads and chunks land in Badger's
// value log, which a background loop garbage-collects on an interval.
// An optional AEAD cipher seals values at rest, with the storage key as
// additional data so ciphertext cannot be replayed under another key.
package badgerstore
