// Package memstore provides an in-memory storage adapter.
//
// It backs both tiers in tests and single-process setups where
// durability is not required. Keys are sharded across lock-striped maps
// to keep contention low; values are copied on the way in and out so
// callers can never alias stored state.
package memstore
