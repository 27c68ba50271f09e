// Package storage provides the key-value storage abstractions TabVault
// persists through.
package storage

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Get when a key does not exist.
// Adapters must return it (possibly wrapped) rather than a nil value or
// a panic; the engine distinguishes absence from failure with errors.Is.
var ErrKeyNotFound = errors.New("storage: key not found")

// Adapter is the engine-facing storage contract. TabVault runs over a
// pair of them: a small metadata tier (session records, index, active
// pointer) and a large blob tier (payloads and chunks).
//
// Implementations must be safe for concurrent use. Remove of a missing
// key is a no-op, not an error.
type Adapter interface {
	// Get retrieves a value. Returns ErrKeyNotFound if the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value, overwriting any previous one.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes a key. Removing an absent key succeeds.
	Remove(ctx context.Context, key string) error
}

// ManagedAdapter extends Adapter with the lifecycle and introspection
// surface the shipped backends provide. The engine itself never needs
// more than Adapter; servers and tooling do.
type ManagedAdapter interface {
	Adapter

	// Scan iterates keys with the given prefix in unspecified order.
	// The callback returns false to stop iteration.
	Scan(ctx context.Context, prefix string, fn func(key string, value []byte) bool) error

	// Stats returns backend statistics.
	Stats(ctx context.Context) (*Stats, error)

	// Close gracefully shuts down the backend.
	Close() error
}

// Stats contains storage backend statistics.
type Stats struct {
	// TotalKeys is the approximate number of keys.
	TotalKeys uint64 `json:"total_keys"`

	// TotalSize is the total usage in bytes.
	TotalSize uint64 `json:"total_size"`

	// LSMSize is the LSM tree size (Badger).
	LSMSize uint64 `json:"lsm_size,omitempty"`

	// ValueLogSize is the value log size (Badger).
	ValueLogSize uint64 `json:"value_log_size,omitempty"`

	// LastGCTime is the last GC run timestamp (Unix milliseconds).
	LastGCTime int64 `json:"last_gc_time,omitempty"`

	// GCBytesReclaimed is the total bytes reclaimed by GC.
	GCBytesReclaimed uint64 `json:"gc_bytes_reclaimed,omitempty"`
}
