// Package memstore provides an in-memory storage adapter.
package memstore

import (
	"context"
	"strings"

	"github.com/tabvault/tabvault-go/internal/storage"
	"github.com/tabvault/tabvault-go/pkg/cmap"
)

// Store is an in-memory storage.Adapter over a sharded concurrent map.
// Values are copied on the way in and out, so callers can never alias
// stored bytes.
type Store struct {
	m *cmap.Map[string, []byte]
}

// New creates a Store with the default shard count.
func New() *Store {
	return NewWithShards(cmap.DefaultShardCount)
}

// NewWithShards creates a Store with the specified shard count.
// shardCount must be a power of 2; anything else falls back to the
// default.
func NewWithShards(shardCount int) *Store {
	return &Store{m: cmap.NewWithShards[string, []byte](shardCount)}
}

// Get implements storage.Adapter.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	value, ok := s.m.Get(key)
	if !ok {
		return nil, storage.ErrKeyNotFound
	}

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set implements storage.Adapter.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	s.m.Set(key, stored)
	return nil
}

// Remove implements storage.Adapter. Removing an absent key succeeds.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.m.Delete(key)
	return nil
}

// Scan implements storage.ManagedAdapter. Iteration order is
// unspecified; the callback returns false to stop. Values handed to the
// callback are copies.
func (s *Store) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var ctxErr error
	s.m.Range(func(key string, value []byte) bool {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			return false
		}
		if !strings.HasPrefix(key, prefix) {
			return true
		}
		out := make([]byte, len(value))
		copy(out, value)
		return fn(key, out)
	})
	return ctxErr
}

// Stats implements storage.ManagedAdapter.
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &storage.Stats{}
	s.m.Range(func(key string, value []byte) bool {
		stats.TotalKeys++
		stats.TotalSize += uint64(len(key) + len(value))
		return true
	})
	return stats, nil
}

// Close implements storage.ManagedAdapter. It drops all data.
func (s *Store) Close() error {
	s.m.Clear()
	return nil
}
