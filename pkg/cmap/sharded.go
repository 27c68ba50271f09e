package cmap

import (
	"hash/maphash"
	"sync"
)

// DefaultShardCount is the default number of lock-striped shards.
const DefaultShardCount = 16

// Map is a concurrent-safe sharded map. Sharding spreads lock
// contention across independent mutexes, which keeps hot-key workloads
// from serializing on one lock the way a single RWMutex would.
type Map[K comparable, V any] struct {
	shards    []*shard[K, V]
	shardMask uint64
	seed      maphash.Seed
}

type shard[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// New creates a map with the default shard count.
func New[K comparable, V any]() *Map[K, V] {
	return NewWithShards[K, V](DefaultShardCount)
}

// NewWithShards creates a map with the specified shard count.
// shardCount must be a power of 2; anything else falls back to the
// default.
func NewWithShards[K comparable, V any](shardCount int) *Map[K, V] {
	if shardCount <= 0 || shardCount&(shardCount-1) != 0 {
		shardCount = DefaultShardCount
	}

	m := &Map[K, V]{
		shards:    make([]*shard[K, V], shardCount),
		shardMask: uint64(shardCount - 1),
		seed:      maphash.MakeSeed(),
	}
	for i := range m.shards {
		m.shards[i] = &shard[K, V]{items: make(map[K]V)}
	}
	return m
}

// getShard returns the shard owning a key.
func (m *Map[K, V]) getShard(key K) *shard[K, V] {
	hash := maphash.Comparable(m.seed, key)
	return m.shards[hash&m.shardMask]
}

// Get retrieves a value by key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	sh := m.getShard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	val, ok := sh.items[key]
	return val, ok
}

// Set stores a key-value pair, overwriting any previous value.
func (m *Map[K, V]) Set(key K, value V) {
	sh := m.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.items[key] = value
}

// Delete removes a key. Deleting an absent key is a no-op.
func (m *Map[K, V]) Delete(key K) {
	sh := m.getShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.items, key)
}

// Has reports whether a key exists.
func (m *Map[K, V]) Has(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// Count returns the total number of items across all shards.
func (m *Map[K, V]) Count() int {
	count := 0
	for _, sh := range m.shards {
		sh.mu.RLock()
		count += len(sh.items)
		sh.mu.RUnlock()
	}
	return count
}

// Clear removes all items.
func (m *Map[K, V]) Clear() {
	for _, sh := range m.shards {
		sh.mu.Lock()
		sh.items = make(map[K]V)
		sh.mu.Unlock()
	}
}

// ShardCount returns the number of shards.
func (m *Map[K, V]) ShardCount() int {
	return len(m.shards)
}
