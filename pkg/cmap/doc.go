// Package cmap provides a concurrent-safe sharded map.
//
// Keys are spread across independently locked shards, so concurrent
// access to different keys rarely contends. TabVault uses it for the
// in-memory storage tier and for per-client rate limiter state.
//
// Usage:
//
//	m := cmap.New[string, []byte]()
//	m.Set("key", value)
//	val, ok := m.Get("key")
//
// All operations are safe for concurrent use. Range holds locks shard
// by shard, so it observes a live map, not a snapshot.
package cmap
