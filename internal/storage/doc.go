// Package storage provides the key-value storage abstractions TabVault
// persists through.
//
// The engine runs over a pair of Adapter implementations:
//
//   - Metadata tier: small, hot records such as session records, the
//     session index, and the active-session pointer
//   - Blob tier: large payloads such as serialized datasets, filter
//     states, chart configurations, and dataset chunks
//
// The pair is injected; the engine never assumes a concrete backend.
// Shipped backends live in subpackages:
//
//   - memstore: sharded in-memory store, the default and test backend
//   - badgerstore: Badger-backed persistent store with value-log GC
//   - sqlitestore: SQLite-backed persistent store
//
// The tiers use disjoint key namespaces, so a disk deployment can serve
// both from a single backend instance.
//
// This package also owns the key naming scheme (see keys.go); adapters
// treat keys as opaque strings.
package storage
