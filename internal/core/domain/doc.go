// Package domain defines the core domain models for TabVault.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. This package contains:
//
//   - Session: persisted analysis session with its dataset summary and
//     blob-key references
//   - SessionIndex: MRU-ordered session listing driving eviction
//   - Dataset, FilterState, ChartConfig: payload value objects
//   - ChunkIndex, DatasetChunk: chunked-dataset records
//   - Errors: domain-specific error definitions
//
// All domain models implement validation and deep copying so stores can
// hand out clones without aliasing internal state.
package domain
