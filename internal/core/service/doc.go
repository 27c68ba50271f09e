// Package service provides the persistence engine services for TabVault.
//
// Services contain the business logic and orchestrate operations on the
// domain models over the two injected storage tiers:
//
//   - Directory: session records, the MRU index, the active pointer,
//     filter/chart payloads, and capacity eviction
//   - Chunker: dataset persistence, splitting oversized datasets into
//     row chunks behind a chunk index
//   - Restorer: staged session restoration with progress reporting,
//     cooperative cancellation, and memory-pressure backoff
//   - Engine: the facade assembling the three over a capacity profile
//
// The engine runs single-flight: one restore at a time, enforced by the
// caller-facing surface. Services never leak raw adapter errors; every
// failure crosses the boundary as a domain error.
package service
