// Package metric provides Prometheus metrics for TabVault.
//
// Recorder carries the engine-level counters and histograms: session
// saves, deletes and evictions, dataset chunk traffic, and restore
// outcomes. A nil *Recorder is valid and records nothing, so metric
// wiring stays optional for embedders and tests.
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
