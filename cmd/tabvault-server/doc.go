// Package main provides the entry point for tabvault-server.
//
// The server is the TabVault persistence service:
//
//   - HTTP API for session, dataset, filter, and chart persistence
//   - Progressive, memory-aware session restore
//   - Capacity-profiled session eviction
//   - Session archive export and import
//
// Usage:
//
//	tabvault-server [flags]
//	tabvault-server --config /path/to/tabvault.yaml
//
// The server loads configuration, opens the storage backend, and serves
// until SIGINT or SIGTERM.
package main
