// Package handler provides HTTP request handlers for TabVault.
//
// This package contains handlers for all HTTP endpoints:
//
//   - session.go: session records, activation, listing
//   - payload.go: dataset, filter, and chart persistence
//   - restore.go: progressive restore with NDJSON progress streaming
//   - archive.go: portable archive export and import
//   - admin.go: administrative operations
//   - health.go: health and readiness checks
//
// All handlers follow a consistent pattern:
//
//   - Parse and validate the request
//   - Call the persistence engine
//   - Format and return the response envelope
//   - Map domain error codes to HTTP status codes
package handler
