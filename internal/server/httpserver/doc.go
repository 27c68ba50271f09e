// Package httpserver provides the HTTP/HTTPS server for TabVault.
//
// This package implements the external API using stdlib net/http:
//
//   - Session endpoints: /sessions, /sessions/{id}, /sessions/active
//   - Payload endpoints: /sessions/{id}/dataset, /filters, /charts
//   - Restore endpoint: /sessions/{id}/restore (NDJSON progress stream)
//   - Archive endpoints: /sessions/{id}/archive, /sessions/archive
//   - Admin endpoints: /admin/v1/*
//   - Health endpoints: /health, /ready, /metrics
//
// Features:
//
//   - TLS support, with the certificate supplied per-handshake so a
//     rotated keypair is served without a restart
//   - Middleware chain: Recover, RequestID, AccessLog, RateLimit
//   - Graceful shutdown with configurable timeout
//   - Prometheus metrics integration
package httpserver
