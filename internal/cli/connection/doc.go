// Package connection is the HTTP client the CLI talks to a TabVault
// server with. It understands the server's response envelope and the
// NDJSON restore stream, and keeps a separate untimed client for
// streaming requests.
package connection
