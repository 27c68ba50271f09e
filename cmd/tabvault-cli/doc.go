// Package main provides the entry point for tabvault-cli.
//
// The CLI tool manages a running tabvault-server:
//
//   - Session management (list, get, delete, restore)
//   - Session archive export and import
//   - Server status and metrics
//   - Server configuration files (show, init, validate)
//
// Usage:
//
//	tabvault-cli [command] [flags]
//	tabvault-cli session list --output json
//	tabvault-cli session restore tvss-01jm5xk8r2
//
// Connection defaults come from ~/.tabvault/cli.yaml; TABVAULT_CLI_
// environment variables and flags override it.
package main
