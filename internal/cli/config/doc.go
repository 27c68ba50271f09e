// Package config holds the CLI's local preferences, read from
// ~/.tabvault/cli.yaml. Preferences only seed flag defaults; TABVAULT_CLI
// environment variables and explicit flags override them.
package config
