// Package config defines the server configuration.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: default values
//   - verify.go: validation (addresses, paths, enums)
//
// Configuration is loaded through internal/infra/confloader; every key
// is section.key, so the file, TABVAULT_* environment variables, and
// flag overlays all address the same tree.
package config
