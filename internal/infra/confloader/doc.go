// Package confloader loads layered configuration.
//
// It wraps koanf so every consumer sees one loading order, later
// sources overriding earlier ones:
//
//  1. Defaults (seeded by the caller)
//  2. YAML configuration file
//  3. TABVAULT_* environment variables
//  4. Command-line flag overlays (via LoadMap)
//
// Configuration keys are two-level, section.key. The matching
// environment variable is TABVAULT_SECTION_KEY; only the first
// underscore after the prefix separates the section, so multi-word
// keys like data_dir stay addressable.
//
// The Watcher half reloads on file changes for hot log-level and
// tunable adjustments.
package confloader
