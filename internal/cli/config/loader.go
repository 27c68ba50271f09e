package config

import (
	"os"
	"path/filepath"

	"github.com/tabvault/tabvault-go/internal/infra/confloader"
)

// DefaultPath returns the preference file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tabvault", "cli.yaml")
}

// Load reads preferences from path, or from DefaultPath when path is
// empty. A missing file is not an error; the defaults come back as-is.
// Environment and flag overrides happen at flag parsing, not here.
func Load(path string) (*CLIConfig, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	loader := confloader.NewLoader()
	if err := loader.LoadFile(path); err != nil {
		return Default(), err
	}
	if err := loader.Unmarshal(cfg); err != nil {
		return Default(), err
	}
	return cfg, nil
}
