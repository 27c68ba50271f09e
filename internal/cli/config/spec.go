package config

import "time"

// CLIConfig is the local preference file for tabvault-cli.
type CLIConfig struct {
	// Server is the default server address.
	Server string `koanf:"server" yaml:"server"`

	// Output is the default output format: table, json, yaml.
	Output string `koanf:"output" yaml:"output"`

	// Wide shows the extra table columns by default.
	Wide bool `koanf:"wide" yaml:"wide"`

	// Timeout bounds non-streaming requests.
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`

	// CAFile is a PEM file with extra trusted CA certificates, for
	// servers running with a self-signed certificate.
	CAFile string `koanf:"ca_file" yaml:"ca_file"`
}

// Default returns the built-in preferences.
func Default() *CLIConfig {
	return &CLIConfig{
		Server:  "localhost:7501",
		Output:  "table",
		Timeout: 30 * time.Second,
	}
}
