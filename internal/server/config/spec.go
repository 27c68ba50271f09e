package config

import "time"

// ServerConfig is the root configuration for tabvault-server.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server" json:"server" yaml:"server"`
	Storage StorageSection `koanf:"storage" json:"storage" yaml:"storage"`
	Engine  EngineSection  `koanf:"engine" json:"engine" yaml:"engine"`
	Limits  LimitsSection  `koanf:"limits" json:"limits" yaml:"limits"`
	Log     LogSection     `koanf:"log" json:"log" yaml:"log"`
}

// ServerSection configures the HTTP listener.
type ServerSection struct {
	// HTTPAddress is the listen address. Loopback by default; binding
	// wider is a deliberate operator choice.
	HTTPAddress string `koanf:"http_address" json:"http_address" yaml:"http_address"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout" yaml:"shutdown_timeout"`

	// RateLimit is the sustained request rate per second across all
	// clients. Zero disables rate limiting.
	RateLimit float64 `koanf:"rate_limit" json:"rate_limit" yaml:"rate_limit"`

	// RateBurst is the burst allowance above RateLimit.
	RateBurst int `koanf:"rate_burst" json:"rate_burst" yaml:"rate_burst"`

	// TLSCertFile and TLSKeyFile enable TLS when both are set.
	TLSCertFile string `koanf:"tls_cert_file" json:"tls_cert_file" yaml:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file" json:"tls_key_file" yaml:"tls_key_file"`
}

// StorageSection selects and configures the persistence backend.
type StorageSection struct {
	// Backend is one of memory, badger, sqlite.
	Backend string `koanf:"backend" json:"backend" yaml:"backend"`

	// DataDir is the on-disk location for persistent backends.
	DataDir string `koanf:"data_dir" json:"data_dir" yaml:"data_dir"`

	// EncryptionKeyFile, when set, points at a key file (32 raw bytes
	// or 64 hex characters) used to seal values at rest. Requires the
	// badger backend.
	EncryptionKeyFile string `koanf:"encryption_key_file" json:"encryption_key_file" yaml:"encryption_key_file"`
}

// EngineSection carries the restore and chunking tunables. Zero values
// fall back to the engine defaults.
type EngineSection struct {
	ChunkSize           int           `koanf:"chunk_size" json:"chunk_size" yaml:"chunk_size"`
	MemoryCheckInterval int           `koanf:"memory_check_interval" json:"memory_check_interval" yaml:"memory_check_interval"`
	GCInterval          int           `koanf:"gc_interval" json:"gc_interval" yaml:"gc_interval"`
	RestoreDelay        time.Duration `koanf:"restore_delay" json:"restore_delay" yaml:"restore_delay"`
	RestoreMaxDelay     time.Duration `koanf:"restore_max_delay" json:"restore_max_delay" yaml:"restore_max_delay"`
}

// LimitsSection overrides capability detection.
type LimitsSection struct {
	// Profile pins the capacity profile: auto, low, medium, high.
	// Auto detects from host memory and CPU count.
	Profile string `koanf:"profile" json:"profile" yaml:"profile"`

	// MaxSessions overrides the profile's session cap when positive.
	MaxSessions int `koanf:"max_sessions" json:"max_sessions" yaml:"max_sessions"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Format string `koanf:"format" json:"format" yaml:"format"`
}
