package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddress     = "127.0.0.1:7501"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultRateLimit       = 50.0
	DefaultRateBurst       = 100

	DefaultBackend = "badger"
	DefaultDataDir = "/var/lib/tabvault/data"

	// Engine tunables mirror the engine's own defaults so a rendered
	// config shows the effective values.
	DefaultChunkSize           = 10_000
	DefaultMemoryCheckInterval = 3
	DefaultGCInterval          = 5
	DefaultRestoreDelay        = 10 * time.Millisecond
	DefaultRestoreMaxDelay     = 50 * time.Millisecond

	DefaultLimitsProfile = "auto"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTPAddress:     DefaultHTTPAddress,
			ShutdownTimeout: DefaultShutdownTimeout,
			RateLimit:       DefaultRateLimit,
			RateBurst:       DefaultRateBurst,
		},
		Storage: StorageSection{
			Backend: DefaultBackend,
			DataDir: DefaultDataDir,
		},
		Engine: EngineSection{
			ChunkSize:           DefaultChunkSize,
			MemoryCheckInterval: DefaultMemoryCheckInterval,
			GCInterval:          DefaultGCInterval,
			RestoreDelay:        DefaultRestoreDelay,
			RestoreMaxDelay:     DefaultRestoreMaxDelay,
		},
		Limits: LimitsSection{
			Profile: DefaultLimitsProfile,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
