package config

import (
	"errors"
	"fmt"
	"net"
	"os"
)

// Storage backend names accepted by storage.backend.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Verify checks a configuration for values the server cannot start with.
// It creates storage.data_dir when a persistent backend needs it, so a
// verified config is also a usable one.
func Verify(cfg *ServerConfig) error {
	if cfg == nil {
		return errors.New("config: nil configuration")
	}
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyEngine(&cfg.Engine); err != nil {
		return err
	}
	if err := verifyLimits(&cfg.Limits); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	_, port, err := net.SplitHostPort(cfg.HTTPAddress)
	if err != nil {
		return fmt.Errorf("config: server.http_address %q: %w", cfg.HTTPAddress, err)
	}
	if port == "" {
		return fmt.Errorf("config: server.http_address %q: port is required", cfg.HTTPAddress)
	}

	if cfg.ShutdownTimeout <= 0 {
		return errors.New("config: server.shutdown_timeout must be positive")
	}
	if cfg.RateLimit < 0 {
		return errors.New("config: server.rate_limit must not be negative")
	}
	if cfg.RateLimit > 0 && cfg.RateBurst < 1 {
		return errors.New("config: server.rate_burst must be at least 1 when rate limiting is enabled")
	}

	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return errors.New("config: server.tls_cert_file and server.tls_key_file must be set together")
	}
	if cfg.TLSCertFile != "" {
		if _, err := os.Stat(cfg.TLSCertFile); err != nil {
			return fmt.Errorf("config: server.tls_cert_file: %w", err)
		}
		if _, err := os.Stat(cfg.TLSKeyFile); err != nil {
			return fmt.Errorf("config: server.tls_key_file: %w", err)
		}
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.EncryptionKeyFile != "" && cfg.Backend != BackendBadger {
		return fmt.Errorf("config: storage.encryption_key_file requires the %s backend", BackendBadger)
	}

	switch cfg.Backend {
	case BackendMemory:
		// No data directory needed.
		return nil
	case BackendBadger, BackendSQLite:
	default:
		return fmt.Errorf("config: storage.backend %q: unknown backend", cfg.Backend)
	}

	if cfg.DataDir == "" {
		return fmt.Errorf("config: storage.data_dir is required for the %s backend", cfg.Backend)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("config: storage.data_dir: %w", err)
	}

	if cfg.EncryptionKeyFile != "" {
		if _, err := os.Stat(cfg.EncryptionKeyFile); err != nil {
			return fmt.Errorf("config: storage.encryption_key_file: %w", err)
		}
	}
	return nil
}

func verifyEngine(cfg *EngineSection) error {
	if cfg.ChunkSize < 0 {
		return errors.New("config: engine.chunk_size must not be negative")
	}
	if cfg.MemoryCheckInterval < 0 || cfg.GCInterval < 0 {
		return errors.New("config: engine intervals must not be negative")
	}
	if cfg.RestoreDelay < 0 || cfg.RestoreMaxDelay < 0 {
		return errors.New("config: engine restore delays must not be negative")
	}
	if cfg.RestoreMaxDelay > 0 && cfg.RestoreDelay > cfg.RestoreMaxDelay {
		return errors.New("config: engine.restore_delay must not exceed engine.restore_max_delay")
	}
	return nil
}

func verifyLimits(cfg *LimitsSection) error {
	switch cfg.Profile {
	case "", "auto", "low", "medium", "high":
	default:
		return fmt.Errorf("config: limits.profile %q: unknown profile", cfg.Profile)
	}
	if cfg.MaxSessions < 0 {
		return errors.New("config: limits.max_sessions must not be negative")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch cfg.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: log.level %q: unknown level", cfg.Level)
	}
	switch cfg.Format {
	case "", "json", "text", "console":
	default:
		return fmt.Errorf("config: log.format %q: unknown format", cfg.Format)
	}
	return nil
}
