package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tabvault/tabvault-go/internal/infra/confloader"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.HTTPAddress != DefaultHTTPAddress {
		t.Errorf("Server.HTTPAddress = %q, want %q", cfg.Server.HTTPAddress, DefaultHTTPAddress)
	}
	if cfg.Server.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("Server.ShutdownTimeout = %v, want %v", cfg.Server.ShutdownTimeout, DefaultShutdownTimeout)
	}
	if cfg.Storage.Backend != DefaultBackend {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, DefaultBackend)
	}
	if cfg.Engine.ChunkSize != DefaultChunkSize {
		t.Errorf("Engine.ChunkSize = %d, want %d", cfg.Engine.ChunkSize, DefaultChunkSize)
	}
	if cfg.Engine.RestoreDelay != DefaultRestoreDelay {
		t.Errorf("Engine.RestoreDelay = %v, want %v", cfg.Engine.RestoreDelay, DefaultRestoreDelay)
	}
	if cfg.Limits.Profile != DefaultLimitsProfile {
		t.Errorf("Limits.Profile = %q, want %q", cfg.Limits.Profile, DefaultLimitsProfile)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
}

func TestVerify_DefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = t.TempDir()

	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify(Default()) = %v, want nil", err)
	}
}

func TestVerify_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantSub string
	}{
		{
			name:    "address without port",
			mutate:  func(c *ServerConfig) { c.Server.HTTPAddress = "127.0.0.1" },
			wantSub: "http_address",
		},
		{
			name:    "empty port",
			mutate:  func(c *ServerConfig) { c.Server.HTTPAddress = "127.0.0.1:" },
			wantSub: "port is required",
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(c *ServerConfig) { c.Server.ShutdownTimeout = 0 },
			wantSub: "shutdown_timeout",
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *ServerConfig) { c.Server.RateLimit = -1 },
			wantSub: "rate_limit",
		},
		{
			name: "rate limiting without burst",
			mutate: func(c *ServerConfig) {
				c.Server.RateLimit = 10
				c.Server.RateBurst = 0
			},
			wantSub: "rate_burst",
		},
		{
			name:    "cert without key",
			mutate:  func(c *ServerConfig) { c.Server.TLSCertFile = "/tmp/cert.pem" },
			wantSub: "set together",
		},
		{
			name: "missing cert file",
			mutate: func(c *ServerConfig) {
				c.Server.TLSCertFile = "/nonexistent/cert.pem"
				c.Server.TLSKeyFile = "/nonexistent/key.pem"
			},
			wantSub: "tls_cert_file",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *ServerConfig) { c.Storage.Backend = "etcd" },
			wantSub: "unknown backend",
		},
		{
			name: "persistent backend without data dir",
			mutate: func(c *ServerConfig) {
				c.Storage.Backend = BackendBadger
				c.Storage.DataDir = ""
			},
			wantSub: "data_dir",
		},
		{
			name: "encryption key on memory backend",
			mutate: func(c *ServerConfig) {
				c.Storage.Backend = BackendMemory
				c.Storage.EncryptionKeyFile = "/etc/tabvault/at-rest.key"
			},
			wantSub: "encryption_key_file",
		},
		{
			name: "missing encryption key file",
			mutate: func(c *ServerConfig) {
				c.Storage.EncryptionKeyFile = "/nonexistent/at-rest.key"
			},
			wantSub: "encryption_key_file",
		},
		{
			name:    "negative chunk size",
			mutate:  func(c *ServerConfig) { c.Engine.ChunkSize = -1 },
			wantSub: "chunk_size",
		},
		{
			name: "restore delay above max",
			mutate: func(c *ServerConfig) {
				c.Engine.RestoreDelay = 100 * time.Millisecond
				c.Engine.RestoreMaxDelay = 20 * time.Millisecond
			},
			wantSub: "restore_delay",
		},
		{
			name:    "unknown limits profile",
			mutate:  func(c *ServerConfig) { c.Limits.Profile = "enormous" },
			wantSub: "profile",
		},
		{
			name:    "negative max sessions",
			mutate:  func(c *ServerConfig) { c.Limits.MaxSessions = -1 },
			wantSub: "max_sessions",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *ServerConfig) { c.Log.Level = "verbose" },
			wantSub: "log.level",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *ServerConfig) { c.Log.Format = "logfmt" },
			wantSub: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Storage.DataDir = t.TempDir()
			tt.mutate(cfg)

			err := Verify(cfg)
			if err == nil {
				t.Fatal("Verify() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Verify() = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestVerify_EncryptionKeyOnBadger(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "at-rest.key")
	if err := os.WriteFile(keyPath, make([]byte, 32), 0o600); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}

	cfg := Default()
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Storage.EncryptionKeyFile = keyPath

	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify() = %v, want nil", err)
	}
}

func TestVerify_CreatesDataDir(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = BackendSQLite
	cfg.Storage.DataDir = filepath.Join(t.TempDir(), "nested", "data")

	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify() = %v, want nil", err)
	}

	st, err := os.Stat(cfg.Storage.DataDir)
	if err != nil {
		t.Fatalf("Stat(%s) = %v, want created directory", cfg.Storage.DataDir, err)
	}
	if !st.IsDir() {
		t.Errorf("data dir %s is not a directory", cfg.Storage.DataDir)
	}
}

func TestVerify_MemoryBackendSkipsDataDir(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = BackendMemory
	cfg.Storage.DataDir = ""

	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify() = %v, want nil for memory backend", err)
	}
}

func TestConfig_LoadsThroughConfloader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `server:
  http_address: "0.0.0.0:9501"
  shutdown_timeout: 30s
  rate_limit: 25.5
storage:
  backend: sqlite
  data_dir: ` + filepath.Join(dir, "data") + `
engine:
  chunk_size: 2500
  restore_delay: 25ms
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}

	t.Setenv("TABVAULT_LIMITS_PROFILE", "high")

	cfg := Default()
	loader := confloader.NewLoader(confloader.WithConfigFile(path))
	if err := loader.Load(cfg); err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if cfg.Server.HTTPAddress != "0.0.0.0:9501" {
		t.Errorf("Server.HTTPAddress = %q, want file value", cfg.Server.HTTPAddress)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 30s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.RateLimit != 25.5 {
		t.Errorf("Server.RateLimit = %v, want 25.5", cfg.Server.RateLimit)
	}
	if cfg.Server.RateBurst != DefaultRateBurst {
		t.Errorf("Server.RateBurst = %d, want untouched default %d", cfg.Server.RateBurst, DefaultRateBurst)
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Errorf("Storage.Backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Engine.ChunkSize != 2500 {
		t.Errorf("Engine.ChunkSize = %d, want 2500", cfg.Engine.ChunkSize)
	}
	if cfg.Engine.RestoreDelay != 25*time.Millisecond {
		t.Errorf("Engine.RestoreDelay = %v, want 25ms", cfg.Engine.RestoreDelay)
	}
	if cfg.Limits.Profile != "high" {
		t.Errorf("Limits.Profile = %q, want env override high", cfg.Limits.Profile)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}

	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify(loaded) = %v, want nil", err)
	}
}
