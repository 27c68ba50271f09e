package confloader

import (
	"os"
	"path/filepath"
	"testing"
)

type testConfig struct {
	Server  testServerConfig  `koanf:"server"`
	Storage testStorageConfig `koanf:"storage"`
}

type testServerConfig struct {
	HTTPAddress string `koanf:"http_address"`
	Timeout     int    `koanf:"timeout"`
}

type testStorageConfig struct {
	Backend string `koanf:"backend"`
	DataDir string `koanf:"data_dir"`
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoader_LayerOrder(t *testing.T) {
	path := writeConfigFile(t, `
server:
  http_address: "127.0.0.1:8080"
  timeout: 30
storage:
  backend: badger
  data_dir: /var/lib/tabvault
`)
	t.Setenv("TABVAULT_STORAGE_DATA_DIR", "/tmp/override")
	t.Setenv("TABVAULT_SERVER_TIMEOUT", "45")

	// Defaults are whatever the struct holds before loading.
	cfg := testConfig{
		Server:  testServerConfig{HTTPAddress: "default:1", Timeout: 1},
		Storage: testStorageConfig{Backend: "memory"},
	}

	l := NewLoader(WithConfigFile(path))
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddress != "127.0.0.1:8080" {
		t.Errorf("HTTPAddress = %q, want the file value", cfg.Server.HTTPAddress)
	}
	if cfg.Server.Timeout != 45 {
		t.Errorf("Timeout = %d, want env override 45", cfg.Server.Timeout)
	}
	if cfg.Storage.Backend != "badger" {
		t.Errorf("Backend = %q, want badger", cfg.Storage.Backend)
	}
	if cfg.Storage.DataDir != "/tmp/override" {
		t.Errorf("DataDir = %q, want env override", cfg.Storage.DataDir)
	}
}

func TestLoader_MultiWordEnvKey(t *testing.T) {
	// Only the first underscore separates the section.
	t.Setenv("TABVAULT_STORAGE_DATA_DIR", "/data/tv")

	var cfg testConfig
	if err := NewLoader().Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.DataDir != "/data/tv" {
		t.Errorf("DataDir = %q, want /data/tv", cfg.Storage.DataDir)
	}
}

func TestLoader_DefaultsSurvive(t *testing.T) {
	cfg := testConfig{
		Server: testServerConfig{HTTPAddress: "127.0.0.1:7501", Timeout: 15},
	}
	if err := NewLoader().Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPAddress != "127.0.0.1:7501" || cfg.Server.Timeout != 15 {
		t.Errorf("defaults clobbered: %+v", cfg.Server)
	}
}

func TestLoader_MapOverlayWins(t *testing.T) {
	path := writeConfigFile(t, "server:\n  http_address: \"127.0.0.1:8080\"\n")

	l := NewLoader(WithConfigFile(path))
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := l.LoadMap(map[string]any{"server.http_address": "0.0.0.0:9001"}); err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}
	if err := l.Unmarshal(&cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if cfg.Server.HTTPAddress != "0.0.0.0:9001" {
		t.Errorf("HTTPAddress = %q, want map overlay", cfg.Server.HTTPAddress)
	}
}

func TestLoader_MissingFile(t *testing.T) {
	l := NewLoader(WithConfigFile(filepath.Join(t.TempDir(), "absent.yaml")))
	var cfg testConfig
	if err := l.Load(&cfg); err == nil {
		t.Fatal("Load() with missing file should fail")
	}
}

func TestLoader_GetAndAll(t *testing.T) {
	path := writeConfigFile(t, "storage:\n  backend: sqlite\n")
	l := NewLoader(WithConfigFile(path))
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := l.Get("storage.backend"); got != "sqlite" {
		t.Errorf("Get() = %v, want sqlite", got)
	}
	if _, ok := l.All()["storage.backend"]; !ok {
		t.Errorf("All() missing storage.backend: %v", l.All())
	}
}
