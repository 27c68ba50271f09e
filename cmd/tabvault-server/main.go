package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tabvault/tabvault-go/internal/capability"
	"github.com/tabvault/tabvault-go/internal/core/service"
	"github.com/tabvault/tabvault-go/internal/infra/buildinfo"
	"github.com/tabvault/tabvault-go/internal/infra/confloader"
	"github.com/tabvault/tabvault-go/internal/infra/shutdown"
	"github.com/tabvault/tabvault-go/internal/infra/tlsroots"
	"github.com/tabvault/tabvault-go/internal/server/config"
	"github.com/tabvault/tabvault-go/internal/server/httpserver"
	"github.com/tabvault/tabvault-go/internal/storage"
	"github.com/tabvault/tabvault-go/internal/storage/badgerstore"
	"github.com/tabvault/tabvault-go/internal/storage/memstore"
	"github.com/tabvault/tabvault-go/internal/storage/sqlitestore"
	"github.com/tabvault/tabvault-go/internal/telemetry/logger"
	"github.com/tabvault/tabvault-go/internal/telemetry/metric"
	"github.com/tabvault/tabvault-go/pkg/crypto/adaptive"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		httpAddress = flag.String("http-address", "", "Listen address (overrides config)")
		dataDir     = flag.String("data-dir", "", "Storage directory (overrides config)")
		logLevel    = flag.String("log-level", "", "Log level (overrides config)")
		logFormat   = flag.String("log-format", "", "Log format (overrides config)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		info := buildinfo.Get()
		fmt.Printf("tabvault-server %s (commit: %s, built: %s, %s)\n",
			info.Version, info.Commit, info.BuildTime, info.GoVersion)
		return nil
	}

	// Flags beat the file and the environment, but only when given.
	overrides := map[string]any{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http-address":
			overrides["server.http_address"] = *httpAddress
		case "data-dir":
			overrides["storage.data_dir"] = *dataDir
		case "log-level":
			overrides["log.level"] = *logLevel
		case "log-format":
			overrides["log.format"] = *logFormat
		}
	})

	cfg, err := loadConfig(*configFile, overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := initLogger(cfg)
	log.Info("starting tabvault-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config", *configFile)

	registry := prometheus.NewRegistry()
	recorder := metric.NewRecorder(registry)

	meta, blob, err := initStores(cfg, log, registry)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	limits := resolveLimits(cfg)
	log.Info("capacity profile resolved",
		"tier", limits.Tier,
		"max_sessions", limits.MaxSessions,
		"backend", cfg.Storage.Backend)

	engine, err := initEngine(cfg, meta, blob, limits, log, recorder)
	if err != nil {
		closeStores(meta, blob)
		return fmt.Errorf("init engine: %w", err)
	}

	// A restart under a tighter profile can leave more sessions than
	// the cap allows; trim before serving.
	if evicted, err := engine.EvictExcess(context.Background()); err != nil {
		log.Warn("startup eviction failed", "error", err)
	} else if evicted > 0 {
		log.Info("evicted sessions over capacity", "count", evicted)
	}

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Engine:    engine,
		Logger:    log,
		Metrics:   registry,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	})
	httpServer := httpserver.New(cfg.Server.HTTPAddress, router)

	// The keypair watcher reloads the certificate on rotation, so the
	// listener never serves a stale pair across a renewal.
	tlsEnabled := cfg.Server.TLSCertFile != "" && cfg.Server.TLSKeyFile != ""
	var keypair *tlsroots.Keypair
	if tlsEnabled {
		keypair, err = tlsroots.NewKeypair(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile,
			tlsroots.WithKeypairLogger(log))
		if err != nil {
			closeStores(meta, blob)
			return fmt.Errorf("load TLS keypair: %w", err)
		}
		httpServer.SetTLSConfig(keypair.ServerConfig())
	}

	shutdownHandler := shutdown.NewHandler(cfg.Server.ShutdownTimeout)

	// Hooks run in reverse registration order: the listener drains
	// before the stores close underneath it.
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("closing storage")
		return closeStores(meta, blob)
	})

	if *configFile != "" {
		watcher, err := initWatcher(*configFile, overrides, log)
		if err != nil {
			log.Warn("configuration watcher disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown(func(ctx context.Context) error {
				return watcher.Stop()
			})
		}
	}

	if keypair != nil {
		keypair.StartAsync()
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			keypair.Stop()
			return nil
		})
	}

	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return httpServer.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", cfg.Server.HTTPAddress, "tls", tlsEnabled)

		var err error
		if tlsEnabled {
			// The certificate comes from the keypair watcher, not
			// from files named here.
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
			shutdownHandler.Trigger()
		}
	}()

	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}

// loadConfig merges defaults, the optional file, TABVAULT_ environment
// variables, and explicit flag overrides, then validates the result.
func loadConfig(configFile string, overrides map[string]any) (*config.ServerConfig, error) {
	cfg := config.Default()

	loader := confloader.NewLoader()
	if err := loader.LoadFile(configFile); err != nil {
		return nil, err
	}
	if err := loader.LoadEnv(); err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		if err := loader.LoadMap(overrides); err != nil {
			return nil, err
		}
	}
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initLogger(cfg *config.ServerConfig) *slog.Logger {
	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	slog.SetDefault(log)
	return log
}

// initStores opens the configured backend. The disk backends serve both
// tiers from one database; the key namespaces are disjoint.
func initStores(cfg *config.ServerConfig, log *slog.Logger, reg prometheus.Registerer) (meta, blob storage.ManagedAdapter, err error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return memstore.New(), memstore.New(), nil

	case config.BackendBadger:
		bcfg := badgerstore.DefaultConfig(filepath.Join(cfg.Storage.DataDir, "badger"))
		if cfg.Storage.EncryptionKeyFile != "" {
			cipher, err := loadCipher(cfg.Storage.EncryptionKeyFile)
			if err != nil {
				return nil, nil, err
			}
			bcfg.Cipher = cipher
			log.Info("at-rest encryption enabled", "cipher", cipher.Type())
		}
		store, err := badgerstore.Open(bcfg, log)
		if err != nil {
			return nil, nil, err
		}
		store.RegisterMetrics(reg)
		return store, store, nil

	case config.BackendSQLite:
		store, err := sqlitestore.Open(filepath.Join(cfg.Storage.DataDir, "tabvault.db"), log)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func closeStores(meta, blob storage.ManagedAdapter) error {
	err := blob.Close()
	if meta != blob {
		if metaErr := meta.Close(); err == nil {
			err = metaErr
		}
	}
	return err
}

// loadCipher builds the at-rest AEAD from a key file holding 32 raw
// bytes or 64 hex characters.
func loadCipher(path string) (adaptive.Cipher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	key := bytes.TrimSpace(data)
	if len(key) == 64 {
		decoded := make([]byte, 32)
		if _, err := hex.Decode(decoded, key); err != nil {
			return nil, fmt.Errorf("encryption key %s: %w", path, err)
		}
		key = decoded
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key %s: need 32 raw bytes or 64 hex characters, got %d bytes", path, len(key))
	}
	return adaptive.New(key)
}

// resolveLimits maps the limits section onto a capacity profile.
func resolveLimits(cfg *config.ServerConfig) capability.Limits {
	var limits capability.Limits
	switch cfg.Limits.Profile {
	case "", "auto":
		limits = capability.DetectLimits()
	default:
		limits = capability.LimitsFor(capability.Tier(cfg.Limits.Profile))
	}
	if cfg.Limits.MaxSessions > 0 {
		limits.MaxSessions = cfg.Limits.MaxSessions
	}
	return limits
}

func initEngine(cfg *config.ServerConfig, meta, blob storage.Adapter, limits capability.Limits, log *slog.Logger, rec *metric.Recorder) (*service.Engine, error) {
	return service.NewEngine(service.Config{
		Meta:   meta,
		Blob:   blob,
		Limits: limits,
		Tunables: service.Tunables{
			ChunkSize:           cfg.Engine.ChunkSize,
			MemoryCheckInterval: cfg.Engine.MemoryCheckInterval,
			GCInterval:          cfg.Engine.GCInterval,
			RestoreDelay:        cfg.Engine.RestoreDelay,
			RestoreMaxDelay:     cfg.Engine.RestoreMaxDelay,
		},
		AppVersion: buildinfo.Version,
		Logger:     log,
		Metrics:    rec,
	})
}

// initWatcher hot-reloads the log level when the configuration file
// changes. Everything else in the file applies at the next restart.
func initWatcher(configFile string, overrides map[string]any, log *slog.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(configFile); err != nil {
		watcher.Stop()
		return nil, err
	}

	watcher.OnChange(func(path string) {
		fresh, err := loadConfig(path, overrides)
		if err != nil {
			log.Warn("configuration reload failed", "path", path, "error", err)
			return
		}
		if fresh.Log.Level != logger.Level() {
			logger.SetLevel(fresh.Log.Level)
			log.Info("log level changed", "level", fresh.Log.Level)
		}
	})
	watcher.StartAsync()
	return watcher, nil
}
