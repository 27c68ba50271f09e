package badgerstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tabvault/tabvault-go/internal/storage"
	"github.com/tabvault/tabvault-go/pkg/crypto/adaptive"
)

// Config controls how the Badger store is opened and maintained.
type Config struct {
	// Dir is the directory holding both the LSM tree and the value log.
	Dir string `koanf:"dir"`

	// GCInterval is the value-log garbage collection interval, as a
	// duration string. Invalid values fall back to 10m.
	GCInterval string `koanf:"gc_interval"`

	// GCThreshold is the rewrite ratio passed to Badger's value log GC.
	GCThreshold float64 `koanf:"gc_threshold"`

	// CacheSize is the block cache size in bytes.
	CacheSize int64 `koanf:"cache_size"`

	// ValueLogFileSize caps a single value log file in bytes.
	ValueLogFileSize int64 `koanf:"value_log_file_size"`

	// NumMemtables is the number of in-memory tables kept before stalling.
	NumMemtables int `koanf:"num_memtables"`

	// SyncWrites forces an fsync on every commit.
	SyncWrites bool `koanf:"sync_writes"`

	// Cipher, when non-nil, seals every value at rest.
	Cipher adaptive.Cipher `koanf:"-"`
}

// DefaultConfig returns a Config tuned for session blobs in dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:              dir,
		GCInterval:       "10m",
		GCThreshold:      0.5,
		CacheSize:        64 << 20,
		ValueLogFileSize: 256 << 20,
		NumMemtables:     4,
		SyncWrites:       false,
	}
}

// Store is a storage.ManagedAdapter backed by a Badger database.
type Store struct {
	db     *badger.DB
	cfg    Config
	cipher adaptive.Cipher
	logger *slog.Logger

	lastGCTime       atomic.Int64
	gcBytesReclaimed atomic.Uint64

	metricKeys      prometheus.Gauge
	metricLSMSize   prometheus.Gauge
	metricVlogSize  prometheus.Gauge
	metricGCRuns    prometheus.Counter
	metricReclaimed prometheus.Counter

	reportedReclaimed uint64

	stopCh chan struct{}
	doneCh chan struct{}
}

var _ storage.ManagedAdapter = (*Store)(nil)

// Open opens (or creates) a Badger database at cfg.Dir and starts the
// GC loop. Close must be called to release the directory lock.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("badgerstore: empty directory")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = &badgerLogger{logger: logger.With("component", "badger")}
	opts.SyncWrites = cfg.SyncWrites
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.NumMemtables > 0 {
		opts.NumMemtables = cfg.NumMemtables
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %s: %w", cfg.Dir, err)
	}

	s := &Store{
		db:     db,
		cfg:    cfg,
		cipher: cfg.Cipher,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go s.gcLoop()

	logger.Info("badger store opened",
		"dir", cfg.Dir,
		"gc_interval", cfg.GCInterval,
		"encrypted", s.cipher != nil)
	return s, nil
}

// Get returns the value stored under key, or storage.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, storage.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badgerstore: get %q: %w", key, err)
	}

	return s.open(key, value)
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("badgerstore: empty key")
	}

	sealed, err := s.seal(key, value)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), sealed)
	})
	if err != nil {
		return fmt.Errorf("badgerstore: set %q: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key succeeds.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("badgerstore: remove %q: %w", key, err)
	}
	return nil
}

// Scan visits every key with the given prefix in lexicographic order.
// The callback's value is valid only for the duration of the call.
func (s *Store) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(item.Key())
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("badgerstore: scan %q: %w", key, err)
			}
			value, err := s.open(key, raw)
			if err != nil {
				return err
			}
			if !fn(key, value) {
				return nil
			}
		}
		return nil
	})
}

// GC runs one round of value log garbage collection. It keeps rewriting
// files until Badger reports nothing left to rewrite, and returns the
// approximate number of bytes reclaimed.
func (s *Store) GC(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	_, before := s.db.Size()

	var rounds int
	for {
		err := s.db.RunValueLogGC(s.gcThreshold())
		if err == badger.ErrNoRewrite {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("badgerstore: value log gc: %w", err)
		}
		rounds++
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}

	_, after := s.db.Size()
	var reclaimed uint64
	if before > after {
		reclaimed = uint64(before - after)
	}

	s.lastGCTime.Store(time.Now().UnixMilli())
	s.gcBytesReclaimed.Add(reclaimed)
	if s.metricGCRuns != nil {
		s.metricGCRuns.Inc()
	}

	if rounds > 0 {
		s.logger.Info("badger gc finished",
			"rounds", rounds,
			"reclaimed_bytes", reclaimed)
	}
	return reclaimed, nil
}

// Stats reports key count and on-disk sizes.
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: stats: %w", err)
	}

	lsm, vlog := s.db.Size()
	return &storage.Stats{
		TotalKeys:        uint64(keys),
		TotalSize:        uint64(lsm + vlog),
		LSMSize:          uint64(lsm),
		ValueLogSize:     uint64(vlog),
		LastGCTime:       s.lastGCTime.Load(),
		GCBytesReclaimed: s.gcBytesReclaimed.Load(),
	}, nil
}

// Close stops the GC loop and closes the database.
func (s *Store) Close() error {
	close(s.stopCh)
	<-s.doneCh

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("badgerstore: close: %w", err)
	}
	s.logger.Info("badger store closed", "dir", s.cfg.Dir)
	return nil
}

// RegisterMetrics registers the store's gauges and counters with the
// given registry and starts a refresh loop. Call before Close.
func (s *Store) RegisterMetrics(reg prometheus.Registerer) {
	s.metricKeys = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tabvault",
		Subsystem: "badger",
		Name:      "keys_total",
		Help:      "Number of keys in the blob store.",
	})
	s.metricLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tabvault",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Size of the LSM tree on disk.",
	})
	s.metricVlogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tabvault",
		Subsystem: "badger",
		Name:      "vlog_size_bytes",
		Help:      "Size of the value log on disk.",
	})
	s.metricGCRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tabvault",
		Subsystem: "badger",
		Name:      "gc_runs_total",
		Help:      "Completed value log GC rounds.",
	})
	s.metricReclaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tabvault",
		Subsystem: "badger",
		Name:      "gc_reclaimed_bytes_total",
		Help:      "Bytes reclaimed by value log GC.",
	})

	reg.MustRegister(
		s.metricKeys,
		s.metricLSMSize,
		s.metricVlogSize,
		s.metricGCRuns,
		s.metricReclaimed,
	)

	go s.metricsUpdateLoop()
}

func (s *Store) metricsUpdateLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := s.Stats(context.Background())
			if err != nil {
				continue
			}
			s.metricKeys.Set(float64(stats.TotalKeys))
			s.metricLSMSize.Set(float64(stats.LSMSize))
			s.metricVlogSize.Set(float64(stats.ValueLogSize))

			total := s.gcBytesReclaimed.Load()
			if delta := total - s.reportedReclaimed; delta > 0 {
				s.metricReclaimed.Add(float64(delta))
				s.reportedReclaimed = total
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) gcLoop() {
	defer close(s.doneCh)

	interval, err := time.ParseDuration(s.cfg.GCInterval)
	if err != nil || interval <= 0 {
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.GC(context.Background()); err != nil {
				s.logger.Warn("badger gc failed", "error", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) gcThreshold() float64 {
	if s.cfg.GCThreshold > 0 && s.cfg.GCThreshold < 1 {
		return s.cfg.GCThreshold
	}
	return 0.5
}

// seal encrypts value for storage when a cipher is configured. The key
// string rides along as additional data.
func (s *Store) seal(key string, value []byte) ([]byte, error) {
	if s.cipher == nil {
		return value, nil
	}
	sealed, err := s.cipher.Encrypt(value, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("badgerstore: seal %q: %w", key, err)
	}
	return sealed, nil
}

func (s *Store) open(key string, raw []byte) ([]byte, error) {
	if s.cipher == nil {
		return raw, nil
	}
	value, err := s.cipher.Decrypt(raw, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %q: %w", key, err)
	}
	return value, nil
}

// badgerLogger adapts Badger's logger interface onto slog. Badger's
// messages arrive printf-style with trailing newlines.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(trimmed(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(trimmed(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(trimmed(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(trimmed(format, args...))
}

func trimmed(format string, args ...interface{}) string {
	msg := fmt.Sprintf(format, args...)
	for len(msg) > 0 && msg[len(msg)-1] == '\n' {
		msg = msg[:len(msg)-1]
	}
	return msg
}
