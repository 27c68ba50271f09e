package tlsroots

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Keypair holds a serving certificate and reloads it when the files
// change on disk. It watches the parent directories rather than the
// files themselves, so save-by-rename rotation is picked up too.
type Keypair struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	debounce time.Duration

	mu   sync.RWMutex
	cert *tls.Certificate

	reloadMu   sync.Mutex
	lastReload time.Time

	done    chan struct{}
	stopper sync.Once
}

// KeypairOption configures a Keypair.
type KeypairOption func(*Keypair)

// WithKeypairLogger sets the logger for reload events.
func WithKeypairLogger(logger *slog.Logger) KeypairOption {
	return func(k *Keypair) { k.logger = logger }
}

// WithDebounce sets the minimum interval between reloads. Editors and
// rotation tools often touch a file several times in a burst.
func WithDebounce(d time.Duration) KeypairOption {
	return func(k *Keypair) { k.debounce = d }
}

// NewKeypair loads the certificate and key and returns a Keypair ready
// to serve. Call Start or StartAsync to follow file changes.
func NewKeypair(certFile, keyFile string, opts ...KeypairOption) (*Keypair, error) {
	k := &Keypair{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   slog.Default(),
		debounce: 500 * time.Millisecond,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(k)
	}

	if err := k.reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: initial load: %w", err)
	}
	return k, nil
}

// Start watches the certificate and key files and blocks until Stop is
// called.
func (k *Keypair) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	defer watcher.Close()

	certDir := filepath.Dir(k.certFile)
	if err := watcher.Add(certDir); err != nil {
		return fmt.Errorf("tlsroots: watch %s: %w", certDir, err)
	}
	if keyDir := filepath.Dir(k.keyFile); keyDir != certDir {
		if err := watcher.Add(keyDir); err != nil {
			return fmt.Errorf("tlsroots: watch %s: %w", keyDir, err)
		}
	}

	k.logger.Info("certificate watcher started",
		"cert_file", k.certFile,
		"key_file", k.keyFile,
	)

	certBase := filepath.Base(k.certFile)
	keyBase := filepath.Base(k.keyFile)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			base := filepath.Base(event.Name)
			if base != certBase && base != keyBase {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if err := k.debouncedReload(); err != nil {
				k.logger.Error("certificate reload failed",
					"error", err,
					"cert_file", k.certFile,
				)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			k.logger.Error("certificate watcher error", "error", err)

		case <-k.done:
			return nil
		}
	}
}

// StartAsync runs Start in a goroutine.
func (k *Keypair) StartAsync() {
	go func() {
		if err := k.Start(); err != nil {
			k.logger.Error("certificate watcher stopped", "error", err)
		}
	}()
}

// Stop ends the watch. Safe to call more than once.
func (k *Keypair) Stop() {
	k.stopper.Do(func() { close(k.done) })
}

// GetCertificate returns the current certificate. It has the signature
// tls.Config.GetCertificate expects.
func (k *Keypair) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.cert, nil
}

// ServerConfig builds a TLS server configuration that always serves the
// current certificate.
func (k *Keypair) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: k.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

func (k *Keypair) debouncedReload() error {
	k.reloadMu.Lock()
	defer k.reloadMu.Unlock()

	now := time.Now()
	if now.Sub(k.lastReload) < k.debounce {
		return nil
	}
	k.lastReload = now

	// Rotation tools write the certificate and key as two operations;
	// a short pause lets the pair land before the load.
	time.Sleep(100 * time.Millisecond)

	return k.reload()
}

func (k *Keypair) reload() error {
	cert, err := tls.LoadX509KeyPair(k.certFile, k.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}

	k.mu.Lock()
	k.cert = &cert
	k.mu.Unlock()

	k.logger.Info("certificate loaded", "cert_file", k.certFile)
	return nil
}
