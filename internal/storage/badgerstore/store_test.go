package badgerstore

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/tabvault/tabvault-go/internal/storage"
	"github.com/tabvault/tabvault-go/pkg/crypto/adaptive"
)

func openTestStore(t *testing.T, mutate func(*Config)) *Store {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "badgerstore-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	cfg := DefaultConfig(tmpDir)
	cfg.GCInterval = "1h" // keep auto GC out of the test's way
	if mutate != nil {
		mutate(&cfg)
	}

	store, err := Open(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_BasicOperations(t *testing.T) {
	store := openTestStore(t, nil)
	ctx := context.Background()

	t.Run("Set and Get", func(t *testing.T) {
		if err := store.Set(ctx, "dataset:tvss-a:112233", []byte("payload")); err != nil {
			t.Fatal(err)
		}

		got, err := store.Get(ctx, "dataset:tvss-a:112233")
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "payload" {
			t.Errorf("Get = %q, want %q", got, "payload")
		}
	})

	t.Run("Get non-existent key", func(t *testing.T) {
		_, err := store.Get(ctx, "dataset:tvss-absent:000000")
		if err != storage.ErrKeyNotFound {
			t.Errorf("expected ErrKeyNotFound, got %v", err)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		if err := store.Set(ctx, "charts:tvss-a:445566", []byte("charts")); err != nil {
			t.Fatal(err)
		}
		if err := store.Remove(ctx, "charts:tvss-a:445566"); err != nil {
			t.Fatal(err)
		}

		_, err := store.Get(ctx, "charts:tvss-a:445566")
		if err != storage.ErrKeyNotFound {
			t.Errorf("expected ErrKeyNotFound after remove, got %v", err)
		}
	})

	t.Run("Remove absent key succeeds", func(t *testing.T) {
		if err := store.Remove(ctx, "charts:tvss-never:000000"); err != nil {
			t.Errorf("Remove absent = %v, want nil", err)
		}
	})

	t.Run("empty key rejected", func(t *testing.T) {
		if err := store.Set(ctx, "", []byte("x")); err == nil {
			t.Error("expected error for empty key")
		}
	})
}

func TestStore_Scan(t *testing.T) {
	store := openTestStore(t, nil)
	ctx := context.Background()

	seed := map[string]string{
		"chunk:tvss-a:000001": "c0",
		"chunk:tvss-a:000002": "c1",
		"chunk:tvss-a:000003": "c2",
		"chunk:tvss-b:000001": "other",
	}
	for k, v := range seed {
		if err := store.Set(ctx, k, []byte(v)); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("scan with prefix", func(t *testing.T) {
		var keys []string
		err := store.Scan(ctx, "chunk:tvss-a:", func(key string, value []byte) bool {
			keys = append(keys, key)
			return true
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(keys) != 3 {
			t.Errorf("scan matched %d keys, want 3", len(keys))
		}
	})

	t.Run("scan with early stop", func(t *testing.T) {
		count := 0
		err := store.Scan(ctx, "chunk:", func(key string, value []byte) bool {
			count++
			return count < 2
		})
		if err != nil {
			t.Fatal(err)
		}
		if count != 2 {
			t.Errorf("scan visited %d keys, want 2", count)
		}
	})

	t.Run("cancelled context stops scan", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		err := store.Scan(cancelled, "chunk:", func(key string, value []byte) bool {
			return true
		})
		if err != context.Canceled {
			t.Errorf("scan with cancelled context = %v, want context.Canceled", err)
		}
	})
}

func TestStore_Encrypted(t *testing.T) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	cipher, err := adaptive.New(key)
	if err != nil {
		t.Fatal(err)
	}

	store := openTestStore(t, func(cfg *Config) { cfg.Cipher = cipher })
	ctx := context.Background()

	plaintext := []byte(`{"headers":["a","b"],"rows":[[1,2]]}`)
	if err := store.Set(ctx, "dataset:tvss-enc:aabbcc", plaintext); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "dataset:tvss-enc:aabbcc")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(plaintext) {
		t.Errorf("encrypted round trip = %q, want %q", got, plaintext)
	}

	// The scan path decrypts too.
	var scanned []byte
	err = store.Scan(ctx, "dataset:tvss-enc:", func(k string, v []byte) bool {
		scanned = append([]byte(nil), v...)
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(scanned) != string(plaintext) {
		t.Errorf("scanned value = %q, want %q", scanned, plaintext)
	}
}

func TestStore_GC(t *testing.T) {
	store := openTestStore(t, func(cfg *Config) { cfg.GCThreshold = 0.5 })
	ctx := context.Background()

	// Write then delete to leave garbage in the value log.
	for i := 0; i < 100; i++ {
		k := fmt.Sprintf("chunk:tvss-gc:%06d", i)
		if err := store.Set(ctx, k, make([]byte, 1000)); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("chunk:tvss-gc:%06d", i)
		if err := store.Remove(ctx, k); err != nil {
			t.Fatal(err)
		}
	}

	reclaimed, err := store.GC(ctx)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("GC reclaimed ~%d bytes", reclaimed)
}

func TestStore_Stats(t *testing.T) {
	store := openTestStore(t, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		k := fmt.Sprintf("filters:tvss-s:%06d", i)
		if err := store.Set(ctx, k, make([]byte, 100)); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalKeys != 10 {
		t.Errorf("TotalKeys = %d, want 10", stats.TotalKeys)
	}
	// On-disk sizes may be zero before the first flush.
	t.Logf("Stats: TotalSize=%d, LSMSize=%d, ValueLogSize=%d",
		stats.TotalSize, stats.LSMSize, stats.ValueLogSize)
}

func TestStore_Persistence(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "badgerstore-persist-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	ctx := context.Background()
	cfg := DefaultConfig(tmpDir)
	cfg.GCInterval = "1h"

	store, err := Open(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, "session:tvss-persist", []byte("survives")); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(cfg, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "session:tvss-persist")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "survives" {
		t.Errorf("after reopen Get = %q, want %q", got, "survives")
	}
}
