package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_NotifiesWatchedFileOnly(t *testing.T) {
	dir := t.TempDir()
	watchedPath := filepath.Join(dir, "config.yaml")
	otherPath := filepath.Join(dir, "scratch.txt")
	for _, p := range []string{watchedPath, otherPath} {
		if err := os.WriteFile(p, []byte("a: 1\n"), 0o600); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}

	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	changes := make(chan string, 8)
	w.OnChange(func(path string) { changes <- path })
	if err := w.Watch(watchedPath); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	w.StartAsync()

	// A neighbor file changing first must not produce an event; the
	// first delivery has to be the watched file.
	if err := os.WriteFile(otherPath, []byte("b: 2\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(watchedPath, []byte("a: 2\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	select {
	case got := <-changes:
		if filepath.Base(got) != "config.yaml" {
			t.Errorf("first change = %q, want config.yaml", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change event within 2s")
	}
}

func TestWatcher_Stop(t *testing.T) {
	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	started := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		close(started)
		w.Start()
		close(stopped)
	}()
	<-started

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}
