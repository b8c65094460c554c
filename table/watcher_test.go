package table

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordingRequester struct {
	mu       sync.Mutex
	requests []Source
	seen     chan struct{}
}

func (r *recordingRequester) RequestLoad(h Handle, src Source) error {
	r.mu.Lock()
	r.requests = append(r.requests, src)
	r.mu.Unlock()

	select {
	case r.seen <- struct{}{}:
	default:
	}
	return nil
}

func TestWatcherRequestsLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ros_app_tbl.yaml")
	if err := os.WriteFile(path, []byte("Int1: 1\nInt2: 1\n"), 0644); err != nil {
		t.Fatalf("Failed to write table file: %v", err)
	}

	req := &recordingRequester{seen: make(chan struct{}, 1)}
	w, err := NewWatcher(req, 20*time.Millisecond, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	if err := w.Watch(path, Handle(1)); err != nil {
		t.Fatalf("Failed to watch file: %v", err)
	}
	w.Start()
	defer w.Stop()

	// unrelated files in the same directory are ignored
	os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0644)

	if err := os.WriteFile(path, []byte("Int1: 2\nInt2: 2\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite table file: %v", err)
	}

	select {
	case <-req.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for load request")
	}

	req.mu.Lock()
	defer req.mu.Unlock()
	for _, src := range req.requests {
		if src.String() != filepath.Clean(path) {
			t.Errorf("Expected request for %s, got %s", path, src)
		}
	}
}

func TestWatcherRejectsUnknownFormat(t *testing.T) {
	w, err := NewWatcher(&recordingRequester{seen: make(chan struct{}, 1)}, 0, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer w.Stop()

	if err := w.Watch(filepath.Join(t.TempDir(), "table.ini"), Handle(1)); err == nil {
		t.Error("Expected unsupported format to be rejected")
	}
}
