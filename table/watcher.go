package table

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// LoadRequester accepts queued table loads
type LoadRequester interface {
	RequestLoad(h Handle, src Source) error
}

// Watcher turns edits of table image files into queued loads. The loads
// complete on the owning application's next Manage call.
type Watcher struct {
	requester LoadRequester
	debounce  time.Duration
	log       zerolog.Logger

	// File system watcher
	fsWatcher *fsnotify.Watcher

	// Watched files by cleaned path
	files   map[string]Handle
	timers  map[string]*time.Timer
	filesMu sync.Mutex

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc

	// Wait group for goroutines
	wg sync.WaitGroup
}

// NewWatcher creates a new table file watcher
func NewWatcher(requester LoadRequester, debounce time.Duration, log zerolog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file system watcher: %w", err)
	}

	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		requester: requester,
		debounce:  debounce,
		log:       log.With().Str("component", "table-watcher").Logger(),
		fsWatcher: fsWatcher,
		files:     make(map[string]Handle),
		timers:    make(map[string]*time.Timer),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Watch requests a load of path into the table whenever the file changes.
// The containing directory is watched so editors that replace the file
// are noticed.
func (w *Watcher) Watch(path string, h Handle) error {
	if _, err := FormatFromPath(path); err != nil {
		return err
	}

	clean := filepath.Clean(path)
	if err := w.fsWatcher.Add(filepath.Dir(clean)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", clean, err)
	}

	w.filesMu.Lock()
	w.files[clean] = h
	w.filesMu.Unlock()
	return nil
}

// Start starts the watch loop
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.watchLoop()
}

// Stop stops watching and waits for the loop to exit
func (w *Watcher) Stop() error {
	w.cancel()
	err := w.fsWatcher.Close()
	w.wg.Wait()

	w.filesMu.Lock()
	for name, timer := range w.timers {
		timer.Stop()
		delete(w.timers, name)
	}
	w.filesMu.Unlock()
	return err
}

// watchLoop watches for file system events
func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			name := filepath.Clean(event.Name)
			w.filesMu.Lock()
			h, watched := w.files[name]
			if watched {
				w.scheduleLocked(name, h)
			}
			w.filesMu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("table watcher error")
		}
	}
}

// scheduleLocked restarts the debounce timer for one file
func (w *Watcher) scheduleLocked(name string, h Handle) {
	if timer, ok := w.timers[name]; ok {
		timer.Stop()
	}

	w.timers[name] = time.AfterFunc(w.debounce, func() {
		if w.ctx.Err() != nil {
			return
		}
		if err := w.requester.RequestLoad(h, FileSource(name)); err != nil {
			w.log.Warn().Err(err).Str("file", name).Msg("failed to request table load")
			return
		}
		w.log.Info().Str("file", name).Str("table", h.String()).Msg("table file changed, load requested")
	})
}
