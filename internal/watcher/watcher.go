// Package watcher detects removal of the catalog database file so the store
// can recreate its schema without a restart.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DBWatcher watches the catalog database for deletion. fsnotify cannot watch
// a path that no longer exists, so the watch sits on the parent directory.
// Deletions are debounced: an atomic replace (remove then create) within the
// window does not fire the callback.
type DBWatcher struct {
	dbPath  string
	dataDir string
	onGone  func()

	fsw      *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New creates a watcher for dbPath. onGone runs after the database stays
// missing for the debounce window.
func New(dbPath string, onGone func()) (*DBWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &DBWatcher{
		dbPath:   filepath.Clean(dbPath),
		dataDir:  filepath.Dir(dbPath),
		onGone:   onGone,
		fsw:      fsw,
		debounce: 100 * time.Millisecond,
	}, nil
}

// Start begins watching. Safe to call more than once.
func (w *DBWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	w.running = true

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	if err := w.watchDataDir(); err != nil {
		log.Warn().Err(err).Str("dir", w.dataDir).Msg("Cannot watch data directory yet")
	}

	go w.loop(ctx)
	return nil
}

// Stop halts the watcher and releases the fsnotify handle.
func (w *DBWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	w.cancel()
	return w.fsw.Close()
}

func (w *DBWatcher) watchDataDir() error {
	if _, err := os.Stat(w.dataDir); err != nil {
		return err
	}
	return w.fsw.Add(w.dataDir)
}

func (w *DBWatcher) loop(ctx context.Context) {
	var pending *time.Timer
	stopPending := func() {
		if pending != nil {
			pending.Stop()
		}
	}

	for {
		select {
		case <-ctx.Done():
			stopPending()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			path := filepath.Clean(event.Name)

			switch {
			case event.Op&fsnotify.Remove != 0 && (path == w.dbPath || path == w.dataDir):
				log.Info().Str("path", path).Msg("Catalog database removed")
				stopPending()
				pending = time.AfterFunc(w.debounce, w.fireGone)

			case event.Op&fsnotify.Create != 0 && path == w.dbPath:
				// Replaced within the window, nothing to recreate
				stopPending()

			case event.Op&fsnotify.Create != 0 && path == w.dataDir:
				log.Info().Str("dir", w.dataDir).Msg("Data directory recreated, rewatching")
				if err := w.watchDataDir(); err != nil {
					log.Warn().Err(err).Str("dir", w.dataDir).Msg("Failed to rewatch data directory")
				}
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Filesystem watcher error")
		}
	}
}

func (w *DBWatcher) fireGone() {
	log.Info().Str("path", w.dbPath).Msg("Recreating catalog database")
	if w.onGone != nil {
		w.onGone()
	}

	// The data directory itself may have gone with the file; retry the watch
	// once things settle.
	go func() {
		time.Sleep(500 * time.Millisecond)
		if err := w.watchDataDir(); err != nil {
			log.Warn().Err(err).Str("dir", w.dataDir).Msg("Failed to re-establish watch")
		}
	}()
}
