package file

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/larder/internal/logger"
)

// defaultSettle coalesces the burst of events an editor save produces.
const defaultSettle = 100 * time.Millisecond

// Watcher reloads a ConfigStore when its file changes on disk.
type Watcher struct {
	store  *ConfigStore
	settle time.Duration
}

// NewWatcher creates a watcher for the store's file.
func NewWatcher(store *ConfigStore) *Watcher {
	return &Watcher{store: store, settle: defaultSettle}
}

// Watch starts watching and returns a channel that receives a value after
// each successful reload. The channel is closed when ctx is done.
//
// The directory is watched rather than the file so atomic replacements
// (write to temp, rename over) are seen.
func (w *Watcher) Watch(ctx context.Context) (<-chan struct{}, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	dir := filepath.Dir(w.store.Path())
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	changes := make(chan struct{}, 1)
	go w.loop(ctx, fsw, changes)
	return changes, nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, changes chan<- struct{}) {
	defer close(changes)
	defer fsw.Close()

	target := filepath.Clean(w.store.Path())
	timer := time.NewTimer(w.settle)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !isConfigChange(event, target) {
				continue
			}
			timer.Reset(w.settle)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher: %v", err)

		case <-timer.C:
			if err := w.store.Load(); err != nil {
				logger.Warn("config reload failed, keeping previous values: %v", err)
				continue
			}
			logger.Debug("config reloaded from %s", target)
			select {
			case changes <- struct{}{}:
			default:
				// A reload is already pending for the consumer
			}
		}
	}
}

// isConfigChange reports whether event affects the config file contents.
func isConfigChange(event fsnotify.Event, target string) bool {
	if filepath.Clean(event.Name) != target {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
