package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bowerhall/kindly/internal/logger"
)

const defaultDebounce = 500 * time.Millisecond

// ReloadFunc is called after the watched file settles. An error keeps the
// previous corpus in service.
type ReloadFunc func(ctx context.Context) error

// Watcher reloads the corpus when its file changes. It watches the parent
// directory because editors and deploy tools often replace the file by rename.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	reload    ReloadFunc
	debounce  time.Duration
}

func New(path string, reload ReloadFunc) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{fsWatcher: fsw, path: abs, reload: reload, debounce: defaultDebounce}, nil
}

// Run processes events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsWatcher.Close()

	logger.Info("watching knowledge base", "path", w.path)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}

			logger.Debug("knowledge base changed", "event", event.Op.String())
			timer.Reset(w.debounce)

		case <-timer.C:
			if err := w.reload(ctx); err != nil {
				logger.Error("knowledge base reload failed, keeping previous version", "error", err)
				continue
			}
			logger.Info("knowledge base reloaded", "path", w.path)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
