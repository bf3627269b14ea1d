// Package watcher feeds the ingest pool from watched library directories.
//
// Files created in (or renamed into) a watched directory are submitted for
// ingestion with an append position; classification and rejection of
// non-audio files happens downstream in the pool, under the same taxonomy
// as explicit imports.
package watcher

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/desertthunder/audition/internal/shared"
	"github.com/desertthunder/audition/internal/store"
)

// Submitter accepts ingestion submissions. The ingest pool satisfies this.
type Submitter interface {
	Submit(path string, pos store.Position) error
}

// Watcher forwards filesystem create events to the ingest pool. Use [New].
type Watcher struct {
	logger *log.Logger
	pool   Submitter
	fs     *fsnotify.Watcher
	done   chan struct{}
}

// New creates a Watcher over dirs and starts forwarding events. Close the
// watcher before closing the pool.
func New(pool Submitter, dirs []string, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	for _, dir := range dirs {
		if err := fs.Add(dir); err != nil {
			fs.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	w := &Watcher{
		logger: logger.With("component", "watcher"),
		pool:   pool,
		fs:     fs,
		done:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops the watcher and waits for the forwarding goroutine to exit.
func (w *Watcher) Close() error {
	err := w.fs.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !interesting(ev) {
				continue
			}
			w.logger.Debug("new file in watched directory", "path", ev.Name)
			if err := w.pool.Submit(ev.Name, store.Append()); err != nil {
				w.logger.Warn("submission failed", "path", ev.Name, "err", err)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "err", err)
		}
	}
}

// interesting reports whether the event names a regular file that just
// appeared.
func interesting(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	info, err := os.Stat(ev.Name)
	return err == nil && info.Mode().IsRegular()
}
