// Package watch reports changes to a single source file.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 100 * time.Millisecond

// Watcher watches one file for writes and replacements.
//
// The parent directory is watched rather than the file itself, so editors
// that save by renaming a temporary file over the original are still seen.
type Watcher struct {
	path     string
	debounce time.Duration
	fs       *fsnotify.Watcher
	log      *zap.Logger
}

// New starts watching path. Call Run to receive changes and Close when done.
func New(path string, debounce time.Duration, log *zap.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}

	return &Watcher{
		path:     abs,
		debounce: debounce,
		fs:       fw,
		log:      log,
	}, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Run calls fn after each change to the file until ctx is cancelled.
// Changes arriving within the debounce window are reported once.
func (w *Watcher) Run(ctx context.Context, fn func(path string)) error {
	var pending <-chan time.Time
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.log.Debug("file changed", zap.String("path", w.path), zap.Stringer("op", event.Op))
			if w.debounce <= 0 {
				fn(w.path)
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			fn(w.path)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.String("path", w.path), zap.Error(err))
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
