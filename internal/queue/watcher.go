package queue

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/timmy/slidewise/internal/logger"
)

// Watcher turns filesystem events in a directory into coalesced wake signals.
type Watcher struct {
	w        *fsnotify.Watcher
	wake     chan struct{}
	debounce time.Duration
	logger   *logger.Logger
}

// NewWatcher starts watching dir. Call Run to deliver events and Close when done.
func NewWatcher(dir string, debounce time.Duration, log *logger.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &Watcher{
		w:        w,
		wake:     make(chan struct{}, 1),
		debounce: debounce,
		logger:   log,
	}, nil
}

// Wake returns the signal channel. Signals are coalesced, so one receive may cover many files.
func (w *Watcher) Wake() <-chan struct{} {
	return w.wake
}

// Run forwards events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-w.w.Events:
			if !ok {
				return
			}
			if hidden(e.Name) || e.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			if w.debounce <= 0 {
				w.signal()
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.signal)
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Inbound watcher error")
		}
	}
}

func (w *Watcher) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.w.Close()
}

// hidden reports dot-files, which are in-flight temp files.
func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
