package source

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a burst of writes to a
// snapshot file to settle before reloading.
const DefaultDebounce = 200 * time.Millisecond

// ChangeHandler is called once per settled burst of changes.
type ChangeHandler func(ctx context.Context)

// Watcher watches one snapshot file and calls a handler after it changes.
// The parent directory is watched so that editors which save by rename are
// still seen.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange ChangeHandler
	logger   *slog.Logger

	fsw *fsnotify.Watcher

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for path. A debounce of zero uses DefaultDebounce.
func NewWatcher(path string, debounce time.Duration, onChange ChangeHandler, logger *slog.Logger) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("watcher: change handler is required")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &Watcher{
		path:     abs,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		fsw:      fsw,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. The loop exits when ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		w.fsw.Close()
		close(w.done)
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}
	go w.loop(ctx)
	w.logger.Info("source: watching snapshot file", "path", w.path, "debounce", w.debounce)
	return nil
}

// Stop shuts the watcher down and waits for the loop to exit. It must only be
// called after Start; calling it more than once is safe.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	<-w.done
}

// Done is closed when the watch loop has exited.
func (w *Watcher) Done() <-chan struct{} { return w.done }

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	defer w.fsw.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("source: watcher error", "path", w.path, "err", err)
		case <-fire:
			fire = nil
			w.logger.Info("source: snapshot file changed", "path", w.path)
			w.onChange(ctx)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}
