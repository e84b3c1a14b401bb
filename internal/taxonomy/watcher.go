package taxonomy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceWindow coalesces rapid write events before notifying.
// SQLite touches the db, -wal, and -shm files in quick succession on a
// single logical update.
const DefaultDebounceWindow = 200 * time.Millisecond

// Watcher observes a taxonomy database file and invokes a callback when it
// changes on disk. Callers typically wire the callback to resolver and
// result-cache invalidation.
type Watcher struct {
	path     string
	onChange func()
	window   time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	timer   *time.Timer
	stopped bool
}

// NewWatcher creates a watcher for the given file path. onChange runs on
// the watcher goroutine after the debounce window elapses.
func NewWatcher(path string, onChange func(), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		onChange: onChange,
		window:   DefaultDebounceWindow,
		logger:   logger,
	}
}

// Start begins watching. It returns once the underlying watcher is
// registered; events are handled on a background goroutine until Stop is
// called or the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}

	// Watch the parent directory: editors and SQLite replace files by
	// rename, which drops a watch registered on the file itself.
	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.mu.Lock()
	w.fsw = fsw
	w.stopped = false
	w.mu.Unlock()

	go w.run(ctx, fsw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	base := filepath.Base(w.path)

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.matches(base, event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.logger.Debug("taxonomy_file_event",
				slog.String("file", event.Name),
				slog.String("op", event.Op.String()))
			w.scheduleNotify()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("taxonomy_watcher_error", slog.String("error", err.Error()))
		}
	}
}

// matches reports whether the event path refers to the watched database or
// one of its SQLite sidecar files.
func (w *Watcher) matches(base, eventPath string) bool {
	name := filepath.Base(eventPath)
	return name == base || name == base+"-wal" || name == base+"-shm"
}

// scheduleNotify (re)arms the debounce timer.
func (w *Watcher) scheduleNotify() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.window, func() {
		w.mu.Lock()
		stopped := w.stopped
		w.mu.Unlock()
		if stopped {
			return
		}
		w.logger.Info("taxonomy_changed", slog.String("path", w.path))
		w.onChange()
	})
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}
