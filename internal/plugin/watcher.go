package plugin

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a plugin's files to
// settle before reloading it.
const DefaultDebounce = 200 * time.Millisecond

// ErrWatcherClosed is returned when starting a closed watcher.
var ErrWatcherClosed = errors.New("watcher is closed")

// ReloadFunc is called with the name of a plugin whose files changed.
type ReloadFunc func(ctx context.Context, name string)

// Watcher reloads plugins when their files change on disk.
type Watcher struct {
	mu sync.Mutex

	fsw      *fsnotify.Watcher
	loader   *Loader
	reload   ReloadFunc
	debounce time.Duration
	logger   *slog.Logger

	// Pending reloads by plugin name
	timers map[string]*time.Timer

	// Lifecycle
	started  bool
	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the watcher logger.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher creates a watcher over the loader's search paths.
func NewWatcher(loader *Loader, reload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	if loader == nil || reload == nil {
		return nil, ErrInvalidPlugin
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		loader:   loader,
		reload:   reload,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		timers:   make(map[string]*time.Timer),
		closeCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(slog.String("component", "watcher"))
	return w, nil
}

// Start watches every search path and plugin directory and begins
// dispatching reloads. Missing search paths are skipped.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.started {
		return nil
	}

	for _, root := range w.loader.Paths() {
		if err := w.watchTree(root); err != nil {
			return err
		}
	}

	w.started = true
	w.closedWg.Add(1)
	go w.processLoop(ctx)
	return nil
}

// watchTree adds root and every directory below it.
func (w *Watcher) watchTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.fsw.Add(path)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// WatchList returns the watched directories.
func (w *Watcher) WatchList() []string {
	list := w.fsw.WatchList()
	slices.Sort(list)
	return list
}

func (w *Watcher) processLoop(ctx context.Context) {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFSEvent(ctx, ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watch error", slog.Any("error", err))
		}
	}
}

// handleFSEvent maps a file event to its plugin and schedules a reload.
func (w *Watcher) handleFSEvent(ctx context.Context, ev fsnotify.Event) {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return
	}

	// New directories inside a plugin get watched too.
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.watchTree(ev.Name)
			return
		}
	}

	if !isPluginFile(ev.Name) {
		return
	}

	name, ok := w.loader.Owner(ev.Name)
	if !ok {
		w.logger.Debug("change outside known plugins", slog.String("path", ev.Name))
		return
	}
	w.schedule(ctx, name)
}

func isPluginFile(path string) bool {
	if filepath.Ext(path) == ".lua" {
		return true
	}
	return slices.Contains(manifestFiles, filepath.Base(path))
}

// schedule (re)arms the debounce timer for name.
func (w *Watcher) schedule(ctx context.Context, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if t, ok := w.timers[name]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[name] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, name)
		closed := w.closed
		w.mu.Unlock()

		if closed || ctx.Err() != nil {
			return
		}
		w.logger.Info("plugin changed, reloading", slog.String("plugin", name))
		w.reload(ctx, name)
	})
}

// Pending returns the number of reloads waiting for their debounce.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timers)
}

// Close stops watching and cancels pending reloads.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	for name, t := range w.timers {
		t.Stop()
		delete(w.timers, name)
	}
	w.mu.Unlock()

	err := w.fsw.Close()
	w.closedWg.Wait()
	return err
}
