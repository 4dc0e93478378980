package orchestrator

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/pseudomuto/gatekeeper/pkg/resource"
)

const defaultDebounce = 500 * time.Millisecond

type (
	// WatchOption customizes Watch.
	WatchOption func(*watcher)

	watcher struct {
		o        *Orchestrator
		debounce time.Duration
		onCheck  func(name string, err error)

		fsw  *fsnotify.Watcher
		dirs map[string]string // directory -> database

		mu      sync.Mutex
		pending map[string]time.Time // database -> last event
	}
)

// WithDebounce sets how long the scripts of a database must be quiet before
// its state is checked again.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *watcher) { w.debounce = d }
}

// WithCheckHook sets a function called with the result of every check.
func WithCheckHook(fn func(name string, err error)) WatchOption {
	return func(w *watcher) { w.onCheck = fn }
}

// Watch re-runs CheckState for a database whenever files under its script
// locations change, logging the result. It blocks until ctx is done.
//
// Only the filesystem backend can be watched.
func (o *Orchestrator) Watch(ctx context.Context, opts ...WatchOption) error {
	if o.locator.Backend() != resource.BackendFilesystem {
		return errors.Errorf("cannot watch the %s backend", o.locator.Backend())
	}

	engines, err := o.Engines()
	if err != nil {
		return err
	}

	w := &watcher{
		o:        o,
		debounce: defaultDebounce,
		dirs:     make(map[string]string),
		pending:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.fsw, err = fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}
	defer func() { _ = w.fsw.Close() }()

	for _, name := range o.cfg.Names() {
		if _, ok := engines[name]; !ok {
			continue
		}

		if err := w.addTree(name, o.diskPath(o.baseLocation(name))); err != nil {
			return err
		}
	}

	slog.Info("Watching migration scripts", "databases", len(engines), "directories", len(w.dirs))
	return w.loop(ctx)
}

func (o *Orchestrator) diskPath(location string) string {
	return filepath.Join(o.locator.Root(), filepath.FromSlash(location))
}

func (w *watcher) addTree(name, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Wrapf(err, "failed to walk %s", p)
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		if err := w.fsw.Add(p); err != nil {
			return errors.Wrapf(err, "failed to watch %s", p)
		}

		w.dirs[p] = name
		slog.Debug("Watching directory", "database", name, "path", p)
		return nil
	})
}

func (w *watcher) loop(ctx context.Context) error {
	tick := w.debounce / 2
	if tick <= 0 {
		tick = time.Millisecond
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *watcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	name, ok := w.dirs[filepath.Dir(event.Name)]
	if !ok {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(name, event.Name); err != nil {
				slog.Warn("Failed to watch new directory", "path", event.Name, "error", err)
			}
		}
	}

	w.mu.Lock()
	w.pending[name] = time.Now()
	w.mu.Unlock()
}

func (w *watcher) flush(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for name, t := range w.pending {
		if now.Sub(t) >= w.debounce {
			ready = append(ready, name)
		}
	}
	for _, name := range ready {
		delete(w.pending, name)
	}
	w.mu.Unlock()

	slices.Sort(ready)
	for _, name := range ready {
		err := w.o.CheckState(ctx, name)
		if err != nil {
			slog.Error("Migration check failed", "database", name, "error", err)
		} else {
			slog.Info("Database is up to date", "database", name)
		}

		if w.onCheck != nil {
			w.onCheck(name, err)
		}
	}
}
