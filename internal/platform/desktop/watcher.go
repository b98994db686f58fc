package desktop

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/0xADE/ade-appsd/internal/appindex"
)

// Watcher turns .desktop file changes in the application directories and
// their subdirectories into install and uninstall events.
type Watcher struct {
	fs     *fsnotify.Watcher
	events chan appindex.Event
	logger *slog.Logger

	mu      sync.Mutex
	roots   map[string]struct{}
	watched map[string]string // watched directory -> root it belongs to
}

// NewWatcher creates a watcher with no directories
func NewWatcher(logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		fs:      fsw,
		events:  make(chan appindex.Event, 64),
		logger:  logger,
		roots:   make(map[string]struct{}),
		watched: make(map[string]string),
	}, nil
}

// Watch makes dirs the watched set: missing directories are added with their
// subdirectories and directories no longer listed are dropped. Nonexistent
// directories are skipped.
func (w *Watcher) Watch(dirs []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	want := make(map[string]struct{}, len(dirs))
	for _, dir := range dirs {
		want[dir] = struct{}{}
		if _, ok := w.roots[dir]; ok {
			continue
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		w.roots[dir] = struct{}{}
		w.addTree(dir, dir)
	}

	for root := range w.roots {
		if _, ok := want[root]; ok {
			continue
		}
		for dir, r := range w.watched {
			if r == root {
				_ = w.fs.Remove(dir)
				delete(w.watched, dir)
			}
		}
		delete(w.roots, root)
	}
}

// addTree watches dir and every directory below it, returning the .desktop
// files found on the way. Callers hold w.mu.
func (w *Watcher) addTree(root, dir string) []string {
	var found []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if strings.HasSuffix(path, ".desktop") {
				found = append(found, path)
			}
			return nil
		}
		if _, ok := w.watched[path]; ok {
			return nil
		}
		if err := w.fs.Add(path); err != nil {
			w.logger.Warn("failed to watch application directory", "dir", path, "error", err)
			return filepath.SkipDir
		}
		w.watched[path] = root
		return nil
	})
	return found
}

// Events returns the event channel. It is closed when Run returns.
func (w *Watcher) Events() <-chan appindex.Event {
	return w.events
}

// Run forwards file system notifications until ctx is done, then releases the watcher
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	defer w.fs.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			for _, out := range w.translate(ev) {
				w.logger.Debug("desktop file changed", "path", out.Path, "kind", out.Kind)
				select {
				case w.events <- out:
				case <-ctx.Done():
					return nil
				}
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("desktop watcher error", "error", err)
		}
	}
}

// translate maps one notification to index events. A new subdirectory is
// watched from then on and any .desktop files already inside it count as installs.
func (w *Watcher) translate(ev fsnotify.Event) []appindex.Event {
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			defer w.mu.Unlock()
			root, ok := w.watched[filepath.Dir(ev.Name)]
			if !ok {
				return nil
			}
			var out []appindex.Event
			for _, path := range w.addTree(root, ev.Name) {
				out = append(out, appindex.Event{Kind: appindex.EventInstalled, Path: path})
			}
			return out
		}
	}
	if ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
		w.forget(ev.Name)
	}

	kind, relevant := classify(ev)
	if !relevant {
		return nil
	}
	return []appindex.Event{{Kind: kind, Path: ev.Name}}
}

// forget drops a removed directory and everything watched below it. A removed
// root is watched again on the next Watch call that lists it.
func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.roots, path)
	prefix := path + string(os.PathSeparator)
	for dir := range w.watched {
		if dir == path || strings.HasPrefix(dir, prefix) {
			delete(w.watched, dir)
		}
	}
}

func classify(ev fsnotify.Event) (appindex.EventKind, bool) {
	if !strings.HasSuffix(ev.Name, ".desktop") {
		return 0, false
	}
	switch {
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		return appindex.EventUninstalled, true
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		return appindex.EventInstalled, true
	default:
		return 0, false
	}
}
