package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// skipDirs are never watched; they churn constantly and are excluded
// from indexing anyway.
var skipDirs = map[string]bool{
	"vendor":       true,
	"node_modules": true,
	".git":         true,
	"tmp":          true,
	"log":          true,
}

// FSWatcher watches a workspace root recursively via fsnotify, feeding
// raw events through a Debouncer. New subdirectories are added to the
// watch as their create events arrive.
type FSWatcher struct {
	opts      Options
	root      string
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	errors    chan error

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
}

// NewFSWatcher builds a watcher with opts.
func NewFSWatcher(opts Options) *FSWatcher {
	opts = opts.WithDefaults()
	return &FSWatcher{
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow),
		errors:    make(chan error, 8),
	}
}

// Start implements Watcher.
func (w *FSWatcher) Start(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		_ = fsw.Close()
		return nil
	}
	w.root = absRoot
	w.fsw = fsw
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	if err := w.addRecursive(absRoot); err != nil {
		_ = fsw.Close()
		return err
	}

	go w.loop(ctx)
	return nil
}

// addRecursive registers root and every non-excluded subdirectory.
func (w *FSWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDirs[d.Name()] {
			return fs.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			slog.Warn("watch add failed", slog.String("path", path), slog.String("error", addErr.Error()))
		}
		return nil
	})
}

func (w *FSWatcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleRaw(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

// handleRaw converts one fsnotify event into a FileEvent and feeds the
// debouncer, extending the watch into newly created directories.
func (w *FSWatcher) handleRaw(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	for _, part := range strings.Split(rel, "/") {
		if skipDirs[part] {
			return
		}
	}

	isDir := false
	if info, statErr := os.Lstat(ev.Name); statErr == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir {
			_ = w.addRecursive(ev.Name)
			return
		}
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0:
		op = OpDelete
	case ev.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	base := filepath.Base(ev.Name)
	switch {
	case base == ".gitignore":
		op = OpGitignoreChange
	case !isDir && !watchable(base):
		return
	}

	w.debouncer.Add(FileEvent{
		Path:      rel,
		Operation: op,
		IsDir:     isDir,
		Timestamp: time.Now(),
	})
}

// watchable reports whether a file's changes are worth re-indexing.
func watchable(name string) bool {
	return strings.HasSuffix(name, ".rb") ||
		strings.HasSuffix(name, ".gemspec") ||
		name == "Gemfile" || name == "Gemfile.lock" || name == "Rakefile" ||
		name == ".ruby-version"
}

// Events implements Watcher.
func (w *FSWatcher) Events() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Errors implements Watcher.
func (w *FSWatcher) Errors() <-chan error {
	return w.errors
}

// Stop implements Watcher. Safe to call more than once.
func (w *FSWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	if w.cancel != nil {
		w.cancel()
	}
	var err error
	if w.fsw != nil {
		err = w.fsw.Close()
	}
	w.debouncer.Stop()
	return err
}
