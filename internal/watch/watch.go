// Package watch turns file system events under the content root into
// debounced change sets.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/folio/internal/changeset"
)

// DefaultDebounce is how long the watcher waits for events to settle.
const DefaultDebounce = 200 * time.Millisecond

// Handler receives one normalised change set per settled batch of events.
type Handler func(ctx context.Context, cs changeset.ChangeSet) error

// Filter decides which content-relative paths are articles and which
// directories are skipped. *storage.FS satisfies it.
type Filter interface {
	Accepts(rel string) bool
	Ignored(rel string) bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPrefix makes reported paths repository-relative by prefixing them
// with the content directory.
func WithPrefix(dir string) Option {
	return func(w *Watcher) {
		w.prefix = strings.Trim(dir, "/")
	}
}

// WithDebounce sets the settle delay.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithReconcile registers a full rescan used when a watched directory is
// moved or removed, since the files inside it are not reported one by one.
func WithReconcile(fn func(ctx context.Context) error) Option {
	return func(w *Watcher) {
		w.reconcile = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// Watcher watches a content root recursively.
type Watcher struct {
	root      string
	prefix    string
	filter    Filter
	onChange  Handler
	reconcile func(ctx context.Context) error
	debounce  time.Duration
	logger    *slog.Logger

	dirs map[string]struct{}
}

// New creates a Watcher over root. root must be an absolute directory.
func New(root string, filter Filter, onChange Handler, opts ...Option) *Watcher {
	w := &Watcher{
		root:     filepath.Clean(root),
		filter:   filter,
		onChange: onChange,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		dirs:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes events until ctx is cancelled. Handler errors are logged
// and do not stop the watcher. Events still pending on cancel are dropped.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addDirsRecursive(fw, w.root, nil); err != nil {
		return err
	}
	w.logger.Info("watcher: started", slog.String("root", w.root))

	pending := changeset.NewBuilder()
	rescan := false

	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			timerCh = timer.C
		} else {
			timer.Reset(w.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			cs := pending.Build()
			if rescan && w.reconcile != nil {
				rescan = false
				if err := w.reconcile(ctx); err != nil {
					w.logger.Error("watcher: reconcile failed", slog.String("error", err.Error()))
				}
				continue
			}
			rescan = false
			if cs.Empty() {
				continue
			}
			if err := w.onChange(ctx, cs); err != nil {
				w.logger.Error("watcher: update failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.handle(fw, ev, pending, &rescan) {
				schedule()
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// handle records ev and reports whether anything changed.
func (w *Watcher) handle(fw *fsnotify.Watcher, ev fsnotify.Event, pending *changeset.Builder, rescan *bool) bool {
	abs := filepath.Clean(ev.Name)
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)

	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && w.forgetDir(abs) {
		w.logger.Debug("watcher: directory gone", slog.String("path", rel))
		*rescan = true
		return true
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
			if w.filter.Ignored(rel) {
				return false
			}
			// Files may land in the directory before it is watched.
			n := pending.Len()
			if addErr := w.addDirsRecursive(fw, abs, pending); addErr != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", rel),
					slog.String("error", addErr.Error()))
			} else {
				w.logger.Debug("watcher: watching new dir", slog.String("path", rel))
			}
			return pending.Len() != n
		}
	}

	if !w.filter.Accepts(rel) {
		return false
	}
	p := w.repoPath(rel)
	switch {
	case ev.Op&fsnotify.Create != 0:
		pending.Created(p)
	case ev.Op&fsnotify.Write != 0:
		pending.Written(p)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// The new side of a rename arrives as a separate Create.
		pending.Removed(p)
	default:
		return false
	}
	w.logger.Debug("watcher: event", slog.String("path", p), slog.String("op", ev.Op.String()))
	return true
}

func (w *Watcher) repoPath(rel string) string {
	if w.prefix == "" {
		return rel
	}
	return w.prefix + "/" + rel
}

// addDirsRecursive watches dir and its subdirectories. With found set,
// accepted files already present are recorded as created.
func (w *Watcher) addDirsRecursive(fw *fsnotify.Watcher, dir string, found *changeset.Builder) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(w.root, p)
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && w.filter.Ignored(rel) {
				return filepath.SkipDir
			}
			if err := fw.Add(p); err != nil {
				return err
			}
			w.dirs[p] = struct{}{}
			return nil
		}
		if found != nil && w.filter.Accepts(rel) {
			found.Created(w.repoPath(rel))
		}
		return nil
	})
}

// forgetDir drops abs and everything below it from the watched set and
// reports whether abs was a watched directory.
func (w *Watcher) forgetDir(abs string) bool {
	if _, ok := w.dirs[abs]; !ok {
		return false
	}
	prefix := abs + string(os.PathSeparator)
	for d := range w.dirs {
		if d == abs || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
		}
	}
	return true
}
