package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starford/folio/internal/changeset"
	"github.com/starford/folio/internal/storage"
	"github.com/starford/folio/internal/testutil"
)

type recorder struct {
	mu   sync.Mutex
	sets []changeset.ChangeSet
}

func (r *recorder) handle(_ context.Context, cs changeset.ChangeSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets = append(r.sets, cs)
	return nil
}

// seen reports whether any batch carried p in the given list.
func (r *recorder) seen(list string, p string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cs := range r.sets {
		var paths []string
		switch list {
		case "added":
			paths = cs.Added
		case "modified":
			paths = cs.Modified
		case "deleted":
			paths = cs.Deleted
		}
		for _, q := range paths {
			if q == p {
				return true
			}
		}
	}
	return false
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, cs := range r.sets {
		out = append(out, cs.Paths()...)
	}
	return out
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatcher(t *testing.T, opts ...Option) (string, *recorder) {
	t.Helper()
	root := t.TempDir()
	filter, err := storage.NewFS(root, storage.WithExtensions("md"), storage.WithIgnore("drafts"))
	require.NoError(t, err)

	rec := &recorder{}
	opts = append([]Option{
		WithPrefix("content"),
		WithDebounce(50 * time.Millisecond),
		WithLogger(testutil.Logger()),
	}, opts...)
	w := New(root, filter, rec.handle, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	time.Sleep(100 * time.Millisecond)
	return root, rec
}

func TestWatcher_NewFileReportedAsAdded(t *testing.T) {
	root, rec := startWatcher(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "new.md"), []byte("# New"), 0o644))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.seen("added", "content/new.md")
	}, "new file not reported")
	require.False(t, rec.seen("modified", "content/new.md"), "write of a new file folded into add")
}

func TestWatcher_WriteAndRemove(t *testing.T) {
	root, rec := startWatcher(t)
	p := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(p, []byte("v1"), 0o644))
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.seen("added", "content/note.md")
	}, "create not reported")

	require.NoError(t, os.WriteFile(p, []byte("v2"), 0o644))
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.seen("modified", "content/note.md")
	}, "write not reported")

	require.NoError(t, os.Remove(p))
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.seen("deleted", "content/note.md")
	}, "remove not reported")
}

func TestWatcher_NewDirectory(t *testing.T) {
	root, rec := startWatcher(t)

	dir := filepath.Join(root, "cooking", "indian")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "madras.md"), []byte("hot"), 0o644))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.seen("added", "content/cooking/indian/madras.md")
	}, "file in new directory not reported")

	// The new directory is watched from now on.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "korma.md"), []byte("mild"), 0o644))
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.seen("added", "content/cooking/indian/korma.md")
	}, "file in watched new directory not reported")
}

func TestWatcher_SkipsForeignAndIgnoredFiles(t *testing.T) {
	root, rec := startWatcher(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "image.png"), []byte("png"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "drafts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "drafts", "wip.md"), []byte("wip"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "real.md"), []byte("real"), 0o644))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.seen("added", "content/real.md")
	}, "accepted file not reported")
	require.NotContains(t, rec.all(), "content/image.png")
	require.NotContains(t, rec.all(), "content/drafts/wip.md")
}

func TestWatcher_DirectoryMoveTriggersReconcile(t *testing.T) {
	var reconciled atomic.Int32
	root, _ := startWatcher(t, WithReconcile(func(context.Context) error {
		reconciled.Add(1)
		return nil
	}))

	// Let the watcher pick up the new directory before moving it.
	dir := filepath.Join(root, "old")
	require.NoError(t, os.Mkdir(dir, 0o755))
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.Rename(dir, filepath.Join(root, "new")))
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return reconciled.Load() > 0
	}, "directory move did not trigger reconcile")
}
