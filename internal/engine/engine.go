// Package engine drives full walks and incremental updates over an ordered
// set of consumers such as the index and the hierarchy counters.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/changeset"
	"github.com/starford/folio/internal/resolver"
	"github.com/starford/folio/internal/storage"
)

// Source lists the content root and decides which paths are articles.
// *storage.FS satisfies it.
type Source interface {
	List(dir string) ([]storage.FileMeta, error)
	Accepts(rel string) bool
}

// Baseline reports the content-relative path→checksum pairs last indexed.
type Baseline interface {
	Checksums(ctx context.Context) (map[string]string, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithContentDir sets the repository-relative directory of the content
// root. Change sets are filtered and rebased against it.
func WithContentDir(dir string) Option {
	return func(e *Engine) {
		e.contentDir = strings.Trim(dir, "/")
	}
}

// WithConsumers appends consumers; hooks run in registration order.
func WithConsumers(c ...Consumer) Option {
	return func(e *Engine) {
		e.consumers = append(e.consumers, c...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// Engine is single-threaded: callers must not run walks or updates
// concurrently.
type Engine struct {
	source     Source
	resolver   *resolver.Resolver
	contentDir string
	consumers  []Consumer
	logger     *slog.Logger
}

// New creates an Engine reading articles from source through res.
func New(source Source, res *resolver.Resolver, opts ...Option) *Engine {
	e := &Engine{
		source:   source,
		resolver: res,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Walk rebuilds every consumer from the articles currently on disk, visited
// in fullname order. Running it twice yields the same state.
func (e *Engine) Walk(ctx context.Context) error {
	start := time.Now()
	fullnames, err := e.fullnames()
	if err != nil {
		return fmt.Errorf("walk: %w", err)
	}

	for _, c := range e.consumers {
		if err := c.PreWalk(ctx); err != nil {
			return e.abort(ctx, fmt.Errorf("walk: %s: pre-walk: %w", c.Name(), err))
		}
	}
	for _, fn := range fullnames {
		if err := ctx.Err(); err != nil {
			return e.abort(ctx, fmt.Errorf("walk: %w", err))
		}
		a, err := e.resolver.Resolve(ctx, fn)
		if err != nil {
			return e.abort(ctx, fmt.Errorf("walk: %w", err))
		}
		for _, c := range e.consumers {
			if err := c.VisitArticle(ctx, a); err != nil {
				return e.abort(ctx, fmt.Errorf("walk: %s: visit %s: %w", c.Name(), fn, err))
			}
		}
	}
	for _, c := range e.consumers {
		if err := c.PostWalk(ctx); err != nil {
			return e.abort(ctx, fmt.Errorf("walk: %s: post-walk: %w", c.Name(), err))
		}
	}

	e.logger.Info("walk: done",
		slog.Int("articles", len(fullnames)),
		slog.Duration("took", time.Since(start)))
	return nil
}

// fullnames lists the distinct article fullnames under the content root.
// Files sharing a fullname under different extensions are one article.
func (e *Engine) fullnames() ([]string, error) {
	files, err := e.source.List("")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(files))
	var out []string
	for _, f := range files {
		fn, _, ok := e.resolver.Split(f.Path)
		if !ok {
			continue
		}
		if _, dup := seen[fn]; dup {
			continue
		}
		seen[fn] = struct{}{}
		out = append(out, fn)
	}
	sort.Strings(out)
	return out, nil
}

// plan is a change set translated into article fullnames.
type plan struct {
	deleted  []string
	modified []string
	added    []string
	readded  map[string]bool // both deleted and added
}

func (p plan) empty() bool {
	return len(p.deleted) == 0 && len(p.modified) == 0 && len(p.added) == 0
}

// plan normalises cs, keeps the paths under the content directory that name
// articles, and maps them to fullnames.
func (e *Engine) plan(cs changeset.ChangeSet) plan {
	cs = changeset.ContentChanges(changeset.Normalize(cs), e.contentDir)

	deleted, modified, added := e.toFullnames(cs.Deleted), e.toFullnames(cs.Modified), e.toFullnames(cs.Added)
	p := plan{readded: make(map[string]bool)}
	isDeleted := make(map[string]bool, len(deleted))
	for _, fn := range deleted {
		isDeleted[fn] = true
	}
	isAdded := make(map[string]bool, len(added))
	for _, fn := range added {
		isAdded[fn] = true
		if isDeleted[fn] {
			p.readded[fn] = true
		}
	}

	p.deleted = deleted
	for _, fn := range modified {
		// Two extensions of one article may be reported separately.
		if !isDeleted[fn] && !isAdded[fn] {
			p.modified = append(p.modified, fn)
		}
	}
	p.added = added
	// A deleted file may leave the article alive under another extension.
	for _, fn := range deleted {
		if !isAdded[fn] {
			p.added = append(p.added, fn)
		}
	}
	sort.Strings(p.added)
	return p
}

func (e *Engine) toFullnames(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	var out []string
	for _, p := range paths {
		rel := p
		if e.contentDir != "" {
			rel = strings.TrimPrefix(p, e.contentDir+"/")
		}
		if !e.source.Accepts(rel) {
			continue
		}
		fn, _, ok := e.resolver.Split(rel)
		if !ok {
			continue
		}
		if _, dup := seen[fn]; dup {
			continue
		}
		seen[fn] = struct{}{}
		out = append(out, fn)
	}
	sort.Strings(out)
	return out
}

// Update applies a change set of repository-relative paths to every
// consumer: deletions first, then modifications as remove-then-add, then
// additions, each resolved from the current disk state. Any error aborts
// every consumer so no partial update is published.
func (e *Engine) Update(ctx context.Context, cs changeset.ChangeSet) error {
	p := e.plan(cs)
	if p.empty() {
		e.logger.Debug("update: nothing to do")
		return nil
	}

	for _, c := range e.consumers {
		if err := c.BeginUpdate(ctx); err != nil {
			return e.abort(ctx, fmt.Errorf("update: %s: begin: %w", c.Name(), err))
		}
	}

	for _, fn := range p.deleted {
		if err := e.remove(ctx, fn, p.readded[fn]); err != nil {
			return e.abort(ctx, err)
		}
	}
	for _, fn := range p.modified {
		if err := e.remove(ctx, fn, false); err != nil {
			return e.abort(ctx, err)
		}
		if err := e.add(ctx, fn); err != nil {
			return e.abort(ctx, err)
		}
	}
	for _, fn := range p.added {
		if err := e.add(ctx, fn); err != nil {
			return e.abort(ctx, err)
		}
	}

	for _, c := range e.consumers {
		if err := c.CommitUpdate(ctx); err != nil {
			return e.abort(ctx, fmt.Errorf("update: %s: commit: %w", c.Name(), err))
		}
	}

	e.logger.Info("update: applied",
		slog.Int("deleted", len(p.deleted)),
		slog.Int("modified", len(p.modified)),
		slog.Int("added", len(p.added)))
	return nil
}

// remove drops fullname from every consumer. With tolerateStale a missing
// record is expected: the path was created and deleted within one change set.
func (e *Engine) remove(ctx context.Context, fullname string, tolerateStale bool) error {
	for _, c := range e.consumers {
		err := c.RemoveArticle(ctx, fullname)
		if err == nil {
			continue
		}
		if tolerateStale && errors.Is(err, apperr.ErrStaleRecordMissing) {
			e.logger.Debug("update: no stored record",
				slog.String("consumer", c.Name()),
				slog.String("fullname", fullname))
			continue
		}
		return fmt.Errorf("update: %s: remove %s: %w", c.Name(), fullname, err)
	}
	return nil
}

// add resolves fullname from disk and adds it to every consumer. An article
// no longer on disk is skipped.
func (e *Engine) add(ctx context.Context, fullname string) error {
	a, err := e.resolver.Resolve(ctx, fullname)
	if errors.Is(err, apperr.ErrNotFound) {
		e.logger.Debug("update: skipped, not on disk", slog.String("fullname", fullname))
		return nil
	}
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	for _, c := range e.consumers {
		if err := c.AddArticle(ctx, a); err != nil {
			return fmt.Errorf("update: %s: add %s: %w", c.Name(), a.Fullname, err)
		}
	}
	return nil
}

// Scan derives a change set by comparing baseline checksums with the
// content root and applies it. It returns the applied change set in
// repository-relative form.
func (e *Engine) Scan(ctx context.Context, baseline Baseline) (changeset.ChangeSet, error) {
	previous, err := baseline.Checksums(ctx)
	if err != nil {
		return changeset.ChangeSet{}, fmt.Errorf("scan: %w", err)
	}
	files, err := e.source.List("")
	if err != nil {
		return changeset.ChangeSet{}, fmt.Errorf("scan: %w", err)
	}
	cs := e.repoRelative(changeset.Diff(previous, e.primaries(files)))
	if cs.Empty() {
		e.logger.Debug("scan: index up to date")
		return cs, nil
	}
	e.logger.Info("scan: changes detected",
		slog.Int("added", len(cs.Added)),
		slog.Int("modified", len(cs.Modified)),
		slog.Int("deleted", len(cs.Deleted)))
	return cs, e.Update(ctx, cs)
}

// primaries maps the file backing each fullname to its checksum. A fullname
// with files under several extensions is backed by the one Resolve picks.
func (e *Engine) primaries(files []storage.FileMeta) map[string]string {
	rank := make(map[string]int)
	for i, ext := range e.resolver.Extensions() {
		rank[ext] = i
	}
	type pick struct {
		file storage.FileMeta
		rank int
	}
	best := make(map[string]pick, len(files))
	for _, f := range files {
		fn, ext, ok := e.resolver.Split(f.Path)
		if !ok {
			continue
		}
		if cur, seen := best[fn]; seen && cur.rank <= rank[ext] {
			continue
		}
		best[fn] = pick{file: f, rank: rank[ext]}
	}
	out := make(map[string]string, len(best))
	for _, p := range best {
		out[p.file.Path] = p.file.Checksum
	}
	return out
}

func (e *Engine) repoRelative(cs changeset.ChangeSet) changeset.ChangeSet {
	if e.contentDir == "" {
		return cs
	}
	prefix := func(paths []string) []string {
		out := make([]string, len(paths))
		for i, p := range paths {
			out[i] = e.contentDir + "/" + p
		}
		return out
	}
	return changeset.ChangeSet{
		Added:    prefix(cs.Added),
		Modified: prefix(cs.Modified),
		Deleted:  prefix(cs.Deleted),
	}
}

// abort rolls back every consumer and returns cause.
func (e *Engine) abort(ctx context.Context, cause error) error {
	for _, c := range e.consumers {
		if err := c.Abort(ctx); err != nil {
			e.logger.Error("engine: abort failed",
				slog.String("consumer", c.Name()),
				slog.String("error", err.Error()))
		}
	}
	e.logger.Error("engine: aborted", slog.String("error", cause.Error()))
	return cause
}
