// Package resolver turns a fullname into an Article whose metadata is merged
// from four layers, lowest precedence first: file system, version control,
// enrichers, and the file's own front matter.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/article"
	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/storage"
)

// FileHistory is what a version-control collaborator knows about a file.
type FileHistory struct {
	Created  time.Time // first commit touching the file
	Modified time.Time // last commit touching the file
	Author   string    // author of the first commit
}

// History looks up version-control metadata. It returns (nil, nil) for
// untracked files.
type History interface {
	FileHistory(ctx context.Context, repoPath string) (*FileHistory, error)
}

// Enricher sets or overrides article attributes on every fetch.
type Enricher interface {
	Enrich(ctx context.Context, a *article.Article) error
}

// EnricherFunc adapts a function to Enricher.
type EnricherFunc func(ctx context.Context, a *article.Article) error

// Enrich calls f.
func (f EnricherFunc) Enrich(ctx context.Context, a *article.Article) error {
	return f(ctx, a)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHistory registers a version-control collaborator. contentDir is the
// repository-relative directory of the content root, used to build the
// paths handed to h.
func WithHistory(h History, contentDir string) Option {
	return func(r *Resolver) {
		r.history = h
		r.contentDir = strings.Trim(contentDir, "/")
	}
}

// WithEnrichers appends enrichers; they run in the order given.
func WithEnrichers(e ...Enricher) Option {
	return func(r *Resolver) {
		r.enrichers = append(r.enrichers, e...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// Resolver resolves fullnames against a content store. It keeps no cache.
type Resolver struct {
	store      storage.Provider
	extensions []string
	history    History
	contentDir string
	enrichers  []Enricher
	logger     *slog.Logger
}

// New creates a Resolver trying extensions in the given order.
func New(store storage.Provider, extensions []string, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		logger: slog.Default(),
	}
	for _, e := range extensions {
		r.extensions = append(r.extensions, strings.TrimPrefix(e, "."))
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Extensions returns the registered extensions in lookup order.
func (r *Resolver) Extensions() []string {
	return r.extensions
}

// Split maps a content-relative file path to its fullname and extension.
// ok is false for files whose extension is not registered.
func (r *Resolver) Split(rel string) (fullname, ext string, ok bool) {
	ext = strings.TrimPrefix(path.Ext(rel), ".")
	for _, e := range r.extensions {
		if e == ext {
			return strings.TrimSuffix(rel, "."+ext), ext, true
		}
	}
	return "", "", false
}

// Exists reports whether a file exists for fullname under any registered
// extension.
func (r *Resolver) Exists(fullname string) bool {
	for _, ext := range r.extensions {
		if st, err := r.store.Stat(fullname + "." + ext); err == nil && !st.IsDir() {
			return true
		}
	}
	return false
}

// Resolve loads the article for fullname. It fails with apperr.ErrNotFound
// when no file exists for any registered extension.
func (r *Resolver) Resolve(ctx context.Context, fullname string) (*article.Article, error) {
	fullname = strings.Trim(fullname, "/")
	if fullname == "" {
		return nil, fmt.Errorf("resolver: empty fullname: %w", apperr.ErrNotFound)
	}
	for _, ext := range r.extensions {
		st, err := r.store.Stat(fullname + "." + ext)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("resolver: %w", err)
		}
		if st.IsDir() {
			continue
		}
		return r.build(ctx, fullname, ext, st)
	}
	return nil, fmt.Errorf("resolver: %s: %w", fullname, apperr.ErrNotFound)
}

func (r *Resolver) build(ctx context.Context, fullname, ext string, st fs.FileInfo) (*article.Article, error) {
	info := article.NewInfo(fullname, ext)
	filename := info.Filename()

	// File system layer.
	info.CreateTime = st.ModTime().Unix()
	info.ModifiedTime = info.CreateTime

	// Version-control layer.
	if r.history != nil {
		repoPath := filename
		if r.contentDir != "" {
			repoPath = r.contentDir + "/" + filename
		}
		h, err := r.history.FileHistory(ctx, repoPath)
		if err != nil {
			return nil, fmt.Errorf("resolver: history %s: %w", repoPath, err)
		}
		if h != nil {
			if !h.Created.IsZero() {
				info.CreateTime = h.Created.Unix()
			}
			if !h.Modified.IsZero() {
				info.ModifiedTime = h.Modified.Unix()
			}
			if h.Author != "" {
				info.Author = h.Author
			}
		}
	}

	local, err := r.readHeader(filename)
	if err != nil {
		return nil, err
	}

	a := article.New(info, func() ([]byte, string, error) {
		data, err := r.store.Read(filename)
		if err != nil {
			return nil, "", fmt.Errorf("resolver: %w", err)
		}
		res, err := parser.Parse(data)
		if err != nil {
			return nil, "", fmt.Errorf("resolver: parse %s: %w", filename, err)
		}
		return data, res.Body, nil
	})

	// Enricher layer, last registered wins.
	for _, e := range r.enrichers {
		if err := e.Enrich(ctx, a); err != nil {
			return nil, fmt.Errorf("resolver: enrich %s: %w", fullname, err)
		}
	}

	// Front matter layer.
	r.applyLocal(&a.Info, local)
	return a, nil
}

func (r *Resolver) readHeader(filename string) (map[string]any, error) {
	rc, err := r.store.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	defer rc.Close()
	meta, err := parser.ReadHeader(rc)
	if err != nil {
		return nil, fmt.Errorf("resolver: read header %s: %w", filename, err)
	}
	return meta, nil
}

// applyLocal overlays front matter. Every key lands in Meta; keys naming a
// typed field also set that field. Identity fields are derived from the
// path and are never overridden.
func (r *Resolver) applyLocal(info *article.Info, local map[string]any) {
	for k, v := range local {
		info.SetMeta(k, v)
		switch k {
		case "author":
			if s, ok := v.(string); ok {
				info.Author = s
			}
		case "created", "date":
			r.setTime(&info.CreateTime, info.Fullname, k, v)
		case "modified", "updated":
			r.setTime(&info.ModifiedTime, info.Fullname, k, v)
		}
	}
}

func (r *Resolver) setTime(dst *int64, fullname, key string, v any) {
	ts, ok := ParseTime(v)
	if !ok {
		r.logger.Debug("resolver: unparseable time",
			slog.String("fullname", fullname),
			slog.String("key", key),
			slog.Any("value", v))
		return
	}
	*dst = ts
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
}

// ParseTime converts a front matter value to unix seconds. Strings are
// tried as epoch seconds and then as common date layouts in UTC.
func ParseTime(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		return int64(t), true
	case time.Time:
		return t.Unix(), true
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.Unix(), true
			}
		}
	}
	return 0, false
}
