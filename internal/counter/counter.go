// Package counter maintains category, tag and date-archive hierarchy counts
// as walk/update consumers. Each counter persists a snapshot of its tree plus
// the keys it recorded per article, so stale entries can be removed from
// stored state rather than from files that may already be gone.
package counter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/article"
	"github.com/starford/folio/internal/hierarchy"
	"github.com/starford/folio/internal/storage"
)

// KeyFunc returns the tree paths an article is counted under.
type KeyFunc func(info *article.Info) []string

// CategoryKeys counts an article under its category. Top-level articles
// are counted at the root.
func CategoryKeys(info *article.Info) []string {
	return []string{info.Category}
}

// TagKeys counts an article once per tag. Tags are flat: each one is a
// single tree segment, with "/" escaped by TagSegment.
func TagKeys(info *article.Info) []string {
	tags := info.Tags()
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		out = append(out, TagSegment(tag))
	}
	return out
}

var tagEscaper = strings.NewReplacer("%", "%25", "/", "%2F")

// TagSegment returns the tree segment a tag is counted under.
func TagSegment(tag string) string {
	return tagEscaper.Replace(tag)
}

// ArchiveKeys counts an article under the YYYY/MM/DD of its creation time
// in loc.
func ArchiveKeys(loc *time.Location) KeyFunc {
	if loc == nil {
		loc = time.UTC
	}
	return func(info *article.Info) []string {
		return []string{time.Unix(info.CreateTime, 0).In(loc).Format("2006/01/02")}
	}
}

type snapshot struct {
	Tree     *hierarchy.Count    `json:"tree"`
	Articles map[string][]string `json:"articles"`
}

func emptySnapshot() *snapshot {
	return &snapshot{Tree: hierarchy.New(), Articles: make(map[string][]string)}
}

// Counter is a hierarchy counter bound to a key function. Changes are held
// in memory and written to the state store on PostWalk or CommitUpdate.
type Counter struct {
	name   string
	keys   KeyFunc
	store  storage.Provider
	logger *slog.Logger

	work *snapshot
}

// New creates a counter persisted as <name>.json in store.
func New(name string, keys KeyFunc, store storage.Provider, logger *slog.Logger) *Counter {
	return &Counter{name: name, keys: keys, store: store, logger: logger}
}

// NewCategories counts articles per category.
func NewCategories(store storage.Provider, logger *slog.Logger) *Counter {
	return New("categories", CategoryKeys, store, logger)
}

// NewTags counts articles per tag.
func NewTags(store storage.Provider, logger *slog.Logger) *Counter {
	return New("tags", TagKeys, store, logger)
}

// NewArchive counts articles per creation day.
func NewArchive(store storage.Provider, loc *time.Location, logger *slog.Logger) *Counter {
	return New("archive", ArchiveKeys(loc), store, logger)
}

// Name identifies the counter and its snapshot file.
func (c *Counter) Name() string { return c.name }

func (c *Counter) file() string { return c.name + ".json" }

// Tree returns the persisted tree. A counter never flushed is empty.
func (c *Counter) Tree() (*hierarchy.Count, error) {
	s, err := c.load()
	if err != nil {
		return nil, err
	}
	return s.Tree, nil
}

func (c *Counter) PreWalk(_ context.Context) error {
	c.work = emptySnapshot()
	return nil
}

func (c *Counter) VisitArticle(_ context.Context, a *article.Article) error {
	return c.add(&a.Info)
}

func (c *Counter) PostWalk(_ context.Context) error {
	if err := c.flush(); err != nil {
		return err
	}
	c.logger.Info("counter: rebuilt",
		slog.String("counter", c.name),
		slog.Int("articles", c.work.Tree.Count))
	c.work = nil
	return nil
}

// BeginUpdate loads the persisted snapshot. A missing snapshot counts as
// empty, so removals against it fail as stale.
func (c *Counter) BeginUpdate(_ context.Context) error {
	s, err := c.load()
	if err != nil {
		return err
	}
	c.work = s
	return nil
}

// RemoveArticle uncounts the keys recorded for fullname.
func (c *Counter) RemoveArticle(_ context.Context, fullname string) error {
	if c.work == nil {
		return fmt.Errorf("counter: %s: remove outside update", c.name)
	}
	keys, ok := c.work.Articles[fullname]
	if !ok {
		return fmt.Errorf("counter: %s: remove %s: %w", c.name, fullname, apperr.ErrStaleRecordMissing)
	}
	for _, k := range keys {
		if err := c.work.Tree.Remove(k); err != nil {
			return fmt.Errorf("counter: %s: remove %s: %w", c.name, fullname, err)
		}
	}
	delete(c.work.Articles, fullname)
	return nil
}

func (c *Counter) AddArticle(_ context.Context, a *article.Article) error {
	return c.add(&a.Info)
}

func (c *Counter) CommitUpdate(_ context.Context) error {
	if err := c.flush(); err != nil {
		return err
	}
	c.work = nil
	return nil
}

// Abort drops in-memory changes; the persisted snapshot is untouched.
func (c *Counter) Abort(_ context.Context) error {
	c.work = nil
	return nil
}

// add counts info, first uncounting any keys already recorded for it.
func (c *Counter) add(info *article.Info) error {
	if c.work == nil {
		return fmt.Errorf("counter: %s: add outside walk or update", c.name)
	}
	if old, ok := c.work.Articles[info.Fullname]; ok {
		for _, k := range old {
			if err := c.work.Tree.Remove(k); err != nil {
				return fmt.Errorf("counter: %s: replace %s: %w", c.name, info.Fullname, err)
			}
		}
	}
	keys := c.keys(info)
	for _, k := range keys {
		c.work.Tree.Add(k)
	}
	c.work.Articles[info.Fullname] = keys
	return nil
}

func (c *Counter) load() (*snapshot, error) {
	data, err := c.store.Read(c.file())
	if errors.Is(err, fs.ErrNotExist) {
		return emptySnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("counter: %s: %w", c.name, err)
	}
	s := emptySnapshot()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("counter: %s: decode snapshot: %w", c.name, err)
	}
	if s.Tree == nil {
		s.Tree = hierarchy.New()
	}
	if s.Articles == nil {
		s.Articles = make(map[string][]string)
	}
	return s, nil
}

func (c *Counter) flush() error {
	if c.work == nil {
		return fmt.Errorf("counter: %s: nothing staged", c.name)
	}
	c.work.Tree.Sort(false)
	data, err := json.MarshalIndent(c.work, "", "  ")
	if err != nil {
		return fmt.Errorf("counter: %s: encode snapshot: %w", c.name, err)
	}
	if err := c.store.Write(c.file(), data); err != nil {
		return fmt.Errorf("counter: %s: %w", c.name, err)
	}
	return nil
}
