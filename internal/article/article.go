// Package article defines the article value objects passed between the
// resolver, the index and the counters.
package article

import (
	"encoding/json"
	"math"
	"path"
	"strings"
)

// Info is the identity and metadata of one article.
type Info struct {
	Fullname     string `json:"fullname"`
	Category     string `json:"category"`
	Slug         string `json:"slug"`
	Extension    string `json:"extension"`
	CreateTime   int64  `json:"create_time"`
	ModifiedTime int64  `json:"modified_time"`
	Author       string `json:"author,omitempty"`
	// Meta holds open-ended metadata contributed by enrichers and front matter.
	Meta map[string]any `json:"meta,omitempty"`
}

// NewInfo derives category and slug from fullname.
func NewInfo(fullname, ext string) Info {
	category := path.Dir(fullname)
	if category == "." {
		category = ""
	}
	return Info{
		Fullname:  fullname,
		Category:  category,
		Slug:      path.Base(fullname),
		Extension: ext,
		Meta:      make(map[string]any),
	}
}

// Filename returns the content-relative file path of the article.
func (i *Info) Filename() string {
	return i.Fullname + "." + i.Extension
}

// Attr looks up a known field or, failing that, a Meta key.
func (i *Info) Attr(name string) (any, bool) {
	switch name {
	case "fullname":
		return i.Fullname, true
	case "category":
		return i.Category, true
	case "slug":
		return i.Slug, true
	case "extension":
		return i.Extension, true
	case "create_time":
		return i.CreateTime, true
	case "modified_time":
		return i.ModifiedTime, true
	case "author":
		if i.Author == "" {
			return nil, false
		}
		return i.Author, true
	}
	v, ok := i.Meta[name]
	return v, ok
}

// SetMeta stores a side-map value, allocating the map if needed.
func (i *Info) SetMeta(key string, value any) {
	if i.Meta == nil {
		i.Meta = make(map[string]any)
	}
	i.Meta[key] = value
}

// Title returns the "title" meta value, falling back to the slug.
func (i *Info) Title() string {
	if s, ok := i.Meta["title"].(string); ok && s != "" {
		return s
	}
	return i.Slug
}

// Tags returns the "tags" meta value as a list.
func (i *Info) Tags() []string {
	return StringList(i.Meta["tags"])
}

// UnmarshalJSON restores Meta values to the shapes the resolver produces:
// string lists become []string and integral numbers become int64.
func (i *Info) UnmarshalJSON(data []byte) error {
	type plain Info
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	for k, v := range p.Meta {
		p.Meta[k] = normalize(v)
	}
	if p.Meta == nil {
		p.Meta = make(map[string]any)
	}
	*i = Info(p)
	return nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return t
			}
			out = append(out, s)
		}
		return out
	}
	return v
}

// StringList coerces a list-like metadata value into []string. A plain
// string is split on commas.
func StringList(v any) []string {
	var raw []string
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		raw = t
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case string:
		raw = strings.Split(t, ",")
	default:
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Loader reads an article file and returns its raw bytes and body.
type Loader func() (raw []byte, body string, err error)

// Article is an Info plus its lazily loaded body.
type Article struct {
	Info

	load   Loader
	raw    []byte
	body   string
	err    error
	loaded bool
}

// New wraps info with a loader that runs at most once.
func New(info Info, load Loader) *Article {
	return &Article{Info: info, load: load}
}

// Content returns the article body, reading the file on first access.
func (a *Article) Content() (string, error) {
	a.ensure()
	return a.body, a.err
}

// Raw returns the full file bytes, header included.
func (a *Article) Raw() ([]byte, error) {
	a.ensure()
	return a.raw, a.err
}

func (a *Article) ensure() {
	if a.loaded {
		return
	}
	if a.load != nil {
		a.raw, a.body, a.err = a.load()
	}
	a.loaded = true
}
