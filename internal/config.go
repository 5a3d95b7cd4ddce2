package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/folio/internal/flavour"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/watch"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

var extensionRe = regexp.MustCompile(`^\.?[A-Za-z0-9_-]+$`)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Repo      RepoConfig        `yaml:"repo"`
	Content   ContentConfig     `yaml:"content"`
	State     StateConfig       `yaml:"state"`
	Index     IndexConfig       `yaml:"index"`
	Templates TemplatesConfig   `yaml:"templates"`
	Archive   ArchiveConfig     `yaml:"archive"`
	Watch     WatchConfig       `yaml:"watch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.App, &c.Repo, &c.Content, &c.State, &c.Index, &c.Templates, &c.Archive, &c.Watch,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ContentRoot returns the directory articles are read from.
func (c *Config) ContentRoot() string {
	return filepath.Join(c.Repo.Path, filepath.FromSlash(c.Content.Dir))
}

// IndexPath returns the SQLite index file.
func (c *Config) IndexPath() string {
	return filepath.Join(c.State.Path, c.Index.File)
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	LogFormat string     `yaml:"log_format"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.LogFormat == "" {
		c.LogFormat = LogFormatJSON
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.In(LogFormatJSON, LogFormatText)),
	)
}

// RepoConfig points at the repository checkout holding the content.
type RepoConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the repository configuration.
func (c *RepoConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ContentConfig describes where articles live inside the repository.
//
// Dir is repository-relative and slash-separated; empty means the
// repository root. Extensions are tried in order when a fullname is
// resolved. Ignore holds doublestar patterns relative to Dir.
type ContentConfig struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
	Ignore     []string `yaml:"ignore"`
}

// Validate validates the content configuration.
func (c *ContentConfig) Validate() error {
	c.Dir = strings.Trim(c.Dir, "/")
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.By(relativeDir)),
		validation.Field(&c.Extensions, validation.Required, validation.Each(validation.Match(extensionRe))),
		validation.Field(&c.Ignore, validation.Each(validation.By(globPattern))),
	)
}

// StateConfig holds the directory for the index and counter snapshots.
type StateConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the state configuration.
func (c *StateConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// IndexConfig configures the article index. A nil Schema selects
// index.DefaultSchema.
type IndexConfig struct {
	File    string        `yaml:"file"`
	Schema  *index.Schema `yaml:"schema"`
	PageLen int           `yaml:"page_len"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.File, validation.Required),
		validation.Field(&c.PageLen, validation.Required, validation.Min(1)),
	); err != nil {
		return err
	}
	if c.Schema != nil {
		if err := c.Schema.Validate(); err != nil {
			return fmt.Errorf("index: %w", err)
		}
	}
	return nil
}

// EffectiveSchema returns the configured schema or the default one.
func (c *IndexConfig) EffectiveSchema() index.Schema {
	if c.Schema != nil {
		return *c.Schema
	}
	return index.DefaultSchema()
}

// TemplatesConfig configures flavour template lookup.
type TemplatesConfig struct {
	DefaultName string `yaml:"default_name"`
}

// Validate validates the templates configuration.
func (c *TemplatesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultName, validation.Required,
			validation.By(func(v any) error {
				if strings.ContainsAny(v.(string), `/\`) {
					return errors.New("must be a bare file name")
				}
				return nil
			})),
	)
}

// ArchiveConfig configures date archive bucketing.
type ArchiveConfig struct {
	Timezone string `yaml:"timezone"`
}

// Validate validates the archive configuration.
func (c *ArchiveConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timezone, validation.By(func(v any) error {
			_, err := time.LoadLocation(v.(string))
			return err
		})),
	)
}

// Location returns the archive time zone; empty means UTC.
func (c *ArchiveConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// WatchConfig configures the file watcher.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(10*time.Millisecond)),
	)
}

func relativeDir(v any) error {
	dir, _ := v.(string)
	if dir == "" {
		return nil
	}
	if filepath.IsAbs(dir) {
		return errors.New("must be relative to the repository")
	}
	for _, seg := range strings.Split(dir, "/") {
		if seg == ".." {
			return errors.New("must not leave the repository")
		}
	}
	return nil
}

func globPattern(v any) error {
	p, _ := v.(string)
	if !doublestar.ValidatePattern(p) {
		return fmt.Errorf("invalid pattern %q", p)
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatJSON,
		},
		Repo: RepoConfig{
			Path: ".",
		},
		Content: ContentConfig{
			Dir:        "content",
			Extensions: []string{"md", "txt"},
			Ignore:     []string{"**/.*"},
		},
		State: StateConfig{
			Path: "./state",
		},
		Index: IndexConfig{
			File:    "index.db",
			PageLen: 10,
		},
		Templates: TemplatesConfig{
			DefaultName: flavour.DefaultTemplate,
		},
		Archive: ArchiveConfig{
			Timezone: "UTC",
		},
		Watch: WatchConfig{
			Debounce: watch.DefaultDebounce,
		},
	}
}
