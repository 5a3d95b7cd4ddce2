package internal

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/folio/internal/index"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
	if got := cfg.ContentRoot(); got != "content" {
		t.Errorf("content root = %q", got)
	}
	if got := cfg.IndexPath(); got != filepath.Join("state", "index.db") {
		t.Errorf("index path = %q", got)
	}
}

func TestApplicationConfig_EmptyFormatDefaultsJSON(t *testing.T) {
	cfg := ApplicationConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty format should default: %v", err)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Errorf("format = %q, want %q", cfg.LogFormat, LogFormatJSON)
	}
	cfg.LogFormat = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown log format should fail")
	}
}

func TestContentConfig_Dir(t *testing.T) {
	cases := map[string]bool{
		"":              true,
		"content":       true,
		"/site/posts/":  true, // trimmed to a relative path
		"../elsewhere":  false,
		"posts/../../x": false,
	}
	for dir, ok := range cases {
		cfg := ContentConfig{Dir: dir, Extensions: []string{"md"}}
		err := cfg.Validate()
		if ok && err != nil {
			t.Errorf("dir %q should pass: %v", dir, err)
		}
		if !ok && err == nil {
			t.Errorf("dir %q should fail", dir)
		}
	}
}

func TestContentConfig_ExtensionsAndIgnore(t *testing.T) {
	if err := (&ContentConfig{}).Validate(); err == nil {
		t.Error("missing extensions should fail")
	}
	if err := (&ContentConfig{Extensions: []string{"md", "a/b"}}).Validate(); err == nil {
		t.Error("extension with a slash should fail")
	}
	if err := (&ContentConfig{Extensions: []string{".md"}, Ignore: []string{"["}}).Validate(); err == nil {
		t.Error("bad ignore pattern should fail")
	}
}

func TestIndexConfig_Schema(t *testing.T) {
	cfg := IndexConfig{File: "i.db", PageLen: 5}
	if len(cfg.EffectiveSchema().Fields) == 0 {
		t.Error("nil schema should fall back to the default")
	}

	cfg.Schema = &index.Schema{Fields: []index.Field{{Name: "Title", Type: index.FieldText}}}
	err := cfg.Validate()
	if err == nil || !strings.HasPrefix(err.Error(), "index:") {
		t.Errorf("invalid schema err = %v", err)
	}

	cfg.Schema = nil
	cfg.PageLen = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero page length should fail")
	}
}

func TestTemplatesConfig(t *testing.T) {
	if err := (&TemplatesConfig{DefaultName: "page"}).Validate(); err != nil {
		t.Errorf("plain name should pass: %v", err)
	}
	if err := (&TemplatesConfig{DefaultName: "a/page"}).Validate(); err == nil {
		t.Error("name with a slash should fail")
	}
}

func TestArchiveConfig_Timezone(t *testing.T) {
	cfg := ArchiveConfig{Timezone: "Not/AZone"}
	if err := cfg.Validate(); err == nil {
		t.Error("unknown zone should fail")
	}
	cfg.Timezone = ""
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("empty zone = %v, %v; want UTC", loc, err)
	}
}

func TestWatchConfig_Debounce(t *testing.T) {
	if err := (&WatchConfig{Debounce: time.Millisecond}).Validate(); err == nil {
		t.Error("1ms debounce should fail")
	}
}

func TestFullConfig_SectionValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.State.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch state error")
	}
}
