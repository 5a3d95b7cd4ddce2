package parser

import (
	"strings"
	"testing"
)

func TestParse_YAMLHeaderAndBody(t *testing.T) {
	input := []byte("---\ntitle: Hello\ntags:\n  - go\n  - folio\n---\n# Hello\nBody text.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Meta["title"] != "Hello" {
		t.Errorf("title = %v, want %q", r.Meta["title"], "Hello")
	}
	tags, _ := r.Meta["tags"].([]string)
	if len(tags) != 2 || tags[0] != "go" || tags[1] != "folio" {
		t.Errorf("tags = %v, want [go folio]", r.Meta["tags"])
	}
	if r.Body != "# Hello\nBody text.\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_PlainHeader(t *testing.T) {
	input := []byte("Title: Madras curry\nauthor: Priya\ntags: spicy, curry\n\nTake the onions.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Meta["title"] != "Madras curry" {
		t.Errorf("title = %v", r.Meta["title"])
	}
	if r.Meta["author"] != "Priya" {
		t.Errorf("author = %v", r.Meta["author"])
	}
	tags, _ := r.Meta["tags"].([]string)
	if len(tags) != 2 || tags[0] != "spicy" || tags[1] != "curry" {
		t.Errorf("tags = %v", r.Meta["tags"])
	}
	if r.Body != "Take the onions.\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_NoHeader(t *testing.T) {
	input := []byte("# Just a heading\nSome text.\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Meta != nil {
		t.Errorf("expected nil meta, got %v", r.Meta)
	}
	if r.Body != string(input) {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_PlainHeaderWithoutBlankLine(t *testing.T) {
	input := []byte("title: dangling\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Meta != nil {
		t.Errorf("header without terminating blank line should be body, got %v", r.Meta)
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	input := []byte("---\n: invalid: yaml: {{{\n---\nBody\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Meta != nil {
		t.Errorf("expected nil meta on invalid YAML")
	}
	if r.Body != string(input) {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_UnclosedYAML(t *testing.T) {
	input := []byte("---\ntitle: x\nno closing fence\n")
	r, _ := Parse(input)
	if r.Meta != nil {
		t.Errorf("unclosed block should not produce meta")
	}
}

func TestReadHeader_StopsAtBlock(t *testing.T) {
	meta, err := ReadHeader(strings.NewReader("---\nTitle: Hi\nauthor: Sam\n---\nbody that is never read"))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if meta["title"] != "Hi" || meta["author"] != "Sam" {
		t.Errorf("meta = %v", meta)
	}
}

func TestReadHeader_Empty(t *testing.T) {
	meta, err := ReadHeader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if meta != nil {
		t.Errorf("meta = %v, want nil", meta)
	}
}
