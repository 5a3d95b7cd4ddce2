package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempRoot(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempRoot(t)
	content := []byte("# Hello\nWorld\n")
	if err := s.Write("note.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempRoot(t)
	if err := s.Write("a/b/c.md", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("a/b/c.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestList_AllFiles(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("a.md", []byte("a"))
	_ = s.Write("sub/b.txt", []byte("b"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	if items[1].Path != "sub/b.txt" {
		t.Errorf("path = %q, want slash-separated relative path", items[1].Path)
	}
	if items[0].Checksum != Checksum([]byte("a")) {
		t.Errorf("checksum = %q", items[0].Checksum)
	}
}

func TestList_ExtensionsAndIgnore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFS(dir, WithExtensions("md", ".txt"), WithIgnore("drafts/**", "**/.*"))
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	_ = s.Write("a.md", []byte("a"))
	_ = s.Write("cooking/b.txt", []byte("b"))
	_ = s.Write("image.png", []byte("png"))
	_ = s.Write("drafts/c.md", []byte("c"))
	_ = s.Write("cooking/.hidden.md", []byte("h"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var got []string
	for _, it := range items {
		got = append(got, it.Path)
	}
	if len(got) != 2 || got[0] != "a.md" || got[1] != "cooking/b.txt" {
		t.Errorf("paths = %v, want [a.md cooking/b.txt]", got)
	}
}

func TestAccepts_IgnoredParentDir(t *testing.T) {
	s, err := NewFS(t.TempDir(), WithExtensions("md"), WithIgnore("drafts", "*.bak.md"))
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	cases := map[string]bool{
		"a.md":              true,
		"drafts/x.md":       false,
		"drafts/deep/y.md":  false,
		"notes/drafts.md":   true,
		"old.bak.md":        false,
		"a.txt":             false,
		"dir/.folio-tmp-12": false,
	}
	for rel, want := range cases {
		if got := s.Accepts(rel); got != want {
			t.Errorf("Accepts(%q) = %v, want %v", rel, got, want)
		}
	}
}

func TestNewFS_InvalidIgnorePattern(t *testing.T) {
	if _, err := NewFS(t.TempDir(), WithIgnore("[")); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestStatAndOpen(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("x.md", []byte("hello"))
	info, err := s.Stat("x.md")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 5 {
		t.Errorf("size = %d", info.Size())
	}
	rc, err := s.Open("x.md")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	buf := make([]byte, 5)
	if _, err := rc.Read(buf); err != nil || string(buf) != "hello" {
		t.Errorf("read = %q, %v", buf, err)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempRoot(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteNoCorruption(t *testing.T) {
	// Verify that if we read during a write the old content is intact
	// (the rename is atomic on POSIX).
	s := tempRoot(t)
	original := []byte("original content")
	_ = s.Write("atomic.md", original)

	// Overwrite with new content.
	updated := []byte("updated content")
	if err := s.Write("atomic.md", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.md")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	// Confirm no leftover temp files.
	matches, _ := filepath.Glob(filepath.Join(s.root, tmpPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/folio-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "folio-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
