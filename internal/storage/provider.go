// Package storage defines the file-system abstraction used for both the
// content root and the state root.
package storage

import (
	"io"
	"io/fs"
	"time"
)

// FileMeta describes one listed file.
type FileMeta struct {
	// Path is slash-separated and relative to the provider root.
	Path     string
	Checksum string
	ModTime  time.Time
}

// Provider is the interface for rooted file operations. All paths are
// relative to the provider root.
type Provider interface {
	// List returns metadata for every matching file under dir.
	List(dir string) ([]FileMeta, error)
	Read(path string) ([]byte, error)
	// Open returns a reader for callers that only need a file prefix.
	Open(path string) (io.ReadCloser, error)
	Stat(path string) (fs.FileInfo, error)
	// Write atomically replaces the file at path.
	Write(path string, content []byte) error
	Root() string
}
