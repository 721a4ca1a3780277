// Package fs defines the local filesystem abstraction used by the local archive sink.
// It provides the FS interface, the FileInfo type and an OS-backed implementation
// whose renames survive transient errors.
package fs

import (
	"context"
	"io"
	"time"
)

type FileInfo struct {
	Path  string
	Size  int64
	MTime time.Time
	IsDir bool
}

// File is a writable file handle.
type File interface {
	io.Writer
	Sync() error
	Close() error
}

type FS interface {
	Stat(path string) (FileInfo, error)
	// Create opens path for writing and fails if it already exists.
	Create(path string) (File, error)
	Rename(ctx context.Context, oldPath, newPath string) error
	Remove(path string) error
	MkdirAll(path string) error
}
