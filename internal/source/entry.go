package source

import (
	"context"
	"io"
	"strings"
	"time"
)

// OpenFunc opens the content of a file entry. It may be called more than once
// and never being called leaks nothing.
type OpenFunc func(ctx context.Context) (io.ReadCloser, error)

// Entry describes a single file or directory found while walking a source.
// Directory entries exist only to preserve empty directories in archives:
// they carry no content and their Name is empty, Parents ending with the
// directory itself.
type Entry struct {
	Name         string
	Size         int64
	LastModified time.Time // zero when unknown
	Parents      []string
	Open         OpenFunc // nil for directories
}

// File builds a file entry.
func File(parents []string, name string, size int64, modified time.Time, open OpenFunc) Entry {
	return Entry{
		Name:         name,
		Size:         size,
		LastModified: modified,
		Parents:      parents,
		Open:         open,
	}
}

// Dir builds the marker entry for the directory at path.
func Dir(path []string) Entry {
	return Entry{Parents: path}
}

// IsDir reports whether e is a directory marker.
func (e Entry) IsDir() bool {
	return e.Open == nil
}

// Path joins the parent directories and the name with sep.
// A directory marker yields a path ending with sep.
func (e Entry) Path(sep string) string {
	var sb strings.Builder
	for _, d := range e.Parents {
		sb.WriteString(d)
		sb.WriteString(sep)
	}
	sb.WriteString(e.Name)
	return sb.String()
}
