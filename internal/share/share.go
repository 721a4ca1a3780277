// Package share defines the contract share-archiver needs from a file-share
// transport: snapshot management and paginated, point-in-time directory reads.
package share

import (
	"context"
	"io"
	"time"
)

// SnapshotTimeFormat is the wire form of a share snapshot timestamp.
const SnapshotTimeFormat = "2006-01-02T15:04:05.0000000Z"

// FormatSnapshotTime renders t the way the storage service expects it.
func FormatSnapshotTime(t time.Time) string {
	return t.UTC().Format(SnapshotTimeFormat)
}

// ParseSnapshotTime parses a snapshot timestamp returned by the service.
func ParseSnapshotTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Info describes a share or a share snapshot as returned by a listing.
type Info struct {
	Name string
	// Snapshot is zero for the live share.
	Snapshot time.Time
	Metadata map[string]string
}

// IsSnapshot reports whether the info describes a snapshot.
func (i Info) IsSnapshot() bool {
	return !i.Snapshot.IsZero()
}

// Item is one child of a listed directory.
type Item struct {
	Name  string
	IsDir bool
	Size  int64
	// LastModified is zero when the service did not report it.
	LastModified time.Time
}

// Page is one result segment of a directory listing.
type Page struct {
	Items []Item
	// Marker continues the listing; empty when the directory is exhausted.
	Marker string
}

// Tree reads the directory hierarchy of one share at one point in time.
// dir is the path from the root, the root itself being empty.
type Tree interface {
	List(ctx context.Context, dir []string, marker string) (Page, error)
	Open(ctx context.Context, dir []string, name string) (io.ReadCloser, error)
}

// Service is the share-level surface of the transport.
type Service interface {
	Exists(ctx context.Context, name string) (bool, error)
	CreateSnapshot(ctx context.Context, name string, metadata map[string]string) (Info, error)
	// ListShares returns every share and snapshot whose name starts with prefix,
	// metadata included, across all result pages.
	ListShares(ctx context.Context, prefix string) ([]Info, error)
	// GetSnapshot returns ErrNotFound when no such snapshot exists.
	GetSnapshot(ctx context.Context, name string, snapshot time.Time) (Info, error)
	DeleteSnapshot(ctx context.Context, name string, snapshot time.Time) error
	Tree(name string, snapshot time.Time) Tree
}
