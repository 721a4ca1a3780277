// Package snapshot manages the share snapshots created by share-archiver.
//
// A snapshot is managed when its metadata carries the manager's key. Only
// managed snapshots are listed, and only managed snapshots may be deleted.
package snapshot

import (
	"strings"
	"time"

	"github.com/raoulx24/share-archiver/internal/share"
)

// Snapshot is a point-in-time view of a share, identified by (Share, Time).
type Snapshot struct {
	Share    string
	Time     time.Time
	Metadata map[string]string
}

// String renders the identity as share@time.
func (s Snapshot) String() string {
	return s.Share + "@" + share.FormatSnapshotTime(s.Time)
}

// HasKey reports whether the metadata carries key, compared case-insensitively.
func (s Snapshot) HasKey(key string) bool {
	for k := range s.Metadata {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

func fromInfo(i share.Info) Snapshot {
	return Snapshot{Share: i.Name, Time: i.Snapshot.UTC(), Metadata: i.Metadata}
}

// RetentionPolicy decides which managed snapshots a prune deletes.
// Select must not modify its argument.
type RetentionPolicy interface {
	Description() string
	Select(snapshots []Snapshot) []Snapshot
}
