// Package retention provides the policies deciding which managed snapshots a
// prune removes.
package retention

import (
	"fmt"
	"slices"
	"strings"

	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/snapshot"
)

// Latest keeps the N most recent snapshots.
type Latest struct {
	keep int
}

var _ snapshot.RetentionPolicy = (*Latest)(nil)

// RetainLatest returns a policy keeping the n newest snapshots. n = 0 keeps none.
func RetainLatest(n int) (*Latest, error) {
	if n < 0 {
		return nil, archerrors.Validationf("retain count %d must be >= 0", n)
	}
	return &Latest{keep: n}, nil
}

func (l *Latest) Keep() int {
	return l.keep
}

func (l *Latest) Description() string {
	return fmt.Sprintf("retain latest %d", l.keep)
}

// Select returns every snapshot but the n newest. Equal timestamps are
// ordered by share name so that repeated prunes agree.
func (l *Latest) Select(snapshots []snapshot.Snapshot) []snapshot.Snapshot {
	if len(snapshots) <= l.keep {
		return nil
	}

	// Sort newest → oldest on a copy.
	sorted := slices.Clone(snapshots)
	slices.SortStableFunc(sorted, func(a, b snapshot.Snapshot) int {
		if c := b.Time.Compare(a.Time); c != 0 {
			return c
		}
		return strings.Compare(a.Share, b.Share)
	})

	return sorted[l.keep:]
}
