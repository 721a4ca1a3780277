// Package source produces the entries of a backup: a lazy, depth-first walk
// of a share snapshot.
package source

import (
	"bytes"
	"context"
	"io"
	"iter"
	"slices"
	"strings"
	"sync/atomic"

	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/logging"
	"github.com/raoulx24/share-archiver/internal/share"
)

// Provider yields the entries to archive.
// Each call to Entries starts a new walk; a returned sequence is single use.
type Provider interface {
	Entries(ctx context.Context) iter.Seq2[Entry, error]
}

// ShareProvider walks a share.Tree depth-first. A directory's marker entry is
// yielded before its children, and each child directory is fully walked
// before the next sibling.
type ShareProvider struct {
	tree share.Tree
	log  logging.Logger
}

// NewShareProvider creates a provider over tree.
func NewShareProvider(tree share.Tree, log logging.Logger) *ShareProvider {
	if log == nil {
		log = logging.Discard()
	}
	return &ShareProvider{tree: tree, log: log}
}

// Entries returns the lazy walk. Listing errors are yielded once and end the walk.
func (p *ShareProvider) Entries(ctx context.Context) iter.Seq2[Entry, error] {
	var used atomic.Bool
	return func(yield func(Entry, error) bool) {
		if used.Swap(true) {
			yield(Entry{}, archerrors.ErrConsumed)
			return
		}
		p.walk(ctx, nil, yield)
	}
}

// walk returns false once the consumer stopped or an error was yielded.
func (p *ShareProvider) walk(ctx context.Context, dir []string, yield func(Entry, error) bool) bool {
	p.log.Debug("processing directory", "path", "/"+strings.Join(dir, "/"))

	marker := ""
	for {
		page, err := p.tree.List(ctx, dir, marker)
		if err != nil {
			yield(Entry{}, err)
			return false
		}

		for _, item := range page.Items {
			if item.IsDir {
				sub := append(slices.Clip(dir), item.Name)
				if !yield(Dir(sub), nil) {
					return false
				}
				if !p.walk(ctx, sub, yield) {
					return false
				}
				continue
			}

			if !yield(p.file(dir, item), nil) {
				return false
			}
		}

		if page.Marker == "" {
			return true
		}
		marker = page.Marker
	}
}

func (p *ShareProvider) file(dir []string, item share.Item) Entry {
	name := item.Name
	return File(dir, name, item.Size, item.LastModified, func(ctx context.Context) (io.ReadCloser, error) {
		return p.tree.Open(ctx, dir, name)
	})
}

// Slice is a Provider over a fixed list of entries.
type Slice []Entry

// Entries yields the entries in order.
func (s Slice) Entries(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for _, e := range s {
			if err := ctx.Err(); err != nil {
				yield(Entry{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Bytes returns an OpenFunc serving data.
func Bytes(data []byte) OpenFunc {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}
