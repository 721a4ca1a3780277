// Package pipeline streams entries from a source provider into an archive
// writer through a bounded prefetch queue.
package pipeline

import (
	"bytes"
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/raoulx24/share-archiver/internal/archive"
	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/logging"
	"github.com/raoulx24/share-archiver/internal/metrics"
	"github.com/raoulx24/share-archiver/internal/source"
)

// DefaultCapacity is the number of prefetched entries held by default.
const DefaultCapacity = 8

type options struct {
	capacity int
	log      logging.Logger
	metrics  metrics.Metrics
}

// Option configures a Pipeline.
type Option func(*options)

// WithCapacity sets how many entries may be prefetched ahead of the writer.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func WithMetrics(m metrics.Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// Pipeline moves every entry of a provider into a writer. One goroutine reads
// file contents fully into memory ahead of the writer; the other adds entries
// to the writer in the order they were produced.
type Pipeline struct {
	src      source.Provider
	dst      archive.Writer
	capacity int
	log      logging.Logger
	metrics  metrics.Metrics
}

// New validates the options and builds a pipeline.
func New(src source.Provider, dst archive.Writer, opts ...Option) (*Pipeline, error) {
	o := options{
		capacity: DefaultCapacity,
		log:      logging.Discard(),
		metrics:  metrics.Noop{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.capacity < 1 {
		return nil, archerrors.Validationf("prefetch capacity %d must be at least 1", o.capacity)
	}
	if src == nil || dst == nil {
		return nil, archerrors.Validationf("pipeline needs both a source and a writer")
	}

	return &Pipeline{
		src:      src,
		dst:      dst,
		capacity: o.capacity,
		log:      o.log,
		metrics:  o.metrics,
	}, nil
}

// Run streams all entries and closes the writer once the source is exhausted.
// On cancellation it returns an error matching ErrCanceled and leaves the
// writer open; the caller discards the partial output.
func (p *Pipeline) Run(ctx context.Context) error {
	q := NewQueue(p.capacity)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := p.produce(gctx, q); err != nil {
			return err
		}
		q.Close()
		return nil
	})
	g.Go(func() error {
		return p.consume(gctx, q)
	})

	err := g.Wait()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		p.log.Debug("pipeline canceled", "error", err)
		return archerrors.Canceled(ctxErr)
	}
	return err
}

func (p *Pipeline) produce(ctx context.Context, q *Queue) error {
	for e, err := range p.src.Entries(ctx) {
		if err != nil {
			return errors.Wrap(err, "reading source")
		}
		if err := ctx.Err(); err != nil {
			return archerrors.Canceled(err)
		}

		if !e.IsDir() {
			e, err = p.prefetch(ctx, e)
			if err != nil {
				return err
			}
		}
		if err := q.Push(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// prefetch reads the whole content of e and returns a copy of e serving it from memory.
func (p *Pipeline) prefetch(ctx context.Context, e source.Entry) (source.Entry, error) {
	rc, err := e.Open(ctx)
	if err != nil {
		return e, errors.Wrapf(err, "opening %s", e.Path("/"))
	}
	defer rc.Close()

	var buf bytes.Buffer
	if e.Size > 0 {
		buf.Grow(int(e.Size))
	}
	n, err := io.Copy(&buf, rc)
	if err != nil {
		return e, errors.Wrapf(err, "downloading %s", e.Path("/"))
	}
	p.metrics.AddBytes(n)

	e.Size = n
	e.Open = source.Bytes(buf.Bytes())
	return e, nil
}

func (p *Pipeline) consume(ctx context.Context, q *Queue) error {
	for {
		e, ok, err := q.Pop(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		if err := p.dst.Add(ctx, e); err != nil {
			return errors.Wrapf(err, "archiving %s", e.Path("/"))
		}
		if e.IsDir() {
			p.metrics.IncEntries(metrics.KindDirectory)
		} else {
			p.metrics.IncEntries(metrics.KindFile)
		}
	}

	if err := ctx.Err(); err != nil {
		return archerrors.Canceled(err)
	}
	return p.dst.Close()
}
