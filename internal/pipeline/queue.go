package pipeline

import (
	"context"

	archerrors "github.com/raoulx24/share-archiver/internal/errors"
	"github.com/raoulx24/share-archiver/internal/source"
)

// Queue is the bounded hand-off between one producer and one consumer.
// Closing it is the completion signal; it never carries a sentinel entry.
type Queue struct {
	ch chan source.Entry
}

func NewQueue(size int) *Queue {
	return &Queue{ch: make(chan source.Entry, size)}
}

// Push blocks while the queue is full.
func (q *Queue) Push(ctx context.Context, e source.Entry) error {
	select {
	case q.ch <- e:
		return nil
	case <-ctx.Done():
		return archerrors.Canceled(ctx.Err())
	}
}

// Pop blocks while the queue is empty. ok is false once the queue is closed and drained.
func (q *Queue) Pop(ctx context.Context) (e source.Entry, ok bool, err error) {
	select {
	case e, ok = <-q.ch:
		return e, ok, nil
	case <-ctx.Done():
		return source.Entry{}, false, archerrors.Canceled(ctx.Err())
	}
}

// Close marks the end of production. Only the producer may call it, once.
func (q *Queue) Close() {
	close(q.ch)
}

func (q *Queue) Len() int { return len(q.ch) }
func (q *Queue) Cap() int { return cap(q.ch) }
