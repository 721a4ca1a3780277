// Package mailbox provides the single-slot hand-off between a schedule and
// the goroutine running its job.
package mailbox

import "sync"

// Mailbox is a single-slot buffer where the latest trigger always wins.
// It is NOT a queue. It holds at most one pending item.
// Put() overwrites any pending item. Take() blocks until an item is available
// or the mailbox is closed.
type Mailbox[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	item   *T
	closed bool
	// dropped counts items overwritten before they were taken.
	dropped int
}

// New creates an empty mailbox.
func New[T any]() *Mailbox[T] {
	m := &Mailbox[T]{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Put stores v, replacing any pending item. It never blocks.
// It reports false when the mailbox is closed and v was discarded.
func (m *Mailbox[T]) Put(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	if m.item != nil {
		m.dropped++
	}
	m.item = &v
	m.mu.Unlock()
	m.cond.Signal()
	return true
}

// Take blocks until an item is available, then returns it and clears the slot.
// ok is false once the mailbox is closed; a pending item is then dropped.
func (m *Mailbox[T]) Take() (v T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.item == nil && !m.closed {
		m.cond.Wait()
	}
	if m.closed {
		return v, false
	}

	v = *m.item
	m.item = nil
	return v, true
}

// TryTake returns the pending item, or nil if there is none. It never blocks.
func (m *Mailbox[T]) TryTake() *T {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.item == nil || m.closed {
		return nil
	}

	v := m.item
	m.item = nil
	return v
}

// HasItem reports whether an item is currently waiting.
func (m *Mailbox[T]) HasItem() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.item != nil && !m.closed
}

// Dropped returns how many items were overwritten before being taken.
func (m *Mailbox[T]) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Close wakes every blocked Take. It is safe to call more than once.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.item = nil
	m.mu.Unlock()
	m.cond.Broadcast()
}
