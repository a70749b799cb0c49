// Package buffer provides a generic, thread-safe bounded FIFO ring with
// configurable overflow policies. Statistics are always collected; Prometheus
// gauges are optional via functional options.
package buffer

import (
	"sync"

	"github.com/plsm/assisi-go/errors"
)

// OverflowPolicy defines how the ring behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest drops new items while the ring is full.
	DropNewest
)

// Option configures ring behavior.
type Option[T any] func(*options[T])

type options[T any] struct {
	policy       OverflowPolicy
	dropCallback func(T)
	metrics      *ringMetrics
}

// WithOverflowPolicy sets the overflow behavior. Defaults to DropOldest.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(o *options[T]) {
		o.policy = policy
	}
}

// WithDropCallback sets a callback invoked with each dropped item.
func WithDropCallback[T any](fn func(T)) Option[T] {
	return func(o *options[T]) {
		o.dropCallback = fn
	}
}

// Ring is a fixed-capacity FIFO buffer. Oldest-first draining: Pop returns
// items in the order they were pushed.
type Ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	closed   bool
	stats    Statistics
	opts     *options[T]
}

// New creates a ring with the given capacity.
func New[T any](capacity int, opts ...Option[T]) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	o := &options[T]{policy: DropOldest}
	for _, opt := range opts {
		opt(o)
	}
	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		opts:     o,
	}
}

// Push adds an item according to the overflow policy. The only error is
// pushing into a closed ring.
func (r *Ring[T]) Push(item T) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Ring", "Push", "ring closed")
	}

	var dropped *T
	if r.size == r.capacity {
		r.stats.overflow()
		if r.opts.metrics != nil {
			r.opts.metrics.recordDrop()
		}
		switch r.opts.policy {
		case DropNewest:
			r.mu.Unlock()
			if r.opts.dropCallback != nil {
				r.opts.dropCallback(item)
			}
			return nil
		case DropOldest:
			old := r.items[r.tail]
			dropped = &old
			r.tail = (r.tail + 1) % r.capacity
			r.size--
		}
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	r.size++
	r.stats.push(int64(r.size))
	if r.opts.metrics != nil {
		r.opts.metrics.updateSize(r.size, r.capacity)
	}
	r.mu.Unlock()

	// Callback runs outside the lock to avoid deadlock.
	if dropped != nil && r.opts.dropCallback != nil {
		r.opts.dropCallback(*dropped)
	}
	return nil
}

// Pop retrieves and removes the oldest item. Returns the zero value and
// false when the ring is empty; it never blocks.
func (r *Ring[T]) Pop() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}

	item := r.items[r.tail]
	r.items[r.tail] = zero // release for GC
	r.tail = (r.tail + 1) % r.capacity
	r.size--
	r.stats.pop(int64(r.size))
	if r.opts.metrics != nil {
		r.opts.metrics.updateSize(r.size, r.capacity)
	}

	return item, true
}

// Peek retrieves the oldest item without removing it.
func (r *Ring[T]) Peek() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.items[r.tail], true
}

// Size returns the current number of items.
func (r *Ring[T]) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity returns the maximum number of items the ring can hold.
func (r *Ring[T]) Capacity() int {
	return r.capacity
}

// Stats returns a snapshot of the ring's counters.
func (r *Ring[T]) Stats() StatsSnapshot {
	return r.stats.snapshot()
}

// Close marks the ring closed; further pushes fail, pops drain what remains.
// Closing twice is a no-op.
func (r *Ring[T]) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
