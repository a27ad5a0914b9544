// Package queue provides an unbounded FIFO hand-off between the capture
// callback and the processing workers.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned by Pop once the queue is closed and drained, and by
// Push after Close.
var ErrClosed = errors.New("queue closed")

// Options configures a Queue.
type Options struct {
	// HighWaterMark logs a warning once the depth exceeds it. Zero disables
	// the warning.
	HighWaterMark int
	// OnDepth is called with the new depth after every Push and Pop.
	OnDepth func(depth int)
}

// Queue is an unbounded FIFO. Push never blocks and never drops; Pop blocks
// until an item is available, the context is cancelled, or the queue is
// closed and empty. It is safe for concurrent use.
type Queue[T any] struct {
	name string
	opts Options

	mu        sync.Mutex
	items     []T
	closed    bool
	warned    bool
	highWater int

	ready chan struct{}
	done  chan struct{}
}

// New returns an empty queue. The name is used in log messages.
func New[T any](name string, opts Options) *Queue[T] {
	return &Queue[T]{
		name:  name,
		opts:  opts,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push appends v to the queue.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, v)
	depth := len(q.items)
	q.highWater = max(q.highWater, depth)
	q.checkHighWaterLocked(depth)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	q.reportDepth(depth)
	return nil
}

// Pop removes and returns the oldest item. Items pushed before Close are
// still returned in order; ErrClosed follows once the queue is empty.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			}
			depth := len(q.items)
			q.checkHighWaterLocked(depth)
			q.mu.Unlock()
			q.reportDepth(depth)
			return v, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-q.ready:
		case <-q.done:
		}
	}
}

// Close marks the end of the stream. It is safe to call more than once.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Len returns the current depth.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// HighWater returns the largest depth observed since creation.
func (q *Queue[T]) HighWater() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.highWater
}

// checkHighWaterLocked warns once per excursion above the mark and re-arms
// when the depth falls back to half of it.
func (q *Queue[T]) checkHighWaterLocked(depth int) {
	mark := q.opts.HighWaterMark
	if mark <= 0 {
		return
	}
	switch {
	case !q.warned && depth > mark:
		q.warned = true
		slog.Warn("queue above high-water mark", "queue", q.name, "depth", depth, "mark", mark)
	case q.warned && depth <= mark/2:
		q.warned = false
		slog.Info("queue drained below high-water mark", "queue", q.name, "depth", depth)
	}
}

func (q *Queue[T]) reportDepth(depth int) {
	if q.opts.OnDepth != nil {
		q.opts.OnDepth(depth)
	}
}
