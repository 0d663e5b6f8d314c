// Package queue defines the contract for enqueuing and consuming matches.
//
// The in-memory implementation is a bounded buffered channel. Enqueue never
// blocks; a full queue rejects the match and the caller decides what to do.
package queue

import (
	"context"
	"sync"

	"github.com/okian/rankd/internal/domain/model"
	"github.com/okian/rankd/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 100000
)

// Match is the payload type flowing through the queue.
type Match = model.Match

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a match to the queue.
	// Returns ErrFull or ErrClosed if the match was not enqueued.
	Enqueue(ctx context.Context, m Match) error

	// Dequeue returns a channel that will receive matches as they become available.
	// The channel will be closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Match

	// Len returns the current number of queued matches.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue.
	// After closing, no new matches can be enqueued.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	matches  chan Match
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}

	// Apply all options
	for _, opt := range opts {
		opt(q)
	}

	q.matches = make(chan Match, q.capacity)

	// Initialize metrics
	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Enqueue adds a match to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, m Match) error { //nolint:gocritic // hugeParam: Match is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError("context_cancelled")
		return err
	}

	select {
	case q.matches <- m:
		metrics.UpdateQueueSize(len(q.matches))
		return nil
	default:
		metrics.RecordQueueEnqueueError("queue_full")
		return ErrFull
	}
}

// Dequeue returns the receive side of the queue. Every caller shares the same
// channel, so concurrent consumers split the matches between them.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Match {
	return q.matches
}

// Len returns the current number of queued matches.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	size := len(q.matches)
	metrics.UpdateQueueSize(size)
	return size
}

// Capacity returns the maximum number of queued matches.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

// Close gracefully shuts down the queue. Matches already queued can still be
// received.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil // already closed
	}

	close(q.matches)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
