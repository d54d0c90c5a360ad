package cache

import (
	"sync"

	"github.com/graffiti-garden/implementation-federated/internal/graffiti"
)

// changeQueue is a thread-safe FIFO of accepted changes.
//
// The queue is unbounded so that writers recording into the cache never
// block on a slow subscriber.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in Subscription.Next.
type changeQueue struct {
	mu      sync.Mutex
	changes []graffiti.Object
	closed  bool
	signal  chan struct{} // Signals change availability (buffered, size 1)
}

func newChangeQueue() *changeQueue {
	return &changeQueue{
		changes: make([]graffiti.Object, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds a change to the back of the queue.
// Returns false if the queue is closed.
func (q *changeQueue) Enqueue(obj graffiti.Object) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.changes = append(q.changes, obj)

	// Non-blocking; the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front change without blocking.
// Returns false if the queue is empty.
func (q *changeQueue) TryDequeue() (graffiti.Object, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.changes) == 0 {
		return graffiti.Object{}, false
	}

	obj := q.changes[0]

	// Nil out the slot so the backing array does not pin the value
	q.changes[0] = graffiti.Object{}

	if len(q.changes) == 1 {
		q.changes = q.changes[:0]
	} else {
		q.changes = q.changes[1:]
	}

	return obj, true
}

// Wait returns a channel that signals when changes may be available.
// The channel is closed when the queue is closed.
func (q *changeQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *changeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.changes)
}

// Closed reports whether Close was called.
func (q *changeQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more changes will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *changeQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
