// Package queue provides a fixed-capacity FIFO that rejects rather than
// blocks when full.
package queue

import (
	"sync"

	"go.uber.org/atomic"
)

// Bounded is safe for any number of producers and one draining consumer.
type Bounded[T any] struct {
	mu    sync.Mutex
	items []T
	head  int
	count int

	// size mirrors count so Len can be read without the lock.
	size *atomic.Int64
}

func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Bounded[T]{
		items: make([]T, capacity),
		size:  atomic.NewInt64(0),
	}
}

// TryEnqueue appends v and reports true, or reports false without touching
// the queue when it is full.
func (q *Bounded[T]) TryEnqueue(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == len(q.items) {
		return false
	}
	q.items[(q.head+q.count)%len(q.items)] = v
	q.count++
	q.size.Inc()
	return true
}

// DrainUpTo removes and returns at most n items in FIFO order.
func (q *Bounded[T]) DrainUpTo(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > q.count {
		n = q.count
	}
	if n <= 0 {
		return nil
	}

	var zero T
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = q.items[q.head]
		q.items[q.head] = zero
		q.head = (q.head + 1) % len(q.items)
	}
	q.count -= n
	q.size.Sub(int64(n))
	return out
}

// Len may be stale by the time the caller acts on it.
func (q *Bounded[T]) Len() int {
	return int(q.size.Load())
}

func (q *Bounded[T]) Cap() int {
	return len(q.items)
}
