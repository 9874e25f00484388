// Package queue provides the bounded update queue shared between the
// webhook producer and the dispatch workers.
package queue

import (
	"context"
	"sync"

	"github.com/mymmrac/telego"
)

// DefaultCapacity matches the platform's webhook burst tolerance.
const DefaultCapacity = 100

// UpdateQueue is a bounded FIFO of Telegram updates. Producers never block:
// when the queue is full the update is dropped and the producer is told so.
type UpdateQueue struct {
	updates chan telego.Update

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a queue with the given capacity (DefaultCapacity when <= 0).
func New(capacity int) *UpdateQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &UpdateQueue{
		updates: make(chan telego.Update, capacity),
		done:    make(chan struct{}),
	}
}

// TryEnqueue offers one update without blocking. Returns false when the
// queue is full or closed; the caller decides how to report the drop.
func (q *UpdateQueue) TryEnqueue(update telego.Update) bool {
	select {
	case <-q.done:
		return false
	default:
	}

	select {
	case q.updates <- update:
		return true
	default:
		return false
	}
}

// Dequeue blocks until an update is available, the context is cancelled, or
// the queue is closed and drained.
func (q *UpdateQueue) Dequeue(ctx context.Context) (telego.Update, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case update := <-q.updates:
		return update, true
	default:
	}

	select {
	case <-ctx.Done():
		return telego.Update{}, false
	case <-q.done:
		// Drain what was enqueued before close.
		select {
		case update := <-q.updates:
			return update, true
		default:
			return telego.Update{}, false
		}
	case update := <-q.updates:
		return update, true
	}
}

// Len reports the number of queued updates.
func (q *UpdateQueue) Len() int {
	return len(q.updates)
}

// Close stops accepting new updates. Safe to call more than once.
func (q *UpdateQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
