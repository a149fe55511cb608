// Package queue buffers outbound notifications between producers and the dispatch workers.
//
// Delivery is best effort: a full or closed queue rejects the message instead of blocking
// the producer.
package queue

import (
	"context"
	"sync"

	"github.com/fpvleague/lapboard/internal/domain/model"
	"github.com/fpvleague/lapboard/pkg/metrics"
)

const defaultCapacity = 64

// Message is the payload flowing through the queue.
type Message = model.Notification

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a message. Returns ErrFull or ErrClosed when rejected.
	Enqueue(ctx context.Context, m Message) error
	// Dequeue returns a channel that will receive messages as they become available.
	// The channel will be closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Message
	// Len returns the current number of queued messages.
	Len() int
	// Close stops accepting messages. Pending messages are still delivered.
	Close() error
	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	messages chan Message
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.messages = make(chan Message, q.capacity)
	metrics.UpdateNotifyQueueSize(0)
	return q
}

// Enqueue adds a message to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, m Message) error { //nolint:gocritic // hugeParam: Message is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordNotification(metrics.NotificationDropped)
		return ErrClosed
	}

	select {
	case q.messages <- m:
		metrics.UpdateNotifyQueueSize(len(q.messages))
		return nil
	case <-ctx.Done():
		metrics.RecordNotification(metrics.NotificationDropped)
		return ctx.Err()
	default:
		metrics.RecordNotification(metrics.NotificationDropped)
		return ErrFull
	}
}

// Dequeue returns a channel that will receive messages as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Message {
	out := make(chan Message)
	go func() {
		defer close(out)
		for m := range q.messages {
			select {
			case out <- m:
				metrics.UpdateNotifyQueueSize(len(q.messages))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued messages.
func (q *InMemoryQueue) Len() int {
	return len(q.messages)
}

// Close stops accepting new messages.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.messages)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
