package intake

import (
	"context"
	"fmt"
	"sync"

	"github.com/fableguard/fableguard/internal/action"
)

// MemoryQueue is a channel-backed queue for tests and single-process
// runs. Deliveries are acked implicitly; there is no redelivery.
type MemoryQueue struct {
	mu     sync.Mutex
	seq    int
	ch     chan Message
	closed bool
}

// NewMemoryQueue creates an in-memory queue with the given buffer size.
func NewMemoryQueue(size int) *MemoryQueue {
	if size < 1 {
		size = 1
	}
	return &MemoryQueue{ch: make(chan Message, size)}
}

// Enqueue appends a request for processing.
func (q *MemoryQueue) Enqueue(ctx context.Context, req action.Request) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("queue is closed")
	}
	q.seq++
	msg := Message{ID: fmt.Sprintf("mem-%d", q.seq), Request: req}
	q.mu.Unlock()

	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a message is available or the context ends.
func (q *MemoryQueue) Dequeue(ctx context.Context) (Message, error) {
	select {
	case msg, ok := <-q.ch:
		if !ok {
			return Message{}, fmt.Errorf("queue is closed")
		}
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Ack is a no-op for the in-memory queue.
func (q *MemoryQueue) Ack(context.Context, Message) error {
	return nil
}

// Close shuts the queue down. Pending messages remain readable.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
