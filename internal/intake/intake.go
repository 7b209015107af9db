// Package intake defines the queue contract that feeds action requests
// into the processing pipeline. Producers enqueue requests; the pipeline
// dequeues them, processes exactly one at a time per session, and acks
// only after the result is durably recorded, so an unacked delivery is
// redelivered after a crash.
package intake

import (
	"context"

	"github.com/fableguard/fableguard/internal/action"
)

// Message wraps a request with its delivery handle.
type Message struct {
	// ID is the broker-assigned delivery id used to ack.
	ID      string
	Request action.Request
}

// Queue transports action requests from producers to the pipeline.
type Queue interface {
	// Enqueue appends a request for processing.
	Enqueue(ctx context.Context, req action.Request) error
	// Dequeue blocks until a message is available or the context ends.
	Dequeue(ctx context.Context) (Message, error)
	// Ack marks a delivered message as processed. Unacked messages are
	// redelivered.
	Ack(ctx context.Context, msg Message) error
	// Close releases broker resources.
	Close() error
}
