// Package redis implements the intake queue on Redis Streams. Requests
// are appended with XADD and consumed through a consumer group, so a
// crashed worker's unacked deliveries are claimed again on restart.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/fableguard/fableguard/internal/action"
	"github.com/fableguard/fableguard/internal/intake"
)

const requestField = "request"

// Queue implements intake.Queue using a Redis Stream consumer group.
type Queue struct {
	client   *backend.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
}

// Option configures the queue.
type Option func(*Queue)

// WithStream overrides the stream key.
func WithStream(stream string) Option {
	return func(q *Queue) {
		q.stream = stream
	}
}

// WithGroup overrides the consumer group name.
func WithGroup(group string) Option {
	return func(q *Queue) {
		q.group = group
	}
}

// WithConsumer sets the consumer name within the group.
func WithConsumer(consumer string) Option {
	return func(q *Queue) {
		q.consumer = consumer
	}
}

// WithBlock sets how long a single Dequeue poll blocks on the broker.
func WithBlock(block time.Duration) Option {
	return func(q *Queue) {
		q.block = block
	}
}

// New creates a queue with its own Redis client.
func New(ctx context.Context, addr string, opts ...Option) (*Queue, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := backend.NewClient(&backend.Options{Addr: addr})
	return NewFromClient(ctx, client, opts...)
}

// NewFromClient creates a queue from an existing client and ensures the
// consumer group exists.
func NewFromClient(ctx context.Context, client *backend.Client, opts ...Option) (*Queue, error) {
	q := &Queue{
		client:   client,
		stream:   "fableguard:actions",
		group:    "pipeline",
		consumer: "worker-1",
		block:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(q)
	}

	err := client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return q, nil
}

// Enqueue appends a request to the stream.
func (q *Queue) Enqueue(ctx context.Context, req action.Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return q.client.XAdd(ctx, &backend.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{requestField: string(payload)},
	}).Err()
}

// Dequeue blocks until a message is available or the context ends.
// Pending deliveries left by a crashed consumer are drained before new
// entries are read.
func (q *Queue) Dequeue(ctx context.Context) (intake.Message, error) {
	// First pass claims this consumer's own unacked backlog.
	if msg, ok, err := q.read(ctx, "0"); err != nil || ok {
		return msg, err
	}

	for {
		msg, ok, err := q.read(ctx, ">")
		if err != nil {
			return intake.Message{}, err
		}
		if ok {
			return msg, nil
		}
		if err := ctx.Err(); err != nil {
			return intake.Message{}, err
		}
	}
}

func (q *Queue) read(ctx context.Context, cursor string) (intake.Message, bool, error) {
	streams, err := q.client.XReadGroup(ctx, &backend.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, cursor},
		Count:    1,
		Block:    q.block,
	}).Result()
	if err != nil {
		if err == backend.Nil {
			return intake.Message{}, false, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return intake.Message{}, false, ctxErr
		}
		return intake.Message{}, false, fmt.Errorf("read stream: %w", err)
	}

	for _, stream := range streams {
		for _, entry := range stream.Messages {
			raw, ok := entry.Values[requestField].(string)
			if !ok {
				// Malformed entry: drop it so it cannot wedge the group.
				_ = q.client.XAck(ctx, q.stream, q.group, entry.ID).Err()
				continue
			}
			var req action.Request
			if err := json.Unmarshal([]byte(raw), &req); err != nil {
				_ = q.client.XAck(ctx, q.stream, q.group, entry.ID).Err()
				continue
			}
			return intake.Message{ID: entry.ID, Request: req}, true, nil
		}
	}
	return intake.Message{}, false, nil
}

// Ack marks a delivery as processed.
func (q *Queue) Ack(ctx context.Context, msg intake.Message) error {
	return q.client.XAck(ctx, q.stream, q.group, msg.ID).Err()
}

// Close releases the underlying client.
func (q *Queue) Close() error {
	return q.client.Close()
}

var _ intake.Queue = (*Queue)(nil)
