package pipeline

import (
	"context"
	"errors"
	"hash/fnv"
	"log"
	"sync"

	"github.com/fableguard/fableguard/internal/intake"
)

// Pool runs a fixed set of workers over the intake queue.
//
// A dispatcher goroutine dequeues and routes each message to a worker
// chosen by hashing the session ID, so every message of one session
// lands on the same worker and is processed in dequeue order. A message
// is acked only after its result is durably recorded; an unacked
// message is redelivered after a restart.
type Pool struct {
	queue     intake.Queue
	processor *Processor
	workers   int

	wg sync.WaitGroup
}

// NewPool builds a pool of the given size. Sizes below one are clamped
// to one.
func NewPool(queue intake.Queue, processor *Processor, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		queue:     queue,
		processor: processor,
		workers:   workers,
	}
}

// Run dispatches until the context is canceled or the queue closes,
// then drains the workers. It always returns the dispatch error, with
// context.Canceled mapped to nil.
func (p *Pool) Run(ctx context.Context) error {
	lanes := make([]chan intake.Message, p.workers)
	for i := range lanes {
		lanes[i] = make(chan intake.Message)
		p.wg.Add(1)
		go p.work(ctx, lanes[i])
	}

	err := p.dispatch(ctx, lanes)
	for _, lane := range lanes {
		close(lane)
	}
	p.wg.Wait()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Pool) dispatch(ctx context.Context, lanes []chan intake.Message) error {
	for {
		msg, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		lane := lanes[laneFor(msg.Request.SessionID, len(lanes))]
		select {
		case lane <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Pool) work(ctx context.Context, lane <-chan intake.Message) {
	defer p.wg.Done()

	for msg := range lane {
		result, err := p.processor.Process(ctx, msg.Request)
		if err != nil && result.IdempotencyKey == "" {
			// The result was never computed or recorded; leave the
			// message unacked for redelivery.
			log.Printf("level=error msg=\"process action\" session_id=%s kind=%s err=%q",
				msg.Request.SessionID, msg.Request.Kind, err)
			continue
		}
		if err != nil {
			// The result is committed; only a downstream collaborator
			// failed. Ack so the action is not resolved twice.
			log.Printf("level=warn msg=\"narration degraded\" session_id=%s kind=%s err=%q",
				msg.Request.SessionID, msg.Request.Kind, err)
		}
		if ackErr := p.queue.Ack(ctx, msg); ackErr != nil {
			log.Printf("level=error msg=\"ack message\" session_id=%s err=%q",
				msg.Request.SessionID, ackErr)
		}
	}
}

// laneFor maps a session ID onto a worker lane. The hash is stable, so
// one session always routes to the same lane.
func laneFor(sessionID string, lanes int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(lanes))
}
