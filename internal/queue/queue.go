package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Queue is an unbounded in-memory FIFO of job ids, decoupled from the
// persisted status. Submission, retry re-enqueue and the reaper all produce;
// every worker consumes. Delivery is at-least-once: the same id may
// legitimately reappear after a retry or a lease reclamation.
type Queue struct {
	mu    sync.Mutex
	items []uuid.UUID
	wake  chan struct{}
}

func New() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Enqueue appends id at the tail and wakes one blocked consumer.
func (q *Queue) Enqueue(id uuid.UUID) {
	q.mu.Lock()
	q.items = append(q.items, id)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the head, blocking until an id is available or
// ctx is cancelled. Each id is delivered to exactly one consumer.
func (q *Queue) Dequeue(ctx context.Context) (uuid.UUID, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			id := q.items[0]
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()

			// Pass the wakeup on so other blocked consumers see the
			// remaining items.
			if remaining > 0 {
				select {
				case q.wake <- struct{}{}:
				default:
				}
			}
			return id, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return uuid.Nil, ctx.Err()
		case <-q.wake:
		}
	}
}

// Len returns the number of ids currently waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
