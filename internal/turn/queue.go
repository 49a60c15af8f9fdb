// Package turn carries recognized utterances from the listener to the
// dialogue loop.
package turn

import (
	"context"
	"sync"
	"time"

	"github.com/lexiqai/misa/internal/observability"
)

// Utterance is one accepted phrase. Each is consumed exactly once.
type Utterance struct {
	Text       string
	CapturedAt time.Time
}

// Queue is an unbounded FIFO of utterances, safe for one producer and one
// consumer (or more of either).
type Queue struct {
	mu    sync.Mutex
	items []Utterance
	// ready holds one token whenever items may be non-empty
	ready chan struct{}
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Push appends an utterance. It never blocks.
func (q *Queue) Push(u Utterance) {
	q.mu.Lock()
	q.items = append(q.items, u)
	n := len(q.items)
	q.mu.Unlock()

	observability.SetQueueDepth(n)
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TryPop removes the oldest utterance without waiting
func (q *Queue) TryPop() (Utterance, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Utterance{}, false
	}
	u := q.items[0]
	q.items[0] = Utterance{}
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// Keep the token for the next consumer
		select {
		case q.ready <- struct{}{}:
		default:
		}
	}
	observability.SetQueueDepth(len(q.items))
	return u, true
}

// Pop waits up to timeout for an utterance. It returns false on timeout or
// when ctx is done.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (Utterance, bool) {
	if u, ok := q.TryPop(); ok {
		return u, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Utterance{}, false
		case <-timer.C:
			return q.TryPop()
		case <-q.ready:
			if u, ok := q.TryPop(); ok {
				return u, true
			}
		}
	}
}

// Len returns the number of waiting utterances
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
