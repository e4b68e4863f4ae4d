package order

import "context"

// Queue serializes one leg's intents. Each leg owns exactly one queue
// drained by exactly one goroutine, so a leg's entry and exit can never
// race each other.
type Queue struct {
	ch chan Intent
}

// NewQueue builds a buffered intent queue.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 64
	}
	return &Queue{ch: make(chan Intent, size)}
}

// Enqueue appends an intent in arrival order.
func (q *Queue) Enqueue(i Intent) {
	q.ch <- i
}

// Chan exposes the receive side.
func (q *Queue) Chan() <-chan Intent {
	return q.ch
}

// Close ends the queue; Drain returns after the buffer empties.
func (q *Queue) Close() {
	close(q.ch)
}

// Drain consumes intents with a handler until the context is cancelled
// or the queue is closed.
func (q *Queue) Drain(ctx context.Context, handler func(Intent)) {
	for {
		select {
		case <-ctx.Done():
			return
		case i, ok := <-q.ch:
			if !ok {
				return
			}
			handler(i)
		}
	}
}
