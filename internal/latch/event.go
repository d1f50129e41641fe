// Package latch provides a counting one-shot event.
package latch

import (
	"context"
	"sync"
	"time"
)

// Event transitions from pending to occurred after a fixed number of
// occurrences. The transition is one-way.
type Event struct {
	mu    sync.Mutex
	count int
	done  chan struct{}
}

// New returns an event that needs n occurrences. n <= 0 yields an event
// that has already occurred.
func New(n int) *Event {
	e := &Event{count: n, done: make(chan struct{})}
	if n <= 0 {
		e.count = 0
		close(e.done)
	}
	return e
}

// Occur records one occurrence. Calls after the event occurred are ignored.
func (e *Event) Occur() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.count == 0 {
		return
	}
	e.count--
	if e.count == 0 {
		close(e.done)
	}
}

// DidOccur reports whether the event has occurred.
func (e *Event) DidOccur() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Remaining returns the number of occurrences still required.
func (e *Event) Remaining() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// Done returns a channel closed when the event occurs.
func (e *Event) Done() <-chan struct{} {
	return e.done
}

// Await blocks for at most timeout and reports whether the event occurred.
func (e *Event) Await(timeout time.Duration) bool {
	if timeout <= 0 {
		return e.DidOccur()
	}
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-e.done:
		return true
	case <-t.C:
		return e.DidOccur()
	}
}

// AwaitContext blocks until the event occurs or ctx is done.
func (e *Event) AwaitContext(ctx context.Context) bool {
	select {
	case <-e.done:
		return true
	case <-ctx.Done():
		return e.DidOccur()
	}
}
