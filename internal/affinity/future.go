package affinity

import (
	"context"
	"time"
)

// Future is the single-use completion signal of a queued task.
type Future struct {
	done  chan struct{}
	value any
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// completed returns a future that is already resolved.
func completed(v any, err error) *Future {
	f := newFuture()
	f.complete(v, err)
	return f
}

// Failed returns a future already resolved with err. Callers use it to
// reject work without touching a loop.
func Failed(err error) *Future {
	return completed(nil, err)
}

// complete resolves the future. Must be called exactly once.
func (f *Future) complete(v any, err error) {
	f.value = v
	f.err = err
	close(f.done)
}

// Done returns a channel closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the result is available.
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks for at most timeout. A timeout yields ErrTimeout and leaves
// the task running; its result is then discarded.
func (f *Future) Wait(timeout time.Duration) (any, error) {
	return f.Await(context.Background(), timeout)
}

// Await blocks until the result is ready, timeout elapses or ctx is done.
func (f *Future) Await(ctx context.Context, timeout time.Duration) (any, error) {
	if f.Ready() {
		return f.value, f.err
	}
	if timeout <= 0 {
		return nil, ErrTimeout
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-f.done:
		return f.value, f.err
	case <-t.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
