// Package affinity runs work on a single dedicated goroutine.
//
// The foreign runtimes driven by the bridge are single-threaded, so every
// call that touches their state is queued here and executed in FIFO order
// by one worker goroutine that is locked to its OS thread. Callers wait on
// a Future with a bounded timeout. Work submitted from the worker itself
// runs inline, so tasks may call back into the bridge without deadlocking.
package affinity

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Gaurav-Gosain/nativebridge/internal/latch"
)

var (
	ErrClosed  = errors.New("affinity loop closed")
	ErrTimeout = errors.New("timed out waiting for affinity loop")
)

// PanicError reports a panic recovered from a task.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Func is a unit of work executed on the loop goroutine.
type Func func() (any, error)

type task struct {
	fn  Func
	fut *Future
}

type loopState int

const (
	stateNew loopState = iota
	stateRunning
	stateClosing
	stateClosed
)

// Loop is a single-consumer task queue with a dedicated worker.
type Loop struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []task
	inflight int
	idle     []*latch.Event
	state    loopState

	gid  atomic.Uint64
	done chan struct{}

	executed atomic.Uint64
	rejected atomic.Uint64
}

// New creates a loop. Tasks may be queued before Start; they run once the
// worker is started.
func New() *Loop {
	l := &Loop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Start launches the worker goroutine and returns once it is running.
// Calling Start more than once has no effect.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.state != stateNew {
		l.mu.Unlock()
		return
	}
	l.state = stateRunning
	l.mu.Unlock()

	started := make(chan struct{})
	go l.run(started)
	<-started
}

func (l *Loop) run(started chan<- struct{}) {
	// Foreign runtimes may keep thread-local state; pin the worker.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.gid.Store(goroutineID())
	close(started)
	defer close(l.done)

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && l.state != stateClosed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		t := l.queue[0]
		l.queue[0] = task{}
		l.queue = l.queue[1:]
		l.mu.Unlock()

		v, err := l.execute(t.fn)
		t.fut.complete(v, err)

		l.mu.Lock()
		l.inflight--
		if l.inflight == 0 {
			for _, e := range l.idle {
				e.Occur()
			}
			l.idle = nil
		}
		l.mu.Unlock()
	}
}

func (l *Loop) execute(fn Func) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, &PanicError{Value: r}
		}
	}()
	l.executed.Add(1)
	return fn()
}

// OnLoop reports whether the caller is running on the worker goroutine.
func (l *Loop) OnLoop() bool {
	gid := l.gid.Load()
	return gid != 0 && gid == goroutineID()
}

// Submit queues fn and returns its future. From the worker goroutine fn
// runs inline and the returned future is already resolved. After Shutdown
// has been called every submission from other goroutines is rejected with
// ErrClosed without being queued.
func (l *Loop) Submit(fn Func) *Future {
	if l.OnLoop() {
		l.mu.Lock()
		closed := l.state == stateClosed
		l.mu.Unlock()
		if closed {
			l.rejected.Add(1)
			return completed(nil, ErrClosed)
		}
		return completed(l.execute(fn))
	}

	fut := newFuture()

	l.mu.Lock()
	if l.state >= stateClosing {
		l.mu.Unlock()
		l.rejected.Add(1)
		return completed(nil, ErrClosed)
	}
	l.queue = append(l.queue, task{fn: fn, fut: fut})
	l.inflight++
	l.cond.Signal()
	l.mu.Unlock()

	return fut
}

// Shutdown stops accepting work and queues final behind every task already
// submitted. Once final has run the loop is closed and the worker exits.
// Only the first call queues final; later calls return ErrClosed.
func (l *Loop) Shutdown(final Func) *Future {
	fut := newFuture()

	l.mu.Lock()
	switch l.state {
	case stateNew:
		l.state = stateClosed
		close(l.done)
		l.mu.Unlock()
		return completed(nil, ErrClosed)
	case stateClosing, stateClosed:
		l.mu.Unlock()
		return completed(nil, ErrClosed)
	}
	l.state = stateClosing

	wrapped := func() (any, error) {
		defer func() {
			l.mu.Lock()
			l.state = stateClosed
			l.cond.Broadcast()
			l.mu.Unlock()
		}()
		return final()
	}
	l.queue = append(l.queue, task{fn: wrapped, fut: fut})
	l.inflight++
	l.cond.Signal()
	l.mu.Unlock()

	return fut
}

// Closing reports whether Shutdown has been called.
func (l *Loop) Closing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state >= stateClosing
}

// Done is closed when the worker goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Idle returns an event that occurs once no task is queued or running.
func (l *Loop) Idle() *latch.Event {
	e := latch.New(1)

	l.mu.Lock()
	if l.inflight == 0 {
		e.Occur()
	} else {
		l.idle = append(l.idle, e)
	}
	l.mu.Unlock()

	return e
}

// Pending returns the number of tasks queued or running.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inflight
}

// Executed returns the number of tasks run so far, inline ones included.
func (l *Loop) Executed() uint64 { return l.executed.Load() }

// Rejected returns the number of submissions refused because the loop was
// closing or closed.
func (l *Loop) Rejected() uint64 { return l.rejected.Load() }
