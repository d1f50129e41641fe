package nativebridge

import (
	"context"
	"runtime"

	"github.com/Gaurav-Gosain/nativebridge/internal/handle"
)

// Object is the Go-side owner of one foreign resource.
//
// Call Release when done with it. An Object that becomes unreachable
// without Release is reclaimed by the collector on a best-effort basis;
// that path exists to limit leaks and may never run.
type Object struct {
	s       *Session
	cell    *handle.Cell
	cleanup runtime.Cleanup
	armed   bool
}

// reclaimArg is what the cleanup keeps alive. It must not point back at the
// Object, or the Object would never become unreachable.
type reclaimArg struct {
	s    *Session
	cell *handle.Cell
}

func (s *Session) wrap(h Handle) *Object {
	o := &Object{s: s, cell: handle.NewCell(h)}
	if s.cfg.Reclaim {
		o.cleanup = runtime.AddCleanup(o, reclaim, reclaimArg{s: s, cell: o.cell})
		o.armed = true
	}
	return o
}

func reclaim(a reclaimArg) {
	h := a.cell.Take()
	if h.IsNull() {
		return
	}
	a.s.reclaim(h)
}

// Session returns the session that owns the resource.
func (o *Object) Session() *Session { return o.s }

// Handle returns the handle, or Null once released or transferred.
func (o *Object) Handle() Handle { return o.cell.Load() }

// Valid reports whether the object still refers to a live resource.
func (o *Object) Valid() bool {
	return o.s.Valid(o.cell.Load())
}

// Invoke runs op with args on the resource.
func (o *Object) Invoke(ctx context.Context, op uint32, args ...int64) (int64, error) {
	h := o.cell.Load()
	if h.IsNull() {
		return 0, newError(KindInvalidHandle, "invoke", h, nil)
	}
	v, err := o.s.Invoke(ctx, h, op, args...)
	// Keep o reachable until the call is done so it cannot be reclaimed
	// while the invocation is queued.
	runtime.KeepAlive(o)
	return v, err
}

// Release frees the resource. Only the first call does anything; later
// calls, and calls after the session is closed, return nil.
func (o *Object) Release(ctx context.Context) error {
	h := o.cell.Take()
	if h.IsNull() {
		return nil
	}
	if o.armed {
		o.cleanup.Stop()
	}
	return o.s.Release(ctx, h)
}

// Transfer moves the resource into a new Object and leaves o empty. The
// resource is registered under a fresh handle, so the old handle no longer
// refers to it and only the new Object can release it.
func (o *Object) Transfer() (*Object, error) {
	h := o.cell.Take()
	if h.IsNull() {
		return nil, newError(KindInvalidHandle, "transfer", h, nil)
	}
	if o.armed {
		o.cleanup.Stop()
	}
	moved, err := o.s.registry.Transfer(h, o.s.id, o.s.id)
	if err != nil {
		return nil, newError(KindInvalidHandle, "transfer", h, err)
	}
	return o.s.wrap(moved), nil
}
