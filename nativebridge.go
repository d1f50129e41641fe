// Package nativebridge calls into a single-threaded foreign runtime from
// any goroutine and manages the lifetime of the resources it hands out.
//
// A Session owns one foreign runtime. Every call that touches foreign state
// runs on the session's affinity thread, a dedicated goroutine locked to its
// OS thread; callers block on the result for a bounded time. Resources are
// wrapped in Objects identified by opaque Handles, and each resource is freed
// exactly once: by Object.Release, by the collector when an Object becomes
// unreachable, or when the Session is closed.
//
// Basic usage:
//
//	s, err := nativebridge.Open(ctx)
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	n, err := nativebridge.NewNode(ctx, s)
//	if err != nil {
//		return err
//	}
//	defer n.Free(ctx)
//
//	n.Set(ctx, nativebridge.FieldWidth, 120)
package nativebridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Gaurav-Gosain/nativebridge/internal/affinity"
	"github.com/Gaurav-Gosain/nativebridge/internal/handle"
)

// Handle is an opaque reference to a resource owned by the foreign runtime.
type Handle = handle.Handle

// Future is the completion signal of a submitted invocation.
type Future = affinity.Future

// State is the lifecycle state of a Session.
type State int32

const (
	StateUninitialized State = iota
	StateActive
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

var sessionIDs atomic.Uint64

var errInitReentered = errors.New("called while the session is initializing")

// Session connects the Go side to one foreign runtime instance.
type Session struct {
	id       uint64
	cfg      config
	log      *zap.Logger
	loop     *affinity.Loop
	registry *handle.Registry

	// ctx is the context foreign calls run under. It outlives the callers
	// that queue work, so it carries values but never cancellation.
	ctx   context.Context
	state atomic.Int32

	initMu  sync.Mutex
	initFut *Future

	// closing is set by the first Close. closeFut is published before
	// queued is closed.
	closing  atomic.Bool
	queued   chan struct{}
	closeFut *Future

	// Owned by the affinity thread.
	foreign Foreign
	ready   int // modules initialized
	resumed bool

	stats stats
}

// New creates an uninitialized session. Call Initialize before use.
func New(opts ...Option) *Session {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Session{
		id:       sessionIDs.Add(1),
		cfg:      cfg,
		loop:     affinity.New(),
		registry: cfg.Registry,
		ctx:      context.Background(),
		queued:   make(chan struct{}),
	}
	l := cfg.Logger
	if l == nil {
		l = Logger()
	}
	s.log = l.With(zap.Uint64("session", s.id))
	return s
}

// Open creates a session and initializes it.
func Open(ctx context.Context, opts ...Option) (*Session, error) {
	s := New(opts...)
	if err := s.Initialize(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// ID returns the session id. Handles are registered under it.
func (s *Session) ID() uint64 { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Initialize starts the affinity thread, creates the foreign runtime and
// initializes every module on the affinity thread. It waits at most the
// invoke timeout. Calling it on an active session does nothing.
func (s *Session) Initialize(ctx context.Context) error {
	if s.loop.OnLoop() {
		switch s.State() {
		case StateActive:
			return nil
		case StateDestroyed:
			return newError(KindSessionClosed, "initialize", handle.Null, nil)
		}
		// A module is initializing; waiting on initMu would stall the loop.
		return newError(KindNotInitialized, "initialize", handle.Null, errInitReentered)
	}

	s.initMu.Lock()
	defer s.initMu.Unlock()

	switch s.State() {
	case StateActive:
		return nil
	case StateDestroyed:
		return newError(KindSessionClosed, "initialize", handle.Null, nil)
	}
	// A previous call that timed out left its initialization queued.
	if s.initFut == nil {
		if s.loop.Closing() {
			return newError(KindSessionClosed, "initialize", handle.Null, nil)
		}
		s.ctx = context.WithoutCancel(ctx)
		s.loop.Start()
		s.initFut = s.loop.Submit(s.initialize)
	}
	if _, err := s.initFut.Await(ctx, s.cfg.InvokeTimeout); err != nil {
		return classify("initialize", handle.Null, err)
	}
	s.log.Debug("session initialized", zap.Int("modules", len(s.cfg.Modules)))
	return nil
}

func (s *Session) initialize() (any, error) {
	f, err := s.cfg.Foreign(s.ctx)
	if err != nil {
		s.abort()
		return nil, newError(KindAllocation, "initialize", handle.Null, err)
	}
	if f == nil {
		s.abort()
		return nil, newError(KindAllocation, "initialize", handle.Null, errors.New("foreign factory returned nil"))
	}
	s.foreign = f

	for _, m := range s.cfg.Modules {
		if err := safely(func() error { return m.Initialize(s) }); err != nil {
			s.log.Error("module initialization failed", zap.String("module", m.Name()), zap.Error(err))
			s.abort()
			return nil, newError(KindForeignRuntime, "initialize "+m.Name(), handle.Null, err)
		}
		s.ready++
	}

	s.state.Store(int32(StateActive))
	return nil, nil
}

// abort tears the session down after a failed initialization. It runs on
// the affinity thread.
func (s *Session) abort() {
	s.loop.Shutdown(s.teardown)
}

// usable reports why work cannot be submitted, if it cannot.
func (s *Session) usable(op string) error {
	switch s.State() {
	case StateActive:
		return nil
	case StateDestroyed:
		return newError(KindSessionClosed, op, handle.Null, nil)
	}
	// Modules may call back into the session while it initializes.
	if s.loop.OnLoop() {
		return nil
	}
	return newError(KindNotInitialized, op, handle.Null, nil)
}

// Submit queues fn for the affinity thread and returns its future. Called
// from the affinity thread, fn runs inline. Once Close has been called the
// future is resolved at once with an error and fn never runs. Use Wait to
// collect the result.
func (s *Session) Submit(fn func() (any, error)) *Future {
	if err := s.usable("submit"); err != nil {
		return affinity.Failed(err)
	}
	fut := s.loop.Submit(fn)
	if !rejected(fut) {
		s.stats.invocations.Add(1)
	}
	return fut
}

// rejected reports whether the loop refused fut without running it.
func rejected(fut *Future) bool {
	if !fut.Ready() {
		return false
	}
	_, err := fut.Wait(0)
	return errors.Is(err, affinity.ErrClosed)
}

// Wait blocks until fut completes, the invoke timeout elapses or ctx is
// done. A timeout returns ErrTimeout; the invocation keeps running and its
// result is discarded.
func (s *Session) Wait(ctx context.Context, fut *Future) (any, error) {
	return s.wait(ctx, "wait", handle.Null, fut)
}

func (s *Session) wait(ctx context.Context, op string, h Handle, fut *Future) (any, error) {
	v, err := fut.Await(ctx, s.cfg.InvokeTimeout)
	if errors.Is(err, affinity.ErrTimeout) {
		s.stats.timeouts.Add(1)
		s.log.Warn("invocation timed out", zap.String("op", op), zap.Stringer("handle", h),
			zap.Duration("timeout", s.cfg.InvokeTimeout))
	}
	return v, classify(op, h, err)
}

// Run submits fn and waits for its result.
func (s *Session) Run(ctx context.Context, fn func() (any, error)) (any, error) {
	return s.wait(ctx, "run", handle.Null, s.Submit(fn))
}

// Create allocates a resource in the foreign runtime and wraps it.
func (s *Session) Create(ctx context.Context) (*Object, error) {
	const op = "create"

	v, err := s.wait(ctx, op, handle.Null, s.Submit(func() (any, error) {
		ptr, err := s.foreign.Allocate(s.ctx)
		if err != nil {
			return nil, newError(KindAllocation, op, handle.Null, err)
		}
		h, err := s.registry.Register(s.id, ptr)
		if err != nil {
			return nil, newError(KindAllocation, op, handle.Null, err)
		}
		return h, nil
	}))
	if err != nil {
		return nil, err
	}

	h := v.(Handle)
	s.stats.created.Add(1)
	s.log.Debug("created", zap.Stringer("handle", h))
	return s.wrap(h), nil
}

// Valid reports whether h refers to a live resource of this session.
func (s *Session) Valid(h Handle) bool {
	if h.IsNull() {
		return false
	}
	_, ok := s.registry.Lookup(h, s.id)
	return ok
}

// Invoke runs op with args on the resource behind h.
func (s *Session) Invoke(ctx context.Context, h Handle, op uint32, args ...int64) (int64, error) {
	const name = "invoke"

	if h.IsNull() {
		return 0, newError(KindInvalidHandle, name, h, handle.ErrNullPointer)
	}
	v, err := s.wait(ctx, name, h, s.Submit(func() (any, error) {
		ptr, ok := s.registry.Lookup(h, s.id)
		if !ok {
			cause := handle.ErrUnknown
			if s.registry.Valid(h) {
				cause = handle.ErrNotOwner
			}
			return nil, newError(KindInvalidHandle, name, h, cause)
		}
		r, err := s.foreign.Call(s.ctx, ptr, op, args)
		if err != nil {
			return nil, newError(KindForeignRuntime, name, h, err)
		}
		return r, nil
	}))
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Release frees the resource behind h. Releasing a handle that is already
// released, or after the session is closed, does nothing.
//
// Prefer Object.Release: an Object still holding h will try to free it
// again when collected, which is harmless but wasteful.
func (s *Session) Release(ctx context.Context, h Handle) error {
	if h.IsNull() {
		return nil
	}
	_, err := s.wait(ctx, "release", h, s.Submit(func() (any, error) {
		freed, err := s.free(h)
		if freed {
			s.stats.released.Add(1)
		}
		return nil, err
	}))
	if errors.Is(err, ErrSessionClosed) {
		// Teardown frees every handle still registered.
		return nil
	}
	return err
}

// free unregisters h and releases the foreign resource. Exactly one of any
// number of callers freeing the same handle gets freed == true. Runs on the
// affinity thread.
func (s *Session) free(h Handle) (freed bool, err error) {
	ptr, ok := s.registry.Unregister(h, s.id)
	if !ok {
		return false, nil
	}
	if err := s.foreign.Free(s.ctx, ptr); err != nil {
		return true, newError(KindForeignRuntime, "free", h, err)
	}
	s.log.Debug("freed", zap.Stringer("handle", h))
	return true, nil
}

// reclaim queues a best-effort free for a collected wrapper. It never blocks
// and never reports an error to anyone but the log.
func (s *Session) reclaim(h Handle) {
	fut := s.Submit(func() (any, error) {
		freed, err := s.free(h)
		if freed {
			s.stats.reclaimed.Add(1)
		}
		if err != nil {
			s.log.Warn("reclaim failed", zap.Stringer("handle", h), zap.Error(err))
		}
		return nil, nil
	})
	if fut.Ready() {
		if _, err := fut.Wait(0); err != nil {
			s.log.Debug("reclaim skipped", zap.Stringer("handle", h), zap.Error(err))
		}
	}
}

// Resume runs OnResume of every LifecycleListener module on the affinity
// thread. It does nothing if the session is already resumed.
func (s *Session) Resume(ctx context.Context) error {
	_, err := s.wait(ctx, "resume", handle.Null, s.Submit(func() (any, error) {
		if s.resumed {
			return nil, nil
		}
		s.resumed = true
		for _, m := range s.cfg.Modules {
			if l, ok := m.(LifecycleListener); ok {
				if err := safely(func() error { l.OnResume(); return nil }); err != nil {
					return nil, newError(KindForeignRuntime, "resume "+m.Name(), handle.Null, err)
				}
			}
		}
		return nil, nil
	}))
	return err
}

// Pause runs OnPause of every LifecycleListener module on the affinity
// thread. It does nothing unless the session is resumed.
func (s *Session) Pause(ctx context.Context) error {
	_, err := s.wait(ctx, "pause", handle.Null, s.Submit(func() (any, error) {
		return nil, s.pause()
	}))
	return err
}

func (s *Session) pause() error {
	if !s.resumed {
		return nil
	}
	s.resumed = false
	for _, m := range s.cfg.Modules {
		if l, ok := m.(LifecycleListener); ok {
			if err := safely(func() error { l.OnPause(); return nil }); err != nil {
				return newError(KindForeignRuntime, "pause "+m.Name(), handle.Null, err)
			}
		}
	}
	return nil
}

// WaitForIdle blocks until no invocation is queued or running, or until
// timeout elapses. It reports whether the session became idle. A timeout
// <= 0 uses the idle timeout.
func (s *Session) WaitForIdle(timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = s.cfg.IdleTimeout
	}
	return s.loop.Idle().Await(timeout)
}

// Idle returns an event that occurs once no invocation is queued or running.
func (s *Session) Idle() *Event {
	return s.loop.Idle()
}

// Close destroys the session. Invocations queued before Close run first;
// later ones are rejected with ErrSessionClosed. Teardown then runs on the
// affinity thread: listeners are paused, Destroyer modules are destroyed in
// reverse order, every handle still registered is freed and the foreign
// runtime is closed. Close waits at most the shutdown timeout, except when
// called from the affinity thread, where it returns once teardown is queued.
// Close may be called more than once and from several goroutines; callers
// off the affinity thread all wait for the same teardown.
func (s *Session) Close() error {
	if s.closing.CompareAndSwap(false, true) {
		s.closeFut = s.loop.Shutdown(s.teardown)
		close(s.queued)
	} else {
		<-s.queued
	}
	if s.loop.OnLoop() {
		return nil
	}
	return s.awaitClosed(s.closeFut)
}

func (s *Session) awaitClosed(fut *Future) error {
	_, err := fut.Wait(s.cfg.ShutdownTimeout)
	if errors.Is(err, affinity.ErrClosed) {
		// Never initialized, or torn down after a failed Initialize.
		select {
		case <-s.loop.Done():
		case <-time.After(s.cfg.ShutdownTimeout):
			return newError(KindTimeout, "close", handle.Null, nil)
		}
		s.state.Store(int32(StateDestroyed))
		return nil
	}
	if err != nil {
		return classify("close", handle.Null, err)
	}
	return nil
}

// teardown runs on the affinity thread after every queued invocation.
func (s *Session) teardown() (any, error) {
	var errs []error

	if err := s.pause(); err != nil {
		errs = append(errs, err)
	}
	for i := s.ready - 1; i >= 0; i-- {
		m := s.cfg.Modules[i]
		d, ok := m.(Destroyer)
		if !ok {
			continue
		}
		if err := safely(func() error { d.OnDestroy(); return nil }); err != nil {
			s.log.Warn("module destroy failed", zap.String("module", m.Name()), zap.Error(err))
			errs = append(errs, err)
		}
	}

	entries := s.registry.Drain(s.id)
	for _, e := range entries {
		if s.foreign == nil {
			break
		}
		if err := s.foreign.Free(s.ctx, e.Native); err != nil {
			s.log.Warn("teardown free failed", zap.Stringer("handle", e.Handle), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		s.stats.drained.Add(1)
	}

	if s.foreign != nil {
		if err := s.foreign.Close(s.ctx); err != nil {
			errs = append(errs, err)
		}
		s.foreign = nil
	}

	s.state.Store(int32(StateDestroyed))
	s.log.Debug("session destroyed", zap.Int("drained", len(entries)))

	if err := errors.Join(errs...); err != nil {
		return nil, newError(KindForeignRuntime, "close", handle.Null, err)
	}
	return nil, nil
}

// safely runs fn, turning a panic into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &affinity.PanicError{Value: r}
		}
	}()
	return fn()
}
