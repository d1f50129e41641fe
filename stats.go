package nativebridge

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/Gaurav-Gosain/nativebridge/internal/handle"
)

type stats struct {
	created     atomic.Uint64
	released    atomic.Uint64
	reclaimed   atomic.Uint64
	drained     atomic.Uint64
	invocations atomic.Uint64
	timeouts    atomic.Uint64
}

// Stats is a snapshot of session counters.
type Stats struct {
	State       string `json:"state"`
	Live        int    `json:"live"`        // handles currently registered
	Created     uint64 `json:"created"`     // resources allocated
	Released    uint64 `json:"released"`    // freed by Release
	Reclaimed   uint64 `json:"reclaimed"`   // freed after collection
	Drained     uint64 `json:"drained"`     // freed by Close
	Invocations uint64 `json:"invocations"` // submissions accepted by the session
	Executed    uint64 `json:"executed"`    // tasks run on the affinity thread
	Rejected    uint64 `json:"rejected"`    // submissions refused after Close
	Timeouts    uint64 `json:"timeouts"`    // waits that gave up
	Pending     int    `json:"pending"`     // queued or running
}

// Stats returns the current counters.
func (s *Session) Stats() Stats {
	return Stats{
		State:       s.State().String(),
		Live:        s.registry.Owned(s.id),
		Created:     s.stats.created.Load(),
		Released:    s.stats.released.Load(),
		Reclaimed:   s.stats.reclaimed.Load(),
		Drained:     s.stats.drained.Load(),
		Invocations: s.stats.invocations.Load(),
		Executed:    s.loop.Executed(),
		Rejected:    s.loop.Rejected(),
		Timeouts:    s.stats.timeouts.Load(),
		Pending:     s.loop.Pending(),
	}
}

// EngineStats is the foreign runtime's own view of its state.
type EngineStats struct {
	Live   uint32 `json:"live"`   // resources the engine holds
	Memory uint32 `json:"memory"` // linear memory in bytes
}

var errNoEngineStats = errors.New("foreign runtime does not report its state")

// Engine asks the foreign runtime for its state on the affinity thread.
// Once the queue is idle its Live matches Stats().Live; a difference means
// a free failed or a resource leaked on the foreign side.
func (s *Session) Engine(ctx context.Context) (EngineStats, error) {
	const op = "engine"

	v, err := s.wait(ctx, op, handle.Null, s.Submit(func() (any, error) {
		r, ok := s.foreign.(EngineReporter)
		if !ok {
			return nil, newError(KindForeignRuntime, op, handle.Null, errNoEngineStats)
		}
		live, err := r.Live(s.ctx)
		if err != nil {
			return nil, newError(KindForeignRuntime, op, handle.Null, err)
		}
		return EngineStats{Live: live, Memory: r.MemorySize()}, nil
	}))
	if err != nil {
		return EngineStats{}, err
	}
	return v.(EngineStats), nil
}
