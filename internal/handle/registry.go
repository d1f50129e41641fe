package handle

import (
	"cmp"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
)

var (
	ErrNullPointer = errors.New("foreign pointer is null")
	ErrUnknown     = errors.New("handle is not registered")
	ErrNotOwner    = errors.New("handle is owned by another session")
)

// Entry is one registered resource.
type Entry struct {
	Handle Handle
	Native uint64
	Owner  uint64
}

// Registry maps handles to foreign pointers and their owners.
// It is the only structure shared between sessions and is safe for
// concurrent use.
type Registry struct {
	entries map[Handle]Entry
	mu      sync.RWMutex
	next    atomic.Uint64
}

// Default is the process-wide registry used by bridge sessions.
var Default = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[Handle]Entry, 64),
	}
}

// Register records native under owner and returns a fresh handle.
func (r *Registry) Register(owner, native uint64) (Handle, error) {
	if native == 0 {
		return Null, ErrNullPointer
	}
	h := Handle(r.next.Add(1))

	r.mu.Lock()
	r.entries[h] = Entry{Handle: h, Native: native, Owner: owner}
	r.mu.Unlock()
	return h, nil
}

// Lookup returns the foreign pointer for h if it is live and owned by owner.
func (r *Registry) Lookup(h Handle, owner uint64) (uint64, bool) {
	if h == Null {
		return 0, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[h]
	if !ok || e.Owner != owner {
		return 0, false
	}
	return e.Native, true
}

// Valid reports whether h is registered to anyone.
func (r *Registry) Valid(h Handle) bool {
	if h == Null {
		return false
	}
	r.mu.RLock()
	_, ok := r.entries[h]
	r.mu.RUnlock()
	return ok
}

// Unregister removes h if it is owned by owner and returns its foreign
// pointer. Exactly one of any number of concurrent callers for the same
// handle gets ok == true; that caller is responsible for the foreign free.
func (r *Registry) Unregister(h Handle, owner uint64) (native uint64, ok bool) {
	if h == Null {
		return 0, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, found := r.entries[h]
	if !found || e.Owner != owner {
		return 0, false
	}
	delete(r.entries, h)
	return e.Native, true
}

// Transfer moves the entry behind h to owner to under a fresh handle and
// returns it. h stops resolving, so holders of the old handle can no longer
// release the resource. from and to may be the same owner.
func (r *Registry) Transfer(h Handle, from, to uint64) (Handle, error) {
	if h == Null {
		return Null, ErrNullPointer
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h]
	if !ok {
		return Null, ErrUnknown
	}
	if e.Owner != from {
		return Null, ErrNotOwner
	}
	delete(r.entries, h)

	e.Handle = Handle(r.next.Add(1))
	e.Owner = to
	r.entries[e.Handle] = e
	return e.Handle, nil
}

// Drain removes every entry owned by owner and returns them in handle order.
func (r *Registry) Drain(owner uint64) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Entry
	for h, e := range r.entries {
		if e.Owner == owner {
			out = append(out, e)
			delete(r.entries, h)
		}
	}
	slices.SortFunc(out, func(a, b Entry) int { return cmp.Compare(a.Handle, b.Handle) })
	return out
}

// Owned returns the number of live handles owned by owner.
func (r *Registry) Owned(owner uint64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if e.Owner == owner {
			n++
		}
	}
	return n
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
