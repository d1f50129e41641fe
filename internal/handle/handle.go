// Package handle tracks opaque handles to resources owned by a foreign runtime.
//
// A Handle is issued by a Registry and maps to a foreign pointer plus the
// owner (a bridge session) that is allowed to destroy it. Handles come from a
// monotonically increasing counter and are never reused, so a stale Handle can
// never alias a live resource.
package handle

import (
	"strconv"
	"sync/atomic"
)

// Handle is an opaque reference to a foreign-owned resource.
type Handle uint64

// Null is the sentinel meaning "no resource".
const Null Handle = 0

// IsNull reports whether h is the null handle.
func (h Handle) IsNull() bool { return h == Null }

func (h Handle) String() string {
	if h == Null {
		return "null"
	}
	return "#" + strconv.FormatUint(uint64(h), 10)
}

// Cell is the slot a managed wrapper keeps its handle in.
// Take clears the slot atomically, so among any number of concurrent
// callers exactly one receives the handle and the rest receive Null.
type Cell struct {
	v atomic.Uint64
}

// NewCell returns a cell holding h.
func NewCell(h Handle) *Cell {
	c := &Cell{}
	c.v.Store(uint64(h))
	return c
}

// Load returns the current handle without clearing it.
func (c *Cell) Load() Handle {
	return Handle(c.v.Load())
}

// Take swaps the cell to Null and returns the previous handle.
func (c *Cell) Take() Handle {
	return Handle(c.v.Swap(0))
}
