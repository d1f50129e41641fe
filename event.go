package nativebridge

import "github.com/Gaurav-Gosain/nativebridge/internal/latch"

// Event is a one-way signal that occurs after a set number of Occur calls.
// Tests use it to wait for work they queued to finish:
//
//	ev := nativebridge.NewEvent(3)
//	for range 3 {
//		s.Submit(func() (any, error) { ev.Occur(); return nil, nil })
//	}
//	if !ev.Await(time.Second) {
//		t.Fatal("work did not run")
//	}
type Event = latch.Event

// NewEvent returns an event that occurs after n calls to Occur. An event
// with n <= 0 has already occurred.
func NewEvent(n int) *Event {
	return latch.New(n)
}
