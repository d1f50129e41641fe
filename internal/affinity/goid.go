package affinity

import "runtime"

// goroutineID returns a unique identifier for the current goroutine.
// This is a hack that reads from the runtime stack, but it's safe and fast
// enough for telling the worker apart from its callers.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// Stack looks like "goroutine 123 [running]:\n..."
	// We parse the number after "goroutine "
	var id uint64
	for i := len("goroutine "); i < n && buf[i] != ' '; i++ {
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
