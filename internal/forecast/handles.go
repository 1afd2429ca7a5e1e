package forecast

import "sync/atomic"

// liveHandles counts datasets and models that have been allocated but not
// released. Cancellation paths must drive this back to its prior value.
var liveHandles int64

// LiveHandles reports the number of unreleased model/dataset handles.
func LiveHandles() int {
	return int(atomic.LoadInt64(&liveHandles))
}

func retainHandle()  { atomic.AddInt64(&liveHandles, 1) }
func releaseHandle() { atomic.AddInt64(&liveHandles, -1) }
