package button

import "time"

// Clock returns the current monotonic time. It must use the same origin as
// the timestamps the EdgeSource stamps on real edges.
type Clock func() time.Duration

// SinceClock returns a Clock measuring from origin using Go's monotonic reading.
func SinceClock(origin time.Time) Clock {
	return func() time.Duration {
		return time.Since(origin)
	}
}
