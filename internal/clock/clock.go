package clock

import "time"

var base = time.Now()

// NowNs returns the realtime clock in nanoseconds since the Unix epoch.
// Exchange timestamps are epoch-based, so every frame stamp uses this.
func NowNs() uint64 {
	return uint64(time.Now().UnixNano())
}

// MonoNs returns a monotonic reading in nanoseconds. Only differences are
// meaningful; use it for heartbeat intervals and latency measurements.
func MonoNs() uint64 {
	return uint64(time.Since(base))
}

// NowMs returns the realtime clock in milliseconds since the Unix epoch,
// the unit Binance expects for request timestamps.
func NowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}
