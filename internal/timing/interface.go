// Package timing abstracts wall-clock time behind an interface so the
// session reaper (which enforces TTL expiry), the tunnel readiness
// timeout, and rate-limiter windows can be driven by a mock clock in
// tests instead of real sleeps.
package timing

import "time"

// Clock is the seam every time-dependent component in this module depends
// on instead of calling the time package directly.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	After(d time.Duration) <-chan time.Time
	NewTimer(d time.Duration) Timer
	AfterFunc(d time.Duration, f func()) Timer
	NewTicker(d time.Duration) Ticker
}

// Timer mirrors time.Timer behind the Clock seam.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// Ticker mirrors time.Ticker behind the Clock seam.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}
