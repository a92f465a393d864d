// Package real implements timing.Clock over the standard time package.
package real

import (
	"time"

	"exposemgr/internal/timing"
)

// Clock implements timing.Clock using the standard library.
type Clock struct{}

// New returns a real clock.
func New() *Clock { return &Clock{} }

func (c *Clock) Now() time.Time                    { return time.Now() }
func (c *Clock) Sleep(d time.Duration)              { time.Sleep(d) }
func (c *Clock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (c *Clock) NewTimer(d time.Duration) timing.Timer {
	return &realTimer{time.NewTimer(d)}
}

func (c *Clock) AfterFunc(d time.Duration, f func()) timing.Timer {
	return &realTimer{time.AfterFunc(d, f)}
}

func (c *Clock) NewTicker(d time.Duration) timing.Ticker {
	return &realTicker{time.NewTicker(d)}
}

type realTimer struct{ *time.Timer }

func (t *realTimer) C() <-chan time.Time { return t.Timer.C }

type realTicker struct{ *time.Ticker }

func (t *realTicker) C() <-chan time.Time { return t.Ticker.C }
