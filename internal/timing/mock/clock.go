// Package mock implements timing.Clock with controlled, manually advanced
// time, letting tests cross TTL and rate-limit window boundaries without
// sleeping.
package mock

import (
	"sync"
	"time"

	"exposemgr/internal/timing"
)

// Clock is a fake timing.Clock whose time only moves when Advance is
// called.
type Clock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*mockTimer
	tickers []*mockTicker
}

// New returns a mock clock starting at now.
func New(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Sleep(d time.Duration) { c.Advance(d) }

func (c *Clock) After(d time.Duration) <-chan time.Time {
	return c.NewTimer(d).C()
}

func (c *Clock) NewTimer(d time.Duration) timing.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTimer{c: c, when: c.now.Add(d), ch: make(chan time.Time, 1), active: true}
	c.timers = append(c.timers, t)
	return t
}

func (c *Clock) AfterFunc(d time.Duration, f func()) timing.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTimer{c: c, when: c.now.Add(d), fn: f, active: true}
	c.timers = append(c.timers, t)
	return t
}

func (c *Clock) NewTicker(d time.Duration) timing.Ticker {
	if d <= 0 {
		panic("timing/mock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTicker{c: c, duration: d, next: c.now.Add(d), ch: make(chan time.Time, 1), active: true}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves the clock forward by d, firing any timers and tickers due
// to fire at or before the new time, in order.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	end := c.now.Add(d)
	for c.now.Before(end) {
		next := end
		for _, t := range c.timers {
			if t.active && t.when.Before(next) {
				next = t.when
			}
		}
		for _, t := range c.tickers {
			if t.active && t.next.Before(next) {
				next = t.next
			}
		}
		c.now = next

		var live []*mockTimer
		for _, t := range c.timers {
			if !t.active {
				continue
			}
			if !t.when.After(c.now) {
				t.fire()
			} else {
				live = append(live, t)
			}
		}
		c.timers = live

		for _, t := range c.tickers {
			if !t.active {
				continue
			}
			for !t.next.After(c.now) {
				t.fire()
				t.next = t.next.Add(t.duration)
			}
		}
	}
}

type mockTimer struct {
	c      *Clock
	when   time.Time
	ch     chan time.Time
	fn     func()
	active bool
	mu     sync.Mutex
}

func (t *mockTimer) C() <-chan time.Time { return t.ch }

func (t *mockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := t.active
	t.active = false
	return active
}

func (t *mockTimer) Reset(d time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	active := t.active
	t.active = true
	t.when = t.c.now.Add(d)
	return active
}

func (t *mockTimer) fire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	if t.fn != nil {
		go t.fn()
	} else {
		select {
		case t.ch <- t.when:
		default:
		}
	}
	t.active = false
}

type mockTicker struct {
	c        *Clock
	duration time.Duration
	next     time.Time
	ch       chan time.Time
	active   bool
	mu       sync.Mutex
}

func (t *mockTicker) C() <-chan time.Time { return t.ch }

func (t *mockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
}

func (t *mockTicker) fire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	select {
	case t.ch <- t.next:
	default:
	}
}
