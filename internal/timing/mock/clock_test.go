package mock

import (
	"testing"
	"time"
)

func TestClockAdvanceFiresTimer(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(base)
	timer := c.NewTimer(5 * time.Second)

	c.Advance(3 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("timer fired before its duration elapsed")
	default:
	}

	c.Advance(3 * time.Second)
	select {
	case got := <-timer.C():
		if !got.Equal(base.Add(5 * time.Second)) {
			t.Fatalf("got %v, want %v", got, base.Add(5*time.Second))
		}
	default:
		t.Fatal("expected timer to have fired")
	}
}

func TestClockAdvanceFiresTickerRepeatedly(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(base)
	ticker := c.NewTicker(time.Second)

	c.Advance(3500 * time.Millisecond)

	count := 0
	for {
		select {
		case <-ticker.C():
			count++
		default:
			goto done
		}
	}
done:
	if count == 0 {
		t.Fatal("expected ticker to have fired at least once")
	}
}

func TestClockAfterFuncRunsCallback(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(base)
	done := make(chan struct{})
	c.AfterFunc(time.Second, func() { close(done) })

	c.Advance(2 * time.Second)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AfterFunc callback did not run")
	}
}

func TestClockTimerStopPreventsFire(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(base)
	timer := c.NewTimer(time.Second)
	if !timer.Stop() {
		t.Fatal("expected Stop to report the timer was active")
	}

	c.Advance(2 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("stopped timer must not fire")
	default:
	}
}
