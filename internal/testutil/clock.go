package testutil

import (
	"sort"
	"sync"
	"time"

	"mirror-go/internal/mirror"
)

// ManualClock is a Clock whose time only moves when Advance is called.
// Timers created by AfterFunc fire during Advance, on the calling goroutine
// and before Advance returns. Safe for concurrent use.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

// NewManualClock creates a ManualClock set to the given time.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// FixedClock returns a ManualClock set to 2024-01-15 10:30:00 UTC.
func FixedClock() *ManualClock {
	return NewManualClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) mirror.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{when: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d and fires every timer that came due,
// earliest first.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now

	var due, rest []*manualTimer
	for _, t := range c.timers {
		if !t.when.After(now) {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	c.timers = rest
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].when.Before(due[j].when) })
	for _, t := range due {
		if t.claim() {
			t.f()
		}
	}
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if t.active() {
			n++
		}
	}
	return n
}

type manualTimer struct {
	mu   sync.Mutex
	when time.Time
	f    func()
	done bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// claim marks the timer fired and reports whether it was still active.
func (t *manualTimer) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (t *manualTimer) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.done
}

var _ mirror.Clock = (*ManualClock)(nil)
