package chain

import (
	"sync"
	"time"
)

// Clock provides invocation timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock is a Clock returning current system time.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock is a Clock which is moved forward explicitly.
type ManualClock struct {
	mtx sync.Mutex
	now time.Time
}

// NewManualClock returns ManualClock set to the given time.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now implements Clock.
func (x *ManualClock) Now() time.Time {
	x.mtx.Lock()
	defer x.mtx.Unlock()
	return x.now
}

// Advance moves the clock forward by d.
func (x *ManualClock) Advance(d time.Duration) {
	x.mtx.Lock()
	x.now = x.now.Add(d)
	x.mtx.Unlock()
}

// Set moves the clock to t.
func (x *ManualClock) Set(t time.Time) {
	x.mtx.Lock()
	x.now = t
	x.mtx.Unlock()
}
