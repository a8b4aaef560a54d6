// Package timeutil converts ping timestamps to and from axis seconds and
// lets the report store run against a fake clock in tests.
package timeutil

import (
	"math"
	"sync"
	"time"
)

// Clock stamps report runs and paces retries on a busy database.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

// MockClock only moves when told to. Sleep advances it without blocking
// and is recorded so backoff schedules can be asserted.
type MockClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *MockClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Sleeps returns a copy of every duration passed to Sleep.
func (c *MockClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// ElapsedSeconds returns the seconds between epoch and each timestamp.
func ElapsedSeconds(times []time.Time, epoch time.Time) []float64 {
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = t.Sub(epoch).Seconds()
	}
	return out
}

// AtSeconds returns epoch plus s seconds, rounded to the millisecond.
func AtSeconds(epoch time.Time, s float64) time.Time {
	ms := math.Round(s * 1000)
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}
