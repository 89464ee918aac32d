package engine

import "sync/atomic"

// Clock is a monotonic logical counter stamping test cases in execution
// order.
//
// Case numbers, not wall-clock timestamps, order everything the engine
// reports: statistics, notes, and the shrink history all refer to case
// numbers so replayed runs produce identical output.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though the engine's single-threaded execution means only one goroutine
// calls Next() in practice.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific case number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next case number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current case number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
