package engine

import "sync/atomic"

// Clock is the host's monotonic frame counter.
//
// Every Step stamps its frame with the next value. Frame numbers order
// recorded ticks in the dispatch trace and never depend on wall time.
//
// Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming from start, as when a saved game
// is loaded.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new frame number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued frame number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// Reset moves the clock to frame.
func (c *Clock) Reset(frame int64) {
	c.seq.Store(frame)
}
