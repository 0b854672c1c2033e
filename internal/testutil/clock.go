package testutil

import (
	"sync"
	"time"
)

// StepClock hands out a fixed frame duration and tracks simulated time.
//
// Host tests drive Host.Step with StepClock.Next instead of wall-clock
// deltas, so the number of scheduler ticks per frame is reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu      sync.Mutex
	step    time.Duration
	elapsed time.Duration
	frames  int64
}

// NewStepClock creates a clock that advances by step per frame.
//
// A non-positive step is treated as one millisecond.
func NewStepClock(step time.Duration) *StepClock {
	if step <= 0 {
		step = time.Millisecond
	}
	return &StepClock{step: step}
}

// Next advances one frame and returns the frame's elapsed time.
func (c *StepClock) Next() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames++
	c.elapsed += c.step
	return c.step
}

// Step returns the per-frame duration.
func (c *StepClock) Step() time.Duration { return c.step }

// Elapsed returns the simulated time so far.
func (c *StepClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// Frames returns how many times Next was called.
func (c *StepClock) Frames() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Reset rewinds the clock to zero.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed = 0
	c.frames = 0
}
