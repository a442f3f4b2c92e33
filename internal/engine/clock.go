// Package engine provides the tick-based simulation loop: the clock that
// turns real time into whole ticks, the simulation context that sequences
// disasters, soil and colony each tick, and the read-only snapshot handed
// to observers.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// MaxScale is the highest accepted time scale.
const MaxScale = 100

// ErrInvalidScale is returned for a time scale outside 0..MaxScale.
var ErrInvalidScale = errors.New("time scale out of range")

// SpeedPresets are the scales offered to front ends.
var SpeedPresets = []int{1, 2, 5, 10, 20, 30, 50, 75, 100}

// Clock converts elapsed real time into whole simulation ticks.
//
// Debt is kept as an exact integer in units of 1/1e9 tick, so the
// fraction left over after each frame carries into the next one and no
// tick time is lost or duplicated regardless of frame rate.
type Clock struct {
	mu          sync.Mutex
	tps         int64 // ticks per real second at scale 1
	scale       int
	paused      bool
	debt        int64
	maxPerFrame int
}

// ClockState is the persisted form of a Clock.
type ClockState struct {
	Scale  int   `json:"scale"`
	Paused bool  `json:"paused"`
	Debt   int64 `json:"debt"`
}

// NewClock creates a clock running at scale. maxPerFrame caps the ticks
// dispatched by one Advance; 0 means no cap.
func NewClock(ticksPerSecond, scale, maxPerFrame int) *Clock {
	return &Clock{
		tps:         int64(max(ticksPerSecond, 1)),
		scale:       min(max(scale, 0), MaxScale),
		maxPerFrame: max(maxPerFrame, 0),
	}
}

// Advance accounts for real elapsed time and returns how many ticks to run.
// A paused clock, or scale 0, yields zero and accrues nothing. When the cap
// applies, the surplus stays in the debt and is paid out on later frames.
func (c *Clock) Advance(elapsed time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.scale == 0 || elapsed <= 0 {
		return 0
	}
	c.debt += elapsed.Nanoseconds() * c.tps * int64(c.scale)
	n := c.debt / int64(time.Second)
	if c.maxPerFrame > 0 && n > int64(c.maxPerFrame) {
		n = int64(c.maxPerFrame)
	}
	c.debt -= n * int64(time.Second)
	return int(n)
}

// SetScale changes the multiplier. 0 pauses; any positive scale resumes a
// paused clock, matching the speed preset buttons.
func (c *Clock) SetScale(scale int) error {
	if scale < 0 || scale > MaxScale {
		return fmt.Errorf("scale %d: %w", scale, ErrInvalidScale)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scale = scale
	if scale > 0 {
		c.paused = false
	}
	return nil
}

// Pause stops tick accrual without forgetting the scale.
func (c *Clock) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// Resume restarts accrual at the current scale.
func (c *Clock) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

// Scale returns the current multiplier.
func (c *Clock) Scale() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scale
}

// Paused reports whether the clock yields no ticks.
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused || c.scale == 0
}

// Debt returns the carried fraction in 1/1e9 tick units.
func (c *Clock) Debt() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debt
}

// State captures the clock for saving.
func (c *Clock) State() ClockState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ClockState{Scale: c.scale, Paused: c.paused, Debt: c.debt}
}

// Restore loads a saved clock state.
func (c *Clock) Restore(st ClockState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scale = min(max(st.Scale, 0), MaxScale)
	c.paused = st.Paused
	c.debt = max(st.Debt, 0)
}
