package timer

import (
	"sync"
	"time"
)

// Countdown counts whole steps down to zero. OnTick receives the remaining
// steps after each step; OnExpire runs once when zero is reached unless the
// countdown was cancelled first.
type Countdown struct {
	manager  *TimerManager
	id       int64
	mu       sync.Mutex
	left     int
	done     bool
	onTick   func(remaining int)
	onExpire func()
}

// NewCountdown starts a countdown of seconds steps, one every step duration.
// A non-positive seconds value expires on the first step.
func (m *TimerManager) NewCountdown(seconds int, step time.Duration, onTick func(remaining int), onExpire func()) *Countdown {
	if seconds < 1 {
		seconds = 1
	}
	c := &Countdown{
		manager:  m,
		left:     seconds,
		onTick:   onTick,
		onExpire: onExpire,
	}
	c.mu.Lock()
	c.id = m.AddTimer(step, step, c.step)
	c.mu.Unlock()
	return c
}

func (c *Countdown) step() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.left--
	remaining := c.left
	if remaining > 0 {
		c.mu.Unlock()
		if c.onTick != nil {
			c.onTick(remaining)
		}
		return
	}
	c.done = true
	c.manager.RemoveTimer(c.id)
	c.mu.Unlock()

	if c.onExpire != nil {
		c.onExpire()
	}
}

// Cancel stops the countdown. It reports true only for the call that
// actually cancelled a live countdown.
func (c *Countdown) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return false
	}
	c.done = true
	c.manager.RemoveTimer(c.id)
	return true
}

// Remaining returns the steps left, or zero once finished or cancelled.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return 0
	}
	return c.left
}
