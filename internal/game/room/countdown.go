package room

import (
	"sync"
	"time"
)

// Countdown fires a callback once after a delay unless stopped first.
// It is safe for concurrent use.
type Countdown struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewCountdown starts a countdown that calls onFire after delay, on its own goroutine.
//
// Precondition: delay >= 0; onFire must not be nil.
// Postcondition: onFire will be called unless Stop is called first.
func NewCountdown(delay time.Duration, onFire func()) *Countdown {
	c := &Countdown{}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		stopped := c.stopped
		c.mu.Unlock()
		if !stopped {
			onFire()
		}
	})
	return c
}

// Stop prevents the callback from firing. Safe to call multiple times.
//
// Postcondition: onFire will not be called after Stop returns, unless it had already begun.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.timer.Stop()
}
