// Package keepalive implements the Keep-Alive Controller of spec.md §4.5:
// it schedules an ALIVE_REQUEST at the connection's negotiated interval,
// resets on any connection activity, and lets the caller destroy the
// connection when an alive round-trip times out.
package keepalive

import (
	"sync"
	"time"
)

// Controller schedules a fire callback after Interval of inactivity, the
// way spec.md §4.5 schedules an alive request. Reset is called after every
// successful inbound parse and every outbound multi-fragment write.
type Controller struct {
	mu       sync.Mutex
	interval time.Duration
	timer    *time.Timer
	fire     func()
	stopped  bool
}

// New creates a Controller for the given interval. An interval of 0
// disables scheduling entirely (spec.md §3 aliveInterval=0 disables), in
// which case Start/Reset are no-ops.
func New(interval time.Duration, fire func()) *Controller {
	return &Controller{interval: interval, fire: fire}
}

// Start arms the first alive timer. Called once from Connection setup
// (engine.Engine.Listen).
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.interval <= 0 || c.stopped {
		return
	}
	c.timer = time.AfterFunc(c.interval, c.fire)
}

// Reset restarts the interval timer, called on any connection activity
// (spec.md §4.5).
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.interval <= 0 || c.stopped {
		return
	}
	if c.timer == nil {
		c.timer = time.AfterFunc(c.interval, c.fire)
		return
	}
	c.timer.Reset(c.interval)
}

// SetInterval changes the scheduling interval; 0 disables future
// scheduling and cancels any timer in flight.
func (c *Controller) SetInterval(interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interval = interval
	if interval <= 0 && c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Stop cancels the timer permanently, called on connection teardown
// (spec.md §5 "socket destruction cancels the keep-alive timer").
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
