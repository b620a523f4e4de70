package canvas

import "sync"

// Clock is a monotonically increasing logical counter used to stamp
// element timestamps. Conflict resolution compares these values only;
// client wall clocks never participate, which keeps last-writer-wins
// immune to clock skew between peers.
type Clock struct {
	mu      sync.Mutex
	counter int64
}

// Tick advances the clock and returns the new value.
func (c *Clock) Tick() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	return c.counter
}

// Observe fast-forwards the clock past a timestamp seen on a remote
// event, so local stamps always order after everything already seen.
func (c *Clock) Observe(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts > c.counter {
		c.counter = ts
	}
}

// Now returns the current value without advancing.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter
}
