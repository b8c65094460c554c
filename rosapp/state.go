package rosapp

import "sync"

// CounterSnapshot is a consistent copy of the command counters
type CounterSnapshot struct {
	Command uint8
	Error   uint8
}

// Counters holds the command and error counters. Both wrap at 256.
type Counters struct {
	mu  sync.Mutex
	cmd uint8
	err uint8
}

// IncrementCommand counts an accepted command
func (c *Counters) IncrementCommand() {
	c.mu.Lock()
	c.cmd++
	c.mu.Unlock()
}

// IncrementError counts a rejected command
func (c *Counters) IncrementError() {
	c.mu.Lock()
	c.err++
	c.mu.Unlock()
}

// Reset zeroes both counters together
func (c *Counters) Reset() {
	c.mu.Lock()
	c.cmd = 0
	c.err = 0
	c.mu.Unlock()
}

// Snapshot returns both counters as of one instant
func (c *Counters) Snapshot() CounterSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CounterSnapshot{Command: c.cmd, Error: c.err}
}
