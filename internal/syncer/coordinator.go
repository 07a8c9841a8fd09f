package syncer

import (
	"sync"
)

// Status is a sync lifecycle notification delivered to subscribers.
type Status string

const (
	// StatusStart is emitted when syncing begins, strictly before any refresh
	// or replay side effect.
	StatusStart Status = "start"
	// StatusEnd is emitted when syncing finishes, strictly after every queued
	// item was visited.
	StatusEnd Status = "end"
)

// Listener receives sync status transitions.
type Listener func(Status)

// Coordinator owns the process-wide syncing flag and subscriber list.
//
// Begin and End nest: the connectivity monitor begins a sync span before
// refreshing collections, and the engine begins its own span inside it.
// Subscribers see exactly one start/end pair for the outermost span.
// Notifications are delivered synchronously in subscription order.
type Coordinator struct {
	mu        sync.Mutex
	depth     int
	listeners []Listener
}

// NewCoordinator creates a Coordinator with no subscribers.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Subscribe registers a listener for start/end transitions. There is no
// unsubscribe; subscriber lifetimes match the process.
func (c *Coordinator) Subscribe(fn Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Syncing reports whether a sync span is currently open. Components mounting
// after a transition already began read this instead of waiting for the next
// emission.
func (c *Coordinator) Syncing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.depth > 0
}

// Begin opens a sync span, emitting StatusStart on the outermost open.
func (c *Coordinator) Begin() {
	c.mu.Lock()
	c.depth++
	notify := c.depth == 1
	listeners := c.snapshot()
	c.mu.Unlock()

	if notify {
		for _, fn := range listeners {
			fn(StatusStart)
		}
	}
}

// End closes a sync span, emitting StatusEnd on the outermost close.
func (c *Coordinator) End() {
	c.mu.Lock()
	notify := c.depth == 1
	if c.depth > 0 {
		c.depth--
	}
	listeners := c.snapshot()
	c.mu.Unlock()

	if notify {
		for _, fn := range listeners {
			fn(StatusEnd)
		}
	}
}

// snapshot copies the listener slice. Callers hold mu.
func (c *Coordinator) snapshot() []Listener {
	out := make([]Listener, len(c.listeners))
	copy(out, c.listeners)
	return out
}
