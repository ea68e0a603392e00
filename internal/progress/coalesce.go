package progress

import (
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// Coalescing hands snapshots to a slow observer on its own goroutine.
// Snapshots that arrive while the observer is busy are collapsed into the
// latest one, so the observer still sees a non-decreasing sequence.
type Coalescing struct {
	observer transfertypes.ProgressObserver

	mu      sync.Mutex
	pending *transfertypes.Progress
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// NewCoalescing starts the delivery goroutine for observer.
func NewCoalescing(observer transfertypes.ProgressObserver) *Coalescing {
	c := &Coalescing{
		observer: observer,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go c.loop()
	return c
}

// Observe queues p for delivery. It never blocks on the observer.
func (c *Coalescing) Observe(p transfertypes.Progress) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pending = &p
	select {
	case c.wake <- struct{}{}:
	default:
	}
	c.mu.Unlock()
}

// Close delivers the last queued snapshot and stops the goroutine.
func (c *Coalescing) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return
	}
	c.closed = true
	close(c.wake)
	c.mu.Unlock()

	<-c.done
}

func (c *Coalescing) loop() {
	defer close(c.done)
	for range c.wake {
		c.flush()
	}
	c.flush()
}

func (c *Coalescing) flush() {
	c.mu.Lock()
	p := c.pending
	c.pending = nil
	c.mu.Unlock()

	if p != nil {
		c.observer(*p)
	}
}
