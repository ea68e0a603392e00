package multipart

import (
	"context"
	"sync"

	transfererrors "github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

// Gate blocks callers while closed. A task closes its gate on pause and
// opens it on resume.
type Gate struct {
	mu   sync.Mutex
	open bool
	ch   chan struct{} // closed while the gate is open
}

// NewGate returns an open gate.
func NewGate() *Gate {
	ch := make(chan struct{})
	close(ch)
	return &Gate{open: true, ch: ch}
}

// Close makes subsequent Wait calls block.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		g.open = false
		g.ch = make(chan struct{})
	}
}

// Open releases all waiters.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		g.open = true
		close(g.ch)
	}
}

// IsOpen reports whether the gate is open.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Wait returns once the gate is open, or a CancelledError when ctx ends first.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.open {
			g.mu.Unlock()
			return nil
		}
		ch := g.ch
		g.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return transfererrors.NewCancelledError(context.Cause(ctx))
		}
	}
}
