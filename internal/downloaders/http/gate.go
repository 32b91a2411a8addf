package sdmhttp

import (
	"context"
	"sync"
)

// gate blocks workers while a task is paused. The open channel is closed
// whenever the gate is open, so waiting costs no CPU.
type gate struct {
	mu     sync.Mutex
	open   chan struct{}
	closed bool
}

func newGate() *gate {
	ch := make(chan struct{})
	close(ch)
	return &gate{open: ch}
}

// Close shuts the gate. It returns false if it was already shut.
func (g *gate) Close() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.open = make(chan struct{})
	g.closed = true
	return true
}

// Open releases all waiters. It returns false if the gate was already open.
func (g *gate) Open() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		return false
	}
	close(g.open)
	g.closed = false
	return true
}

func (g *gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.open
	g.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
