package persister

import (
	"context"
	"sync"
)

// Cell is a caller-owned reference to the current Persister of an
// artifact. Touch replaces the stored handle with the one Persister.Touch
// returns, so producers sharing a Cell never touch a stale instance twice.
//
// Thread-safety: safe for concurrent use. The Cell lock is not held while
// the Persister is touched.
type Cell struct {
	mu      sync.Mutex
	current *Persister
}

// NewCell creates a Cell holding p.
func NewCell(p *Persister) *Cell {
	return &Cell{current: p}
}

// Current returns the handle the next Touch will use.
func (c *Cell) Current() *Persister {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Touch touches the current handle and stores its successor.
func (c *Cell) Touch(ctx context.Context) error {
	c.mu.Lock()
	p := c.current
	c.mu.Unlock()

	next, err := p.Touch(ctx)

	c.mu.Lock()
	// Another producer may have advanced the cell already.
	if c.current == p {
		c.current = next
	}
	c.mu.Unlock()

	return err
}
