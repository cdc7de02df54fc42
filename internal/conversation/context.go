// Package conversation holds per-session dialogue state and the
// rule-based parser used when the language service is unavailable.
package conversation

import (
	"iter"
	"slices"
	"sync"

	"github.com/hammamikhairi/baskit/internal/domain"
)

// Context is a bounded FIFO of recent turns for one session. A disabled
// context records nothing.
type Context struct {
	mu      sync.RWMutex
	enabled bool
	buf     []domain.Turn
	start   int // index of the oldest turn
	size    int
}

// NewContext creates a context holding at most maxTurns turns.
func NewContext(maxTurns int, enabled bool) *Context {
	if maxTurns < 1 {
		maxTurns = 1
	}
	return &Context{enabled: enabled, buf: make([]domain.Turn, maxTurns)}
}

// Record appends a turn, evicting the oldest when full.
func (c *Context) Record(turn domain.Turn) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.size < len(c.buf) {
		c.buf[(c.start+c.size)%len(c.buf)] = turn
		c.size++
		return
	}
	c.buf[c.start] = turn
	c.start = (c.start + 1) % len(c.buf)
}

// Recent returns the last n turns, oldest first. Every range over the
// sequence reads the buffer afresh.
func (c *Context) Recent(n int) iter.Seq[domain.Turn] {
	return func(yield func(domain.Turn) bool) {
		for _, t := range c.snapshot(n) {
			if !yield(t) {
				return
			}
		}
	}
}

// Turns collects Recent(n) into a slice.
func (c *Context) Turns(n int) []domain.Turn {
	return slices.Collect(c.Recent(n))
}

// snapshot copies the last n turns under the read lock so callers never
// yield while holding it.
func (c *Context) snapshot(n int) []domain.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n > c.size {
		n = c.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]domain.Turn, 0, n)
	for i := c.size - n; i < c.size; i++ {
		out = append(out, c.buf[(c.start+i)%len(c.buf)])
	}
	return out
}

// Len returns the number of stored turns.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}

// LastItem returns the most recent item name any stored intent referred
// to, or "".
func (c *Context) LastItem() string {
	turns := c.snapshot(len(c.buf))
	for i := len(turns) - 1; i >= 0; i-- {
		if in := turns[i].Intent; in != nil && in.Args.ItemName != "" {
			return in.Args.ItemName
		}
	}
	return ""
}
