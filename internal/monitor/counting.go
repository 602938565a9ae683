package monitor

import (
	"sync"

	"go.uber.org/multierr"
)

// Counting completes its parent once a target number of children have
// reported. The parent succeeds unless a child reported an error, in which
// case it fails with the children's errors merged in arrival order. A
// cancelled child counts as a success; cancel the Counting itself to
// cancel the parent.
//
// The target may be left unknown (negative) while children are created
// and fixed later with SetTarget.
type Counting struct {
	exec   Submitter
	parent Completer

	mu        sync.Mutex
	target    int
	count     int
	err       error
	completed bool
	cancelled bool
}

// NewCounting creates a counting monitor for target children. Pass a
// negative target and call SetTarget when the count is only known after
// the fan-out.
func NewCounting(exec Submitter, parent Completer, target int) *Counting {
	c := &Counting{
		exec:   exec,
		parent: parent,
		target: target,
	}
	if target == 0 {
		c.completed = true
		parent.Done()
	}
	return c
}

// SetTarget fixes the number of children. If that many children have
// already reported, the parent completes now.
func (c *Counting) SetTarget(n int) {
	c.mu.Lock()
	if c.target >= 0 {
		c.mu.Unlock()
		panic(internalErrorf("counting monitor target set twice (%d, then %d)", c.target, n))
	}
	if c.count > n {
		c.mu.Unlock()
		panic(internalErrorf("counting monitor over-counted: %d completions for target %d", c.count, n))
	}
	c.target = n
	fire := c.count == n && !c.completed
	if fire {
		c.completed = true
	}
	err := c.err
	c.mu.Unlock()

	if fire {
		c.completeParent(err)
	}
}

// Done records one child completion. err is nil for a successful child.
func (c *Counting) Done(err error) {
	c.mu.Lock()
	c.count++
	if c.target >= 0 && c.count > c.target {
		count, target := c.count, c.target
		c.mu.Unlock()
		panic(internalErrorf("counting monitor over-counted: %d completions for target %d", count, target))
	}
	if err != nil && !c.cancelled {
		c.err = multierr.Append(c.err, err)
	}
	fire := c.target >= 0 && c.count == c.target && !c.completed
	if fire {
		c.completed = true
	}
	merged := c.err
	c.mu.Unlock()

	if fire {
		c.completeParent(merged)
	}
}

// Child returns a monitor whose completion is reported to the counter.
func (c *Counting) Child() *RequestMonitor {
	return New(c.exec, c)
}

// Cancel completes the parent with Cancelled right away. Children keep
// running; their results are counted and discarded.
func (c *Counting) Cancel() bool {
	c.mu.Lock()
	if c.completed {
		c.mu.Unlock()
		return false
	}
	c.completed = true
	c.cancelled = true
	c.mu.Unlock()

	return c.parent.Cancel()
}

// Count returns the number of completions recorded so far.
func (c *Counting) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// childCompleted records one child. Only StatusError carries into the
// parent's outcome.
func (c *Counting) childCompleted(status Status, err error) {
	if status == StatusError {
		c.Done(err)
		return
	}
	c.Done(nil)
}

func (c *Counting) completeParent(err error) {
	if err != nil {
		c.parent.Fail(err)
		return
	}
	c.parent.Done()
}
