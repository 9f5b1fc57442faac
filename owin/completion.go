package owin

import "sync/atomic"

// completion is a single-use token guarding a pair of terminal
// callbacks. Whoever consumes it first gets to fire its callback; every
// later attempt is refused. This enforces exactly-once structurally
// rather than by convention.
type completion struct {
	done atomic.Bool
}

// consume reports whether the caller won the right to fire a terminal
// callback.
func (c *completion) consume() bool {
	return c.done.CompareAndSwap(false, true)
}

// pending reports whether no terminal callback has fired yet.
func (c *completion) pending() bool {
	return !c.done.Load()
}
