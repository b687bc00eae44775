// Package suppress marks the periods during which the process itself is
// synthesizing input, so that input hooks can tell self-generated events
// from genuine user activity.
package suppress

import "sync/atomic"

// Gate is a reentrant counter of in-flight synthetic input operations.
// The zero value is ready to use. All methods are safe for concurrent use.
type Gate struct {
	depth atomic.Int64
}

// Enter marks the start of a synthetic operation.
func (g *Gate) Enter() {
	g.depth.Add(1)
}

// Exit marks the end of a synthetic operation. Unbalanced calls never
// drive the counter below zero.
func (g *Gate) Exit() {
	for {
		cur := g.depth.Load()
		if cur <= 0 {
			return
		}
		if g.depth.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// Scope enters the gate and returns the matching release. Calling the
// release more than once has no further effect.
func (g *Gate) Scope() (release func()) {
	g.Enter()
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			g.Exit()
		}
	}
}

// Do runs fn inside a scope. The scope is released even if fn panics.
func (g *Gate) Do(fn func() error) error {
	release := g.Scope()
	defer release()
	return fn()
}

// Suppressed reports whether any synthetic operation is in flight.
func (g *Gate) Suppressed() bool {
	return g.depth.Load() > 0
}

// Depth returns the current nesting depth.
func (g *Gate) Depth() int64 {
	return g.depth.Load()
}
