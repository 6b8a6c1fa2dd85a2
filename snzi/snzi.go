// Package snzi implements a Scalable Non-Zero Indicator: a counter
// that reports whether it is zero or not, distributing the atomic
// traffic of concurrent increments/decrements across a small tree
// instead of contending a single cache line.
//
// Each non-root node cycles through three states: Zero (0), 1
// (Announcing — a single increment has claimed this node but hasn't
// yet confirmed with its parent) and 2-or-more (NonZero — the node
// holds a confirmed count of live increments). Only the root departs
// from this state machine: it's a plain counter, since nothing sits
// above it to announce to.
//
// The original's thread-to-node assignment used thread-local storage
// (threadId() % tree.size()); Go has no stable per-goroutine ID, so
// callers pass an explicit dispersal key (any value that's roughly
// stable per caller, such as a goroutine-local counter or worker
// index) the same way rcu/grcu replaced implicit TLS with an explicit
// handle.
package snzi

import "sync/atomic"

// Tree is a SNZI counter. The zero value is not ready to use — call
// New or NewFlat.
type Tree struct {
	arity uint64
	nodes []atomic.Uint64
}

// New returns a Tree with the given node count and branching factor.
// Arity must be greater than 1; use NewFlat for the degenerate
// single-counter case.
func New(nodes, arity uint64) *Tree {
	if nodes == 0 {
		panic("snzi: nodes must be greater than zero")
	}
	if arity <= 1 {
		panic("snzi: arity must be greater than one, use NewFlat for a flat counter")
	}
	return &Tree{arity: arity, nodes: make([]atomic.Uint64, nodes)}
}

// NewFlat returns the degenerate Nodes=1,Arity=1 specialization: a
// single plain counter with none of the tree dispersal machinery,
// suitable when contention on one cache line is not a concern.
func NewFlat() *Tree {
	return &Tree{arity: 1, nodes: make([]atomic.Uint64, 1)}
}

// Test reports whether the indicator is currently non-zero.
func (t *Tree) Test() bool {
	return t.nodes[0].Load() != 0
}

// Inc registers one more live reference, dispersing the atomic op
// across the tree by dispersal. Returns true if the indicator
// transitioned from zero to non-zero.
func (t *Tree) Inc(dispersal uint64) bool {
	if len(t.nodes) == 1 {
		return t.nodes[0].Add(1) == 1
	}
	return t.incAt(dispersal % uint64(len(t.nodes)))
}

// Dec releases one live reference. Returns true if the indicator
// transitioned from non-zero to zero.
func (t *Tree) Dec(dispersal uint64) bool {
	if len(t.nodes) == 1 {
		return t.nodes[0].Add(^uint64(0)) == 0
	}
	return t.decAt(dispersal % uint64(len(t.nodes)))
}

func (t *Tree) incAt(node uint64) bool {
	if node == 0 {
		return t.nodes[0].Add(1) == 1
	}

	parent := node / t.arity
	value := t.nodes[node].Load()

	for {
		if value > 1 {
			if !t.nodes[node].CompareAndSwap(value, value+1) {
				value = t.nodes[node].Load()
				continue
			}
			return false
		}

		if value == 0 {
			if !t.nodes[node].CompareAndSwap(0, 1) {
				value = t.nodes[node].Load()
				continue
			}
			value = 1
		}

		// value == 1: this node is Announcing. Tell the parent, then
		// try to confirm; if something else touched us first (only
		// possible via a matching dec racing in), undo the parent
		// increment and re-evaluate from the current value.
		shifted := t.incAt(parent)

		if t.nodes[node].CompareAndSwap(1, 2) {
			return shifted
		}

		t.decAt(parent)
		value = t.nodes[node].Load()
	}
}

func (t *Tree) decAt(node uint64) bool {
	if node == 0 {
		return t.nodes[0].Add(^uint64(0)) == 0
	}

	parent := node / t.arity
	value := t.nodes[node].Load()

	for {
		if value > 2 {
			if !t.nodes[node].CompareAndSwap(value, value-1) {
				value = t.nodes[node].Load()
				continue
			}
			return false
		}

		if !t.nodes[node].CompareAndSwap(value, 0) {
			value = t.nodes[node].Load()
			continue
		}

		return t.decAt(parent)
	}
}
