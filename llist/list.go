// Package llist implements an intrusive, lock-free singly-linked list
// with a cooperative mark-and-remove protocol.
//
// The list is intentionally left wide open: nodes are pushed and
// popped by pointer, ownership stays with the caller, and the mark bit
// packed into each node's next pointer is part of the public
// contract. This mirrors the design of the original lockless::List —
// maximum flexibility, minimum hidden state — and is what rcu and grcu
// both build their epoch defer-lists and registration lists on top
// of.
package llist

import (
	"sync/atomic"
	"unsafe"
)

// Node is one element of a List[T]. The zero value is an unlinked,
// unmarked node ready to be pushed.
//
// Invariant: the mark bit may only transition 0 -> 1. Once marked,
// Next is frozen — no further push/remove/pop call may observe it
// change. Violating this from outside the package (by touching
// exported fields directly after Mark) is a caller error per the
// package's cooperative discipline.
type Node[T any] struct {
	Value T

	// rawNext packs a *Node[T] with a single mark bit in the low bit
	// of the pointer (nodes are always at least 2-byte aligned).
	rawNext unsafe.Pointer
}

// NewNode returns a fresh, unlinked node holding v.
func NewNode[T any](v T) *Node[T] {
	return &Node[T]{Value: v}
}

const markBit = uintptr(1)

func packPtr[T any](n *Node[T], marked bool) unsafe.Pointer {
	p := uintptr(unsafe.Pointer(n))
	if marked {
		p |= markBit
	}
	return unsafe.Pointer(p) //nolint:govet // intentional pointer<->uintptr round trip
}

func unpackPtr[T any](p unsafe.Pointer) (*Node[T], bool) {
	u := uintptr(p)
	marked := u&markBit != 0
	return (*Node[T])(unsafe.Pointer(u &^ markBit)), marked
}

// IsMarked reports whether n has been logically removed.
func (n *Node[T]) IsMarked() bool {
	_, marked := unpackPtr[T](atomic.LoadPointer(&n.rawNext))
	return marked
}

// Mark atomically sets n's mark bit, idempotently, and returns the
// next pointer that was in effect immediately before marking (with
// the mark bit cleared). Safe to call concurrently; all callers
// observe the same "next before mark" value.
func (n *Node[T]) Mark() *Node[T] {
	for {
		old := atomic.LoadPointer(&n.rawNext)
		next, marked := unpackPtr[T](old)
		if marked {
			return next
		}
		newVal := packPtr(next, true)
		if atomic.CompareAndSwapPointer(&n.rawNext, old, newVal) {
			return next
		}
	}
}

// next returns the unmarked next pointer.
func (n *Node[T]) next() *Node[T] {
	p, _ := unpackPtr[T](atomic.LoadPointer(&n.rawNext))
	return p
}

// Next exposes the current next pointer for callers walking a chain
// they've already detached from the list (e.g. via PopAll) — at that
// point the chain is private to the caller and no longer subject to
// the mark protocol, so reading it outside enter/exit bracketing is
// safe.
func (n *Node[T]) Next() *Node[T] { return n.next() }

func (n *Node[T]) setNext(next *Node[T]) {
	atomic.StorePointer(&n.rawNext, packPtr(next, false))
}

func (n *Node[T]) reset() {
	atomic.StorePointer(&n.rawNext, nil)
}

// compareExchangeNext CAS'es the unmarked next pointer from expected
// to newNext. expected must itself be unmarked.
func (n *Node[T]) compareExchangeNext(expected, newNext *Node[T]) bool {
	oldVal := packPtr(expected, false)
	newVal := packPtr(newNext, false)
	return atomic.CompareAndSwapPointer(&n.rawNext, oldVal, newVal)
}

// List is a lock-free LIFO stack of *Node[T] with support for
// cooperative marked removal. The zero value is an empty, usable
// list.
type List[T any] struct {
	head unsafe.Pointer // *Node[T]
}

func (l *List[T]) loadHead() *Node[T] {
	return (*Node[T])(atomic.LoadPointer(&l.head))
}

// PeekHead returns the current head without removing it, for callers
// that need to walk the list read-only (e.g. grcu's registry scan
// during gc). The returned node and the chain reached through Next
// remain live and subject to concurrent Push/Remove; a caller doing a
// read-only walk should tolerate observing any consistent prefix of
// the list, not rely on a stable snapshot.
func (l *List[T]) PeekHead() *Node[T] {
	return l.loadHead()
}

// Push inserts node at the head of the list (LIFO). node must not
// already be linked into any list — that is a caller error and is not
// detected at runtime, per the package's cooperative discipline.
func (l *List[T]) Push(node *Node[T]) {
	for {
		head := l.loadHead()
		node.setNext(head)
		if atomic.CompareAndSwapPointer(&l.head, unsafe.Pointer(head), unsafe.Pointer(node)) {
			return
		}
	}
}

// Pop removes and returns the head node, or nil if the list is empty.
func (l *List[T]) Pop() *Node[T] {
	for {
		node := l.loadHead()
		if node == nil {
			return nil
		}
		next := node.next()
		if atomic.CompareAndSwapPointer(&l.head, unsafe.Pointer(node), unsafe.Pointer(next)) {
			return node
		}
	}
}

// PopMarked removes and returns the head node only if it is already
// marked; otherwise returns nil without modifying the list.
func (l *List[T]) PopMarked() *Node[T] {
	for {
		node := l.loadHead()
		if node == nil || !node.IsMarked() {
			return nil
		}
		next := node.next()
		if atomic.CompareAndSwapPointer(&l.head, unsafe.Pointer(node), unsafe.Pointer(next)) {
			return node
		}
	}
}

// PopAll atomically detaches the entire list and returns its former
// head; the returned chain (walked via Next, which ignores the mark
// bit) is private to the caller and safe to traverse without further
// synchronization. Used by rcu/grcu to drain an epoch's deferred-call
// list in one swap rather than one Pop per entry.
func (l *List[T]) PopAll() *Node[T] {
	return (*Node[T])(atomic.SwapPointer(&l.head, nil))
}

// Remove performs an O(n) lock-free removal of toRemove from the
// list. It is safe to call concurrently with Push/Pop/PopMarked and
// with other Remove calls, including concurrent Remove(toRemove)
// calls targeting the same node — exactly one of them physically
// unlinks it, decided by whichever wins the mark CAS; the loser
// observes the mark and its physical-unlink attempt is best-effort
// cooperation, not a correctness requirement.
//
// Returns false if toRemove was not found in the list (already
// removed by a previous call, or never linked).
func (l *List[T]) Remove(toRemove *Node[T]) bool {
restart:
	// prev is the most recently seen *unmarked* predecessor; nil
	// means "the predecessor link is the list head itself". A marked
	// node's next pointer is frozen, so prev must always skip past
	// marked nodes for the later CAS to have any chance of success.
	var prev *Node[T]
	node := l.loadHead()

	for {
		if node == nil {
			return false
		}

		if node != toRemove {
			if !node.IsMarked() {
				prev = node
			}
			node = node.next()
			continue
		}

		// After marking, no other op can change node's next pointer,
		// so oldNext is stable for the CAS below.
		oldNext := node.Mark()

		var unlinked bool
		if prev == nil {
			unlinked = atomic.CompareAndSwapPointer(&l.head, unsafe.Pointer(node), unsafe.Pointer(oldNext))
		} else {
			unlinked = prev.compareExchangeNext(node, oldNext)
		}
		if !unlinked {
			goto restart
		}

		return true
	}
}
