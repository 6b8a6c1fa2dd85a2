// Package queue implements an unbounded, multi-producer/multi-consumer
// lock-free FIFO queue, the Michael-Scott algorithm reclaimed through
// rcu.RCU rather than hazard pointers.
//
// The trick that makes head/tail updates independent is a permanent
// sentinel node: head always points at a node whose Value has already
// been consumed (or, at construction, was never set), so an empty
// queue is exactly "head == tail with no node after it", and popping
// only touches tail to help it past a node a pusher has linked but not
// yet swung tail onto.
// Pushing is the two-step dance of first linking the new node onto the
// last entry found, then nudging tail forward — any goroutine that
// notices tail lagging behind a linked node helps move it, so no
// pusher ever blocks behind another's unfinished push.
package queue

import (
	"sync/atomic"

	"github.com/agilira/lockless/rcu"
)

type entry[T any] struct {
	value T
	next  atomic.Pointer[entry[T]]
}

// Queue is an unbounded FIFO. The zero value is not ready to use —
// call New.
type Queue[T any] struct {
	head atomic.Pointer[entry[T]]
	tail atomic.Pointer[entry[T]]
	rcu  *rcu.RCU
}

// New returns an empty Queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{rcu: rcu.New()}
	sentinel := &entry[T]{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// Push appends value to the tail of the queue. Safe for any number of
// concurrent producers and consumers.
func (q *Queue[T]) Push(value T) {
	guard := rcu.Enter(q.rcu)
	defer guard.Exit()

	e := &entry[T]{value: value}

	for {
		oldTail := q.tail.Load()
		oldNext := oldTail.next.Load()

		// Re-check: avoids spinning a CAS against a tail that's
		// already moved on under contention.
		if q.tail.Load() != oldTail {
			continue
		}

		if oldNext == nil {
			if !oldTail.next.CompareAndSwap(nil, e) {
				continue
			}
			// If this fails someone else already moved tail forward
			// for us; either way the push is complete.
			q.tail.CompareAndSwap(oldTail, e)
			return
		}

		// Someone linked a node but hasn't moved tail yet. Help them
		// before retrying our own push.
		q.tail.CompareAndSwap(oldTail, oldNext)
	}
}

// Peek returns the value at the head of the queue without removing
// it, or the zero value and false if the queue is empty.
func (q *Queue[T]) Peek() (T, bool) {
	guard := rcu.Enter(q.rcu)
	defer guard.Exit()

	for {
		oldHead := q.head.Load()
		// tail must be read before next: this ordering guarantees that
		// if tail != head then next is non-nil.
		oldTail := q.tail.Load()
		oldNext := oldHead.next.Load()

		if q.head.Load() != oldHead {
			continue
		}

		if oldHead == oldTail {
			if oldNext == nil {
				var zero T
				return zero, false
			}
			// tail lagging behind, help it along.
			q.tail.CompareAndSwap(oldTail, oldNext)
			continue
		}

		return oldNext.value, true
	}
}

// Pop removes and returns the value at the head of the queue, or the
// zero value and false if the queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	guard := rcu.Enter(q.rcu)
	defer guard.Exit()

	for {
		oldHead := q.head.Load()
		oldTail := q.tail.Load()
		oldNext := oldHead.next.Load()

		if q.head.Load() != oldHead {
			continue
		}

		if oldHead == oldTail {
			if oldNext == nil {
				var zero T
				return zero, false
			}
			q.tail.CompareAndSwap(oldTail, oldNext)
			continue
		}

		if !q.head.CompareAndSwap(oldHead, oldNext) {
			continue
		}

		// oldNext is the new sentinel; its value has been consumed.
		value := oldNext.value
		dead := oldHead
		q.rcu.Defer(func() { dead.next.Store(nil) })
		return value, true
	}
}
