// Package rcu implements a lightweight, per-instance epoch-based
// Read-Copy-Update primitive: two epochs, each with a reader count and
// a deferred-callback list, plus an enter/exit pair that brackets a
// read-side critical section.
//
// Reclamation here is opportunistic: a deferred callback runs as soon
// as whichever goroutine's Exit happens to observe its epoch fully
// vacated, not on an external tick. See the grcu package for the
// shared, externally-paced variant used when enter/exit must scale
// past one cache line.
//
// Go's sync/atomic operations already carry the sequentially
// consistent ordering the original C++ implementation had to request
// explicitly via std::atomic_thread_fence; there is no separate fence
// call in this port, the atomic Load/Add/CompareAndSwap calls below
// are the fences.
package rcu

import (
	"fmt"
	"sync/atomic"

	"github.com/agilira/lockless/llist"
)

// DeferFn is a callback scheduled to run once no reader can still
// observe the epoch it was deferred under.
type DeferFn func()

type epochState struct {
	count     atomic.Uint64
	deferList llist.List[DeferFn]
}

// RCU is a per-instance read-copy-update domain. The zero value is
// ready to use.
type RCU struct {
	current atomic.Uint64
	epochs  [2]epochState
}

// New returns a ready-to-use RCU. Equivalent to new(RCU); provided for
// symmetry with the other constructors in this module.
func New() *RCU { return &RCU{} }

// Enter begins a read-side critical section and returns a token that
// must be passed to the matching Exit exactly once.
//
// The extra re-check loop guards against the following race (Race A
// in the design notes): a reader reads current=E and is preempted;
// another thread enters E+1, sees E vacated (because this reader
// hasn't incremented yet) and rotates to E+2; the first reader then
// wakes and increments E's counter after E's deferred work has
// already run. Re-reading current after the increment and retrying if
// it moved closes that window — at worst we spin one extra iteration,
// we never publish a reader count for an epoch that's already been
// reclaimed out from under us.
func (r *RCU) Enter() uint64 {
	var e uint64
	for {
		e = r.current.Load()
		ep := &r.epochs[e&1]
		ep.count.Add(1)

		if r.current.Load() == e {
			break
		}

		ep.count.Add(^uint64(0)) // undo the increment (count--) and retry
	}

	// Opportunistically rotate: if the other epoch has no readers
	// left, advance current so future Enter calls start pinning to
	// the next epoch. A failed CAS here just means someone else beat
	// us to the rotation, which is fine — we only need it to happen
	// once per cycle, not every time.
	other := e - 1
	if r.epochs[other&1].count.Load() == 0 {
		r.current.CompareAndSwap(e, e+1)
	}

	return e
}

// Exit ends the critical section opened by the matching Enter(epoch).
// If this call observes its epoch's reader count dropping to zero
// while that epoch is not current, it detaches and runs the epoch's
// deferred callbacks itself, outside the critical section. Deferred
// work registered against the current epoch is never run here —
// "other" may still have live readers of its own, so the current
// epoch's work has to wait for at least one more rotation.
func (r *RCU) Exit(epoch uint64) {
	ep := &r.epochs[epoch&1]

	// We can't decrement before deciding whether to detach the defer
	// list: if we decremented first, a concurrent Enter/Exit pair
	// could swap a fresh list in between our decrement and the
	// exchange below, and we'd run work that hasn't actually been
	// vacated yet on the new round.
	var head *llist.Node[DeferFn]
	if ep.count.Load() == 1 && epoch != r.current.Load() {
		head = ep.deferList.PopAll()
	}

	ep.count.Add(^uint64(0)) // count--

	runDeferred(head)
}

// Defer appends fn to the deferred list of whichever epoch is current
// at the moment of the call. Any delay between reading current and
// the push is benign (Race B): at worst fn lands in what is about to
// stop being current, and simply waits one extra rotation before it
// runs.
func (r *RCU) Defer(fn DeferFn) {
	e := r.current.Load()
	r.epochs[e&1].deferList.Push(llist.NewNode(fn))
}

// String renders a diagnostic snapshot of the current epoch and each
// epoch's reader count, ported from the original's Rcu::print().
func (r *RCU) String() string {
	cur := r.current.Load()
	other := cur - 1
	return fmt.Sprintf("{ cur=%d, count=[%d, %d] }",
		cur, r.epochs[cur&1].count.Load(), r.epochs[other&1].count.Load())
}

func runDeferred(head *llist.Node[DeferFn]) {
	for node := head; node != nil; node = node.Next() {
		node.Value()
	}
}
