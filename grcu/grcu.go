// Package grcu implements the shared (global) variant of epoch-based
// RCU: every participating goroutine registers one node holding its
// own pair of epoch counters, eliminating the cache-line contention a
// single shared counter pair would cause under rcu.RCU. The tradeoff
// is that reclamation is no longer opportunistic — nothing runs a
// deferred callback until something calls GC, typically a GcThread
// ticking on an interval.
//
// The original C++ implementation keyed its per-thread node off
// thread-local storage with a pthread destructor to tear it down on
// thread exit. Go has no equivalent of a thread-exit hook for
// goroutines, so the per-thread node becomes an explicit Handle: a
// long-lived goroutine calls Register once, uses the returned Handle
// for every Enter/Exit/Defer, and must call Unregister before it
// exits — the same obligation the original placed on pthread's
// destructor machinery, just made visible at the call site instead of
// hidden in TLS teardown.
package grcu

import (
	"sync"
	"sync/atomic"

	"github.com/agilira/lockless"
	"github.com/agilira/lockless/llist"
)

// DeferFn is a callback scheduled to run once a GC pass observes no
// registered handle still holds a reader in its epoch.
type DeferFn func()

type epochState struct {
	count     atomic.Uint64
	deferList llist.List[DeferFn]
}

// node is the per-participant registration record, analogous to the
// original's thread-local Epochs[2] array. It is linked into the
// GlobalRCU's registry via llist so GC can walk every live (and
// dead-but-undrained) participant.
type node struct {
	epochs [2]epochState
}

// Handle is what a registered participant uses to enter/exit critical
// sections and defer work. It must not be shared across goroutines —
// one Handle per goroutine, exactly like the original's one TLS node
// per thread.
type Handle struct {
	g    *GlobalRCU
	n    *llist.Node[node]
}

// GlobalRCU is a process-wide (or, in Go terms, GlobalRCU-instance-
// wide) shared RCU domain. The zero value is not ready to use — call
// New.
type GlobalRCU struct {
	epoch    atomic.Uint64
	registry llist.List[node]
	gcDump   *llist.Node[node]
	gcLock   sync.Mutex // guards gcPass; GC() uses TryLock, Close() uses Lock
}

// New creates a GlobalRCU with its epoch counter starting at 1 (not
// 0), matching the original's GlobalRcuImpl constructor — epoch 0 is
// avoided so that "other = epoch - 1" never wraps awkwardly for the
// first participant.
func New() *GlobalRCU {
	g := &GlobalRCU{}
	g.epoch.Store(1)
	g.gcDump = llist.NewNode(node{})
	g.registry.Push(g.gcDump)
	return g
}

// Register creates and links a new per-goroutine node and returns a
// Handle bound to it. Call this once per long-lived goroutine that
// will use the RCU domain, and call Unregister on the returned Handle
// before that goroutine exits.
func (g *GlobalRCU) Register() *Handle {
	n := llist.NewNode(node{})
	g.registry.Push(n)
	return &Handle{g: g, n: n}
}

// Enter begins a read-side critical section pinned to h's own node
// and returns a token for the matching Exit. Same race-A protection
// as rcu.RCU.Enter, just against the shared epoch counter instead of
// a per-instance one.
func (h *Handle) Enter() uint64 {
	for {
		e := h.g.epoch.Load()
		count := &h.n.Value.epochs[e&1].count
		count.Add(1)
		// Acquire semantics: per Go's memory model, the atomic Add above
		// already establishes a happens-before edge with any GC pass that
		// later observes this counter at zero, so no separate fence call
		// is needed the way the C++ port required
		// atomic_thread_fence(memory_order_acquire).
		if h.g.epoch.Load() == e {
			return e
		}
		count.Add(^uint64(0)) // undo the increment (count--) and retry
	}
}

// Exit ends the critical section opened by Enter(epoch). Unlike
// rcu.RCU, this never runs deferred work itself — only an explicit GC
// call rotates the epoch and executes deferred callbacks, per the
// package doc.
func (h *Handle) Exit(epoch uint64) {
	h.n.Value.epochs[epoch&1].count.Add(^uint64(0)) // count--
}

// Defer appends fn to the current epoch's list on h's own node.
func (h *Handle) Defer(fn DeferFn) {
	e := h.g.epoch.Load()
	h.n.Value.epochs[e&1].deferList.Push(llist.NewNode(fn))
}

// Unregister unlinks h's node from the registry. Any deferred work
// still sitting in either of h's epoch lists is migrated to a
// permanent "gc-dump" node that stays in the registry forever, the
// way the original's destructTls folds a dying thread's leftover
// defer lists into gRcu.gcDump — a future GC pass drains it exactly
// as it would have drained h's own node.
//
// It is a caller error to call Unregister while h still has an open
// Enter/Exit pair (a nonzero counter in either epoch); the original
// asserts this in destructTls and so do we, as a panic carrying a
// lockless.NewErrCallerError, since it can only happen from a
// programming bug (§7 CallerError).
func (h *Handle) Unregister() {
	for i := range h.n.Value.epochs {
		if h.n.Value.epochs[i].count.Load() != 0 {
			panic(lockless.NewErrCallerError("grcu.Unregister", "active reader still in this handle's epoch"))
		}
	}

	for i := range h.n.Value.epochs {
		src := &h.n.Value.epochs[i]
		dst := &h.g.gcDump.Value.epochs[i]
		head := src.deferList.PopAll()
		for n := head; n != nil; {
			next := n.Next()
			dst.deferList.Push(llist.NewNode(n.Value))
			n = next
		}
	}

	h.g.registry.Remove(h.n)
}

// GC is the only place epoch rotation occurs. It attempts a
// non-blocking exclusive lock (only one reclaimer runs at a time,
// same as the original's try_lock); if it can't get the lock, or if
// any registered node still has a nonzero counter in the non-current
// epoch, it returns false without doing anything. Otherwise it drains
// every node's non-current deferred list, issues a full fence, and
// advances the epoch.
func (g *GlobalRCU) GC() bool {
	if !g.gcLock.TryLock() {
		return false
	}
	defer g.gcLock.Unlock()

	return g.gcPass()
}

func (g *GlobalRCU) gcPass() bool {
	nonCurrent := (g.epoch.Load() - 1) & 1

	// First pass: bail if anyone is still in the epoch we'd reclaim.
	for n := g.registry.PeekHead(); n != nil; n = n.Next() {
		if n.Value.epochs[nonCurrent].count.Load() != 0 {
			return false
		}
	}

	// Second pass: fully vacated, drain every node's deferred list
	// for that epoch.
	for n := g.registry.PeekHead(); n != nil; n = n.Next() {
		head := n.Value.epochs[nonCurrent].deferList.PopAll()
		for c := head; c != nil; c = c.Next() {
			c.Value()
		}
	}

	g.epoch.Add(1)
	return true
}

// Close drains both epochs, as the original's ~GlobalRcu() does by
// calling gcImpl() twice while holding the lock for the whole
// teardown. Callers must have already called Unregister on every
// handle they created; if a reader is still registered with a nonzero
// counter after both passes, Close returns a CallerError instead of
// tearing down the registry, mirroring the original's destructor
// assertion (destruction overlapping a live reader is a programming
// bug per §7, not a runtime condition to retry).
func (g *GlobalRCU) Close() error {
	g.gcLock.Lock()
	defer g.gcLock.Unlock()

	startEpoch := g.epoch.Load()

	// Exactly two passes, unconditionally — the same contract as the
	// original's destructor. A pass that returns false because a
	// reader is still registered is caught by the epoch check below,
	// not retried.
	g.gcPass()
	g.gcPass()

	if g.epoch.Load() != startEpoch+2 {
		return lockless.NewErrCallerError("grcu.Close", "observed a live reader after two full gc passes")
	}

	g.registry.Remove(g.gcDump)
	return nil
}
