// Package lockless provides a set of lock-free and wait-free
// concurrency primitives built on epoch-based reclamation: an
// intrusive list, a Michael-Scott unbounded queue, an open-addressed
// hash map with cooperative resizing, a bounded ring queue, and a
// scalable non-zero indicator tree.
//
// # Overview
//
// These primitives are building blocks, not a single data structure:
// each one lives in its own subpackage and most of them reclaim memory
// through an epoch-based RCU domain rather than garbage collection
// tricks or hazard pointers.
//
//   - atom: erase a value of any supported type into a machine word,
//     with two reserved "magic" patterns (EMPTY, TOMBSTONE) that no
//     valid encoded value can produce.
//   - llist: an intrusive, mark-then-unlink lock-free list used as the
//     deferred-work and registry primitive for rcu/grcu.
//   - rcu: per-instance two-epoch RCU.
//   - grcu: a shared RCU domain for many goroutines, with an optional
//     background GcThread.
//   - queue: an unbounded Michael-Scott FIFO over rcu.
//   - hashmap: a lock-free, open-addressed map with chained,
//     cooperative resizing.
//   - ring: a bounded ring queue, usable SRSW (wait-free) or MRMW
//     (lock-free) per end.
//   - snzi: a Scalable Non-Zero Indicator tree.
//
// This root package holds only the ambient concerns shared across all
// of them: structured errors (errors.go), a logging seam (logger.go),
// a metrics seam (metrics.go), typed configuration (config.go), and
// optional hot-reload of the two knobs the design allows to vary at
// runtime without a redeploy (hotreload.go).
//
// # Quick start
//
//	import (
//	    "github.com/agilira/lockless/hashmap"
//	    "github.com/agilira/lockless/atom"
//	)
//
//	m := hashmap.New[string, int](
//	    func(k string) uint64 { /* hash k */ return 0 },
//	    atom.NewString(atom.DefaultMagicPointer()),
//	    atom.NewEmbedded[int](atom.DefaultMagicWord()),
//	    hashmap.DefaultConfig(),
//	)
//	m.Insert("a", 1)
//	v, ok := m.Find("a")
//
// # Error handling
//
// Nothing in the core packages retries or logs on a caller's behalf.
// Only two conditions surface as a Go error at all: allocation failure
// (ErrCodeOutOfMemory) and a violated caller contract
// (ErrCodeCallerError) — see errors.go. Every other outcome (key not
// found, duplicate insert, full ring, empty queue) is a plain
// false/zero-value return from the operation itself.
package lockless
