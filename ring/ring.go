// Package ring implements a bounded lock-free ring queue with two
// selectable disciplines on the same cell array: a wait-free
// single-producer/single-consumer pair (PushSRSW/PopSRSW) and a
// lock-free multi-producer/multi-consumer pair (PushMRMW/PopMRMW). A
// caller can mix disciplines per end — SRSW push with MRMW pop, say —
// as long as each end is only ever driven by the goroutines that
// discipline promises.
//
// The original reserves a sentinel "null" value to mark an empty
// cell, and packs its read/write uint32 cursors into one atomic word
// so size()/empty() read a consistent snapshot. Go's atomic.Uint32
// already gives each cursor its own real atomic without that packing
// trick, so this port keeps two independent cursors instead of
// reconstructing the union — Len/Empty load them one after the other,
// so under concurrent mutation they can observe a pair of cursor
// values that never held at the same instant.
package ring

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/agilira/lockless/atom"
)

// Ring is a bounded queue of capacity cells. The zero value is not
// ready to use — call New.
type Ring[T any] struct {
	cells    []atomic.Uintptr
	atomizer atom.Atomizer[T]
	capacity uint32

	read  atomic.Uint32
	write atomic.Uint32
}

// New returns an empty Ring of the given capacity. atomizer supplies
// the reserved EMPTY sentinel used to tell an unoccupied cell from a
// live one; values that Alloc to that sentinel are rejected at the
// API boundary with a panic, per the "values cannot equal empty"
// caller obligation.
func New[T any](capacity uint32, atomizer atom.Atomizer[T]) *Ring[T] {
	if capacity == 0 {
		panic("ring: capacity must be greater than zero")
	}

	r := &Ring[T]{
		cells:    make([]atomic.Uintptr, capacity),
		atomizer: atomizer,
		capacity: capacity,
	}

	empty := uintptr(atomizer.Magic().Empty)
	for i := range r.cells {
		r.cells[i].Store(empty)
	}
	return r
}

// Cap returns the ring's fixed capacity.
func (r *Ring[T]) Cap() uint32 { return r.capacity }

// Len returns an approximation of the number of live entries, read
// from the write and read cursors independently (not a single atomic
// snapshot — under concurrent mutation the two loads can observe an
// inconsistent pair).
func (r *Ring[T]) Len() int {
	w := r.write.Load()
	rd := r.read.Load()
	return int(w - rd)
}

// Empty reports whether the read and write cursors currently coincide.
func (r *Ring[T]) Empty() bool {
	return r.write.Load() == r.read.Load()
}

// String renders the cursor positions and cell occupancy, mirroring
// the original's dump() for diagnostics.
func (r *Ring[T]) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "{ w=%d, r=%d, [ ", r.write.Load(), r.read.Load())
	empty := uintptr(r.atomizer.Magic().Empty)
	for i := range r.cells {
		if r.cells[i].Load() == empty {
			fmt.Fprintf(&b, "%d:_ ", i)
		} else {
			fmt.Fprintf(&b, "%d:x ", i)
		}
	}
	b.WriteString("] }")
	return b.String()
}

func (r *Ring[T]) allocOrPanic(v T) atom.Word {
	empty := r.atomizer.Magic().Empty
	word := r.atomizer.Alloc(v)
	if word == empty {
		panic("ring: value collides with the reserved empty sentinel")
	}
	return word
}

// PushSRSW adds v to the ring. Must only ever be called by the single
// designated producer goroutine; concurrent callers corrupt the write
// cursor.
func (r *Ring[T]) PushSRSW(v T) bool {
	word := r.allocOrPanic(v)

	pos := r.write.Load()
	idx := pos % r.capacity
	if atom.Word(r.cells[idx].Load()) != r.atomizer.Magic().Empty {
		r.atomizer.Dealloc(word)
		return false
	}

	r.cells[idx].Store(uintptr(word))
	r.write.Store(pos + 1)
	return true
}

// PopSRSW removes and returns the oldest entry. Must only ever be
// called by the single designated consumer goroutine.
func (r *Ring[T]) PopSRSW() (T, bool) {
	pos := r.read.Load()
	idx := pos % r.capacity
	word := atom.Word(r.cells[idx].Load())

	empty := r.atomizer.Magic().Empty
	if word == empty {
		var zero T
		return zero, false
	}

	r.cells[idx].Store(uintptr(empty))
	r.read.Store(pos + 1)

	value := r.atomizer.Load(word)
	r.atomizer.Dealloc(word)
	return value, true
}

// PushMRMW adds v to the ring. Safe for any number of concurrent
// producers (and, independently, any number of concurrent PopMRMW
// consumers).
func (r *Ring[T]) PushMRMW(v T) bool {
	word := r.allocOrPanic(v)
	empty := r.atomizer.Magic().Empty

	pos := r.write.Load()
	for {
		idx := pos % r.capacity
		old := atom.Word(r.cells[idx].Load())

		if old == empty {
			if r.cells[idx].CompareAndSwap(uintptr(empty), uintptr(word)) {
				r.write.CompareAndSwap(pos, pos+1)
				return true
			}
			pos = r.write.Load()
			continue
		}

		if pos-r.read.Load() == r.capacity {
			r.atomizer.Dealloc(word)
			return false
		}

		if r.write.CompareAndSwap(pos, pos+1) {
			pos++
		} else {
			pos = r.write.Load()
		}
	}
}

// PopMRMW removes and returns the oldest entry. Safe for any number of
// concurrent consumers (and, independently, any number of concurrent
// PushMRMW producers).
func (r *Ring[T]) PopMRMW() (T, bool) {
	empty := r.atomizer.Magic().Empty

	pos := r.read.Load()
	for {
		idx := pos % r.capacity
		old := atom.Word(r.cells[idx].Load())

		if old != empty {
			if r.cells[idx].CompareAndSwap(uintptr(old), uintptr(empty)) {
				r.read.CompareAndSwap(pos, pos+1)
				value := r.atomizer.Load(old)
				r.atomizer.Dealloc(old)
				return value, true
			}
			pos = r.read.Load()
			continue
		}

		if pos == r.write.Load() {
			var zero T
			return zero, false
		}

		if r.read.CompareAndSwap(pos, pos+1) {
			pos++
		} else {
			pos = r.read.Load()
		}
	}
}
