// Package hashmap implements a lock-free, open-addressed hash map with
// linear probing and incremental chained resizing, reclaimed through
// rcu.RCU rather than hazard pointers.
//
// A table never moves once installed: instead, a resize links a
// bigger table onto the old one's next pointer and every subsequent
// mutator that notices the link helps migrate one bucket before
// making its own progress. A key therefore has exactly one live
// physical slot at any instant, whether that slot sits in the oldest
// table a caller started from or several generations further along —
// operations chase the next chain forward until they find it.
package hashmap

import (
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/agilira/lockless/atom"
	"github.com/agilira/lockless/rcu"
)

// HashFunc computes the probe-sequence seed for a key. Callers supply
// one at construction; this package has no opinion on key hashing.
type HashFunc[K comparable] func(key K) uint64

const minCapacity = 1 << 5

// migratingBit freezes a bucket's value atom during migration: ORed
// onto the logical value so that any concurrent CAS expecting the bare
// value fails and retries, while find/remove/compareExchange can still
// recover the logical value by masking it back off. Reserved one bit
// below the atomizer's own EMPTY/TOMBSTONE patterns (the two
// most-significant bits), so the three never collide.
const migratingBit atom.Word = 1 << (8*unsafe.Sizeof(atom.Word(0)) - 3)

func maskMigrating(w atom.Word) atom.Word { return w &^ migratingBit }
func isMigrating(w atom.Word) bool        { return w&migratingBit != 0 }

func adjustCapacity(requested uint64) uint64 {
	capacity := uint64(minCapacity)
	for capacity < requested {
		capacity *= 2
	}
	return capacity
}

func slotIndex(hash, i, capacity uint64) uint64 {
	return (hash + i) & (capacity - 1)
}

type bucket[K comparable, V comparable] struct {
	keyWord atomic.Uintptr
	valWord atomic.Uintptr
}

func (b *bucket[K, V]) init(keyEmpty, valEmpty atom.Word) {
	b.keyWord.Store(uintptr(keyEmpty))
	b.valWord.Store(uintptr(valEmpty))
}

type table[K comparable, V comparable] struct {
	capacity      uint64
	buckets       []bucket[K, V]
	next          atomic.Pointer[table[K, V]]
	drained       atomic.Bool
	migrateCursor atomic.Uint64
}

func newTable[K comparable, V comparable](capacity uint64, keyEmpty, valEmpty atom.Word) *table[K, V] {
	t := &table[K, V]{capacity: capacity, buckets: make([]bucket[K, V], capacity)}
	for i := range t.buckets {
		t.buckets[i].init(keyEmpty, valEmpty)
	}
	return t
}

// Config tunes a Map at construction and, via SetLoadFactor, at
// runtime.
type Config struct {
	// InitialCapacity is rounded up to the next power of two, minimum
	// 32 buckets.
	InitialCapacity uint64
	// LoadFactor is the occupancy fraction (0, 1) past which a
	// successful insert proactively triggers a resize. Zero uses the
	// default of 0.7.
	LoadFactor float64
}

// DefaultConfig returns the Config a zero-value Config normalizes to.
func DefaultConfig() Config {
	return Config{InitialCapacity: minCapacity, LoadFactor: 0.7}
}

// Map is a concurrent hash map keyed by K, reclaimed through an
// internal rcu.RCU domain. The zero value is not ready to use — call
// New.
//
// V is constrained to comparable so CompareExchange can test equality
// against the caller-supplied expected value; a map of genuinely
// incomparable values should box them behind a comparable handle type
// (a pointer, for instance) before using this package.
type Map[K comparable, V comparable] struct {
	hashFn  HashFunc[K]
	keyAtom atom.Atomizer[K]
	valAtom atom.Atomizer[V]

	elem       atomic.Int64
	table      atomic.Pointer[table[K, V]]
	loadFactor atomic.Uint64 // math.Float64bits
	rcuD       *rcu.RCU
}

// New constructs a Map using hashFn to seed probe sequences and the
// given atomizers to erase keys and values into machine words.
func New[K comparable, V comparable](hashFn HashFunc[K], keyAtom atom.Atomizer[K], valAtom atom.Atomizer[V], cfg Config) *Map[K, V] {
	if cfg.LoadFactor <= 0 || cfg.LoadFactor >= 1 {
		cfg.LoadFactor = 0.7
	}

	m := &Map[K, V]{
		hashFn:  hashFn,
		keyAtom: keyAtom,
		valAtom: valAtom,
		rcuD:    rcu.New(),
	}
	m.loadFactor.Store(math.Float64bits(cfg.LoadFactor))
	m.table.Store(newTable[K, V](adjustCapacity(cfg.InitialCapacity), keyAtom.Magic().Empty, valAtom.Magic().Empty))
	return m
}

// SetLoadFactor retunes the proactive-resize threshold at runtime,
// the knob the module's hot-reload support exposes.
func (m *Map[K, V]) SetLoadFactor(f float64) {
	if f <= 0 || f >= 1 {
		return
	}
	m.loadFactor.Store(math.Float64bits(f))
}

func (m *Map[K, V]) loadFactorValue() float64 {
	return math.Float64frombits(m.loadFactor.Load())
}

// Size returns the number of live entries. Approximate under
// concurrent mutation — it is a plain counter, not linearized with
// any single operation.
func (m *Map[K, V]) Size() int64 { return m.elem.Load() }

// Capacity returns the bucket count of the newest table generation.
func (m *Map[K, V]) Capacity() uint64 {
	guard := rcu.Enter(m.rcuD)
	defer guard.Exit()
	return m.newestTable().capacity
}

// Resize proactively grows the map to at least capacity buckets. A
// no-op if the newest generation is already that large.
func (m *Map[K, V]) Resize(capacity uint64) {
	guard := rcu.Enter(m.rcuD)
	defer guard.Exit()

	target := adjustCapacity(capacity)
	t := m.newestTable()
	if target > t.capacity {
		t.next.CompareAndSwap(nil, newTable[K, V](target, m.keyAtom.Magic().Empty, m.valAtom.Magic().Empty))
	}
}

func (m *Map[K, V]) newestTable() *table[K, V] {
	t := m.table.Load()
	for {
		n := t.next.Load()
		if n == nil {
			return t
		}
		t = n
	}
}

// Find returns the value stored for key, if any.
func (m *Map[K, V]) Find(key K) (V, bool) {
	guard := rcu.Enter(m.rcuD)
	defer guard.Exit()
	return m.findImpl(m.table.Load(), m.hashFn(key), key)
}

func (m *Map[K, V]) findImpl(t *table[K, V], hash uint64, key K) (V, bool) {
	for {
		keyMagic := m.keyAtom.Magic()
		valMagic := m.valAtom.Magic()

		for i := uint64(0); i < t.capacity; i++ {
			b := &t.buckets[slotIndex(hash, i, t.capacity)]
			kWord := atom.Word(b.keyWord.Load())

			if kWord == keyMagic.Empty {
				break
			}
			if kWord == keyMagic.Tombstone {
				continue
			}
			if m.keyAtom.Load(kWord) != key {
				continue
			}

			vWord := maskMigrating(atom.Word(b.valWord.Load()))
			if vWord == valMagic.Empty {
				// Key slot claimed but value not yet published.
				var zero V
				return zero, false
			}
			if vWord == valMagic.Tombstone {
				continue
			}
			return m.valAtom.Load(vWord), true
		}

		nt := t.next.Load()
		if nt == nil {
			var zero V
			return zero, false
		}
		t = nt
	}
}

// Insert adds key/value if key is not already live in any readable
// table generation. Returns false on duplicate.
func (m *Map[K, V]) Insert(key K, value V) bool {
	guard := rcu.Enter(m.rcuD)
	defer guard.Exit()

	hash := m.hashFn(key)
	keyWord := m.keyAtom.Alloc(key)
	valWord := m.valAtom.Alloc(value)

	if m.insertImpl(m.table.Load(), hash, key, keyWord, valWord) {
		m.elem.Add(1)
		m.maybeResize()
		return true
	}

	m.keyAtom.Dealloc(keyWord)
	m.valAtom.Dealloc(valWord)
	return false
}

func (m *Map[K, V]) insertImpl(t *table[K, V], hash uint64, key K, keyWord, valWord atom.Word) bool {
	for {
		if dest := t.next.Load(); dest != nil {
			m.helpMigrateOne(t)
			if _, found := m.findImpl(t, hash, key); found {
				return false
			}
			t = dest
			continue
		}

		keyMagic := m.keyAtom.Magic()
		valMagic := m.valAtom.Magic()
		claimedIdx := -1

	probe:
		for i := uint64(0); i < t.capacity; i++ {
			idx := slotIndex(hash, i, t.capacity)
			b := &t.buckets[idx]

			for {
				kWord := atom.Word(b.keyWord.Load())

				if kWord == keyMagic.Empty {
					if b.keyWord.CompareAndSwap(uintptr(keyMagic.Empty), uintptr(keyWord)) {
						claimedIdx = int(idx)
						break probe
					}
					continue
				}

				if kWord == keyMagic.Tombstone {
					break
				}

				if m.keyAtom.Load(kWord) == key {
					vWord := maskMigrating(atom.Word(b.valWord.Load()))
					if vWord != valMagic.Tombstone {
						return false
					}
				}
				break
			}
		}

		if claimedIdx >= 0 {
			b := &t.buckets[claimedIdx]
			b.valWord.CompareAndSwap(uintptr(valMagic.Empty), uintptr(valWord))
			return true
		}

		t = m.ensureResize(t)
	}
}

// CompareExchange swaps the value stored for key from expected to
// desired, reporting success. On failure, *expected is updated to the
// value actually observed (the zero value if the key isn't live).
func (m *Map[K, V]) CompareExchange(key K, expected *V, desired V) bool {
	guard := rcu.Enter(m.rcuD)
	defer guard.Exit()

	hash := m.hashFn(key)
	desiredWord := m.valAtom.Alloc(desired)

	ok, actual := m.compareExchangeImpl(m.table.Load(), hash, key, *expected, desiredWord)
	*expected = actual
	if !ok {
		m.valAtom.Dealloc(desiredWord)
	}
	return ok
}

func (m *Map[K, V]) compareExchangeImpl(t *table[K, V], hash uint64, key K, expected V, desiredWord atom.Word) (bool, V) {
	for {
		if dest := t.next.Load(); dest != nil {
			m.helpMigrateOne(t)
		}

		keyMagic := m.keyAtom.Magic()
		valMagic := m.valAtom.Magic()

		for i := int64(0); i < int64(t.capacity); i++ {
			b := &t.buckets[slotIndex(hash, uint64(i), t.capacity)]
			kWord := atom.Word(b.keyWord.Load())

			if kWord == keyMagic.Empty {
				break
			}
			if kWord == keyMagic.Tombstone {
				continue
			}
			if m.keyAtom.Load(kWord) != key {
				continue
			}

			storedRaw := atom.Word(b.valWord.Load())
			stored := maskMigrating(storedRaw)
			if stored == valMagic.Empty {
				var zero V
				return false, zero
			}
			if stored == valMagic.Tombstone {
				continue
			}
			if isMigrating(storedRaw) {
				// Bucket is frozen for migration; never CAS against a
				// tagged word, or a racing mover's final tombstone CAS
				// would silently fail and leave two live copies of key.
				// Retry the same slot once the lock clears.
				i--
				continue
			}

			current := m.valAtom.Load(stored)
			if current != expected {
				return false, current
			}
			if b.valWord.CompareAndSwap(uintptr(storedRaw), uintptr(desiredWord)) {
				return true, current
			}
			return false, m.valAtom.Load(maskMigrating(atom.Word(b.valWord.Load())))
		}

		nt := t.next.Load()
		if nt == nil {
			var zero V
			return false, zero
		}
		t = nt
	}
}

// Remove deletes and returns the value stored for key, if any.
func (m *Map[K, V]) Remove(key K) (V, bool) {
	guard := rcu.Enter(m.rcuD)
	defer guard.Exit()

	value, ok := m.removeImpl(m.table.Load(), m.hashFn(key), key)
	if ok {
		m.elem.Add(-1)
	}
	return value, ok
}

func (m *Map[K, V]) removeImpl(t *table[K, V], hash uint64, key K) (V, bool) {
	for {
		if dest := t.next.Load(); dest != nil {
			m.helpMigrateOne(t)
		}

		keyMagic := m.keyAtom.Magic()
		valMagic := m.valAtom.Magic()

		for i := int64(0); i < int64(t.capacity); i++ {
			idx := slotIndex(hash, uint64(i), t.capacity)
			b := &t.buckets[idx]
			kWord := atom.Word(b.keyWord.Load())

			if kWord == keyMagic.Empty {
				break
			}
			if kWord == keyMagic.Tombstone {
				continue
			}
			if m.keyAtom.Load(kWord) != key {
				continue
			}

			storedRaw := atom.Word(b.valWord.Load())
			stored := maskMigrating(storedRaw)
			if stored == valMagic.Empty {
				var zero V
				return zero, false
			}
			if stored == valMagic.Tombstone {
				continue
			}
			if isMigrating(storedRaw) {
				// Being moved right now; retry this same slot.
				i--
				continue
			}

			if !b.valWord.CompareAndSwap(uintptr(storedRaw), uintptr(valMagic.Tombstone)) {
				i--
				continue
			}

			value := m.valAtom.Load(stored)
			b.keyWord.CompareAndSwap(uintptr(kWord), uintptr(keyMagic.Tombstone))
			m.deferDealloc(kWord, stored)
			return value, true
		}

		nt := t.next.Load()
		if nt == nil {
			var zero V
			return zero, false
		}
		t = nt
	}
}

func (m *Map[K, V]) deferDealloc(keyWord, valWord atom.Word) {
	m.rcuD.Defer(func() {
		m.keyAtom.Dealloc(keyWord)
		m.valAtom.Dealloc(valWord)
	})
}

func (m *Map[K, V]) maybeResize() {
	t := m.newestTable()
	lf := m.loadFactorValue()
	if float64(m.elem.Load()) >= lf*float64(t.capacity) {
		m.ensureResize(t)
	}
}

func (m *Map[K, V]) ensureResize(t *table[K, V]) *table[K, V] {
	if dest := t.next.Load(); dest != nil {
		return dest
	}

	newT := newTable[K, V](t.capacity*2, m.keyAtom.Magic().Empty, m.valAtom.Magic().Empty)
	if !t.next.CompareAndSwap(nil, newT) {
		return t.next.Load()
	}
	return newT
}

func (m *Map[K, V]) helpMigrateOne(t *table[K, V]) {
	dest := t.next.Load()
	if dest == nil || t.drained.Load() {
		return
	}

	idx := t.migrateCursor.Add(1) - 1
	if idx >= t.capacity {
		m.finishDrain(t)
		return
	}
	m.moveBucket(t, dest, idx)
}

func (m *Map[K, V]) finishDrain(t *table[K, V]) {
	if !t.drained.CompareAndSwap(false, true) {
		return
	}
	next := t.next.Load()
	m.rcuD.Defer(func() {
		// Advances the root past a table no live reader can still be
		// chasing into, once this has been true for a full epoch.
		// Go's GC reclaims t once this was its last reference.
		m.table.CompareAndSwap(t, next)
	})
}

func (m *Map[K, V]) moveBucket(src, dest *table[K, V], idx uint64) {
	b := &src.buckets[idx]
	keyMagic := m.keyAtom.Magic()
	valMagic := m.valAtom.Magic()

	for {
		keyRaw := atom.Word(b.keyWord.Load())
		if keyRaw == keyMagic.Empty || keyRaw == keyMagic.Tombstone {
			return
		}

		valRaw := atom.Word(b.valWord.Load())
		if isMigrating(valRaw) {
			return
		}
		if valRaw == valMagic.Empty || valRaw == valMagic.Tombstone {
			return
		}

		locked := valRaw | migratingBit
		if !b.valWord.CompareAndSwap(uintptr(valRaw), uintptr(locked)) {
			continue
		}

		key := m.keyAtom.Load(keyRaw)
		m.insertImpl(dest, m.hashFn(key), key, keyRaw, valRaw)

		b.valWord.CompareAndSwap(uintptr(locked), uintptr(valMagic.Tombstone))
		b.keyWord.CompareAndSwap(uintptr(keyRaw), uintptr(keyMagic.Tombstone))
		return
	}
}
