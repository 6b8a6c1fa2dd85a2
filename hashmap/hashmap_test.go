package hashmap

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/agilira/lockless/atom"
)

func hashInt(k int) uint64 { return uint64(k) * 2654435761 }

func newIntMap(cfg Config) *Map[int, int] {
	return New[int, int](hashInt, atom.NewEmbedded[int](atom.DefaultMagicWord()), atom.NewEmbedded[int](atom.DefaultMagicWord()), cfg)
}

func TestInsertFindRemove(t *testing.T) {
	m := newIntMap(DefaultConfig())

	if !m.Insert(1, 100) {
		t.Fatal("first insert of a fresh key must succeed")
	}
	if m.Insert(1, 200) {
		t.Fatal("inserting a duplicate key must fail")
	}

	v, ok := m.Find(1)
	if !ok || v != 100 {
		t.Fatalf("Find(1) = %d, %v; want 100, true", v, ok)
	}

	if _, ok := m.Find(2); ok {
		t.Fatal("Find on an absent key must report false")
	}

	removed, ok := m.Remove(1)
	if !ok || removed != 100 {
		t.Fatalf("Remove(1) = %d, %v; want 100, true", removed, ok)
	}
	if _, ok := m.Find(1); ok {
		t.Fatal("key must be gone after Remove")
	}
	if _, ok := m.Remove(1); ok {
		t.Fatal("Remove on an already-removed key must report false")
	}
}

func TestReinsertAfterRemove(t *testing.T) {
	m := newIntMap(DefaultConfig())

	if !m.Insert(5, 1) {
		t.Fatal("initial insert failed")
	}
	if _, ok := m.Remove(5); !ok {
		t.Fatal("remove failed")
	}
	if !m.Insert(5, 2) {
		t.Fatal("re-inserting a removed key must succeed")
	}
	v, ok := m.Find(5)
	if !ok || v != 2 {
		t.Fatalf("Find(5) after reinsert = %d, %v; want 2, true", v, ok)
	}
}

func TestCompareExchange(t *testing.T) {
	m := newIntMap(DefaultConfig())
	m.Insert(7, 10)

	expected := 10
	if !m.CompareExchange(7, &expected, 20) {
		t.Fatal("compare-exchange against the correct expected value must succeed")
	}
	v, _ := m.Find(7)
	if v != 20 {
		t.Fatalf("value after successful compare-exchange = %d; want 20", v)
	}

	expected = 10 // stale now
	if m.CompareExchange(7, &expected, 30) {
		t.Fatal("compare-exchange against a stale expected value must fail")
	}
	if expected != 20 {
		t.Fatalf("expected must be updated to the observed value on failure: got %d, want 20", expected)
	}
}

func TestResizeAcrossManyInserts(t *testing.T) {
	m := newIntMap(DefaultConfig())
	const n = 5000

	for i := 0; i < n; i++ {
		if !m.Insert(i, i*i) {
			t.Fatalf("insert(%d) failed unexpectedly", i)
		}
	}

	if got := m.Size(); got != n {
		t.Fatalf("Size() = %d, want %d", got, n)
	}
	if cap := m.Capacity(); cap <= minCapacity {
		t.Fatalf("expected capacity to have grown past the minimum, got %d", cap)
	}

	for i := 0; i < n; i++ {
		v, ok := m.Find(i)
		if !ok || v != i*i {
			t.Fatalf("Find(%d) = %d, %v; want %d, true (resize transparency violated)", i, v, ok, i*i)
		}
	}
}

func TestKeyUniquenessUnderConcurrentInsert(t *testing.T) {
	m := newIntMap(DefaultConfig())
	const goroutines = 8
	const key = 42

	var successes atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if m.Insert(key, id) {
				successes.Add(1)
			}
		}(g)
	}
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Fatalf("exactly one concurrent insert of the same key must succeed, got %d", got)
	}
	if _, ok := m.Find(key); !ok {
		t.Fatal("key must be findable after the winning insert")
	}
}

func TestConcurrentInsertFindRemoveDistinctKeys(t *testing.T) {
	m := newIntMap(DefaultConfig())
	const goroutines = 8
	const perGoroutine = 2000

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				key := base*perGoroutine + i
				if !m.Insert(key, key) {
					t.Errorf("insert(%d) failed unexpectedly for a unique key", key)
					return
				}
				v, ok := m.Find(key)
				if !ok || v != key {
					t.Errorf("Find(%d) = %d, %v; want %d, true", key, v, ok, key)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	if got, want := m.Size(), int64(goroutines*perGoroutine); got != want {
		t.Fatalf("Size() = %d, want %d", got, want)
	}

	var removeWG sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		removeWG.Add(1)
		go func(base int) {
			defer removeWG.Done()
			for i := 0; i < perGoroutine; i++ {
				key := base*perGoroutine + i
				if _, ok := m.Remove(key); !ok {
					t.Errorf("remove(%d) failed to find a key inserted earlier", key)
				}
			}
		}(g)
	}
	removeWG.Wait()

	if got := m.Size(); got != 0 {
		t.Fatalf("Size() after draining every key = %d, want 0", got)
	}
}

func TestStringKeys(t *testing.T) {
	m := New[string, int](
		func(s string) uint64 {
			var h uint64 = 14695981039346656037
			for i := 0; i < len(s); i++ {
				h ^= uint64(s[i])
				h *= 1099511628211
			}
			return h
		},
		atom.NewString(atom.DefaultMagicPointer()),
		atom.NewEmbedded[int](atom.DefaultMagicWord()),
		DefaultConfig(),
	)

	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("key-%d", i)
		if !m.Insert(key, i) {
			t.Fatalf("insert(%q) failed", key)
		}
	}
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("key-%d", i)
		v, ok := m.Find(key)
		if !ok || v != i {
			t.Fatalf("Find(%q) = %d, %v; want %d, true", key, v, ok, i)
		}
	}
}
