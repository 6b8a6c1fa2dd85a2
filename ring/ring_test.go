package ring

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/agilira/lockless/atom"
)

func intAtomizer() atom.Atomizer[int] {
	return atom.NewEmbedded[int](atom.DefaultMagicWord())
}

func TestSRSWPushPopFIFO(t *testing.T) {
	r := New[int](4, intAtomizer())

	if !r.PushSRSW(1) || !r.PushSRSW(2) || !r.PushSRSW(3) {
		t.Fatal("expected pushes within capacity to succeed")
	}

	for _, want := range []int{1, 2, 3} {
		v, ok := r.PopSRSW()
		if !ok || v != want {
			t.Fatalf("PopSRSW = %d, %v; want %d, true", v, ok, want)
		}
	}

	if _, ok := r.PopSRSW(); ok {
		t.Fatal("expected PopSRSW on an empty ring to report false")
	}
}

func TestSRSWBoundedness(t *testing.T) {
	r := New[int](2, intAtomizer())

	if !r.PushSRSW(1) || !r.PushSRSW(2) {
		t.Fatal("expected two pushes to fill a capacity-2 ring")
	}
	if r.PushSRSW(3) {
		t.Fatal("expected push on a full ring to report false")
	}

	if _, ok := r.PopSRSW(); !ok {
		t.Fatal("expected a pop to free a slot")
	}
	if !r.PushSRSW(3) {
		t.Fatal("expected push to succeed after a pop frees a slot")
	}
}

func TestMRMWPushPopFIFO(t *testing.T) {
	r := New[int](8, intAtomizer())

	for i := 1; i <= 5; i++ {
		if !r.PushMRMW(i) {
			t.Fatalf("PushMRMW(%d) failed unexpectedly", i)
		}
	}
	for i := 1; i <= 5; i++ {
		v, ok := r.PopMRMW()
		if !ok || v != i {
			t.Fatalf("PopMRMW = %d, %v; want %d, true", v, ok, i)
		}
	}
}

func TestMRMWBoundedness(t *testing.T) {
	r := New[int](4, intAtomizer())

	for i := 0; i < 4; i++ {
		if !r.PushMRMW(i + 1) {
			t.Fatalf("push %d should have succeeded within capacity", i)
		}
	}
	if r.PushMRMW(99) {
		t.Fatal("push on a full MRMW ring must report false")
	}
}

func TestLenAndEmpty(t *testing.T) {
	r := New[int](4, intAtomizer())

	if !r.Empty() || r.Len() != 0 {
		t.Fatalf("fresh ring: Empty()=%v Len()=%d, want true, 0", r.Empty(), r.Len())
	}

	r.PushSRSW(10)
	r.PushSRSW(20)

	if r.Empty() {
		t.Fatal("ring with entries must not report Empty")
	}
	if got := r.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
}

func TestConcurrentMRMWNeverExceedsCapacityOrLosesValues(t *testing.T) {
	const capacity = 16
	const producers = 6
	const perProducer = 3000
	const total = producers * perProducer

	r := New[int](capacity, intAtomizer())

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				v := base*perProducer + i + 1 // +1: values span 1..total, the range seen indexes
				for !r.PushMRMW(v) {
					// ring momentarily full; retry once a consumer drains.
				}
			}
		}(p)
	}

	seen := make([]bool, total+1)
	var mu sync.Mutex
	var popped int64
	var consumers sync.WaitGroup
	for c := 0; c < 4; c++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for atomic.LoadInt64(&popped) < total {
				if v, ok := r.PopMRMW(); ok {
					mu.Lock()
					if seen[v] {
						t.Errorf("duplicate value popped: %d", v)
					}
					seen[v] = true
					mu.Unlock()
					atomic.AddInt64(&popped, 1)
				}
			}
		}()
	}

	wg.Wait()
	consumers.Wait()

	if got := atomic.LoadInt64(&popped); got != total {
		t.Fatalf("expected to pop exactly %d values, got %d", total, got)
	}
	for v := 1; v <= total; v++ {
		if !seen[v] {
			t.Fatalf("value %d was never popped", v)
		}
	}
}
