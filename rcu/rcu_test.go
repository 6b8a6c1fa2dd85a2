package rcu

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestEnterExitBasic(t *testing.T) {
	r := New()
	e := r.Enter()
	r.Exit(e)
}

func TestDeferRunsAfterVacate(t *testing.T) {
	r := New()

	var ran atomic.Bool

	e := r.Enter()
	r.Defer(func() { ran.Store(true) })

	if ran.Load() {
		t.Fatal("deferred callback ran while the reader that registered it was still active")
	}

	r.Exit(e)

	// A fresh round of enter/exit forces a rotation and should flush
	// whatever was deferred against the now-vacated epoch.
	e2 := r.Enter()
	r.Exit(e2)
	e3 := r.Enter()
	r.Exit(e3)

	if !ran.Load() {
		t.Fatal("deferred callback never ran after epoch vacated and rotated")
	}
}

func TestDeferNotRunWhileReaderStillInEpoch(t *testing.T) {
	r := New()

	var ran atomic.Bool

	// Reader A stays in its epoch the whole test.
	eA := r.Enter()
	r.Defer(func() { ran.Store(true) })

	// Other readers come and go but can never observe eA's epoch
	// vacated since A never exits.
	for i := 0; i < 10; i++ {
		e := r.Enter()
		r.Exit(e)
	}

	if ran.Load() {
		t.Fatal("deferred work ran while a reader from its epoch was still active")
	}

	r.Exit(eA)
}

func TestConcurrentEnterExitDefer(t *testing.T) {
	r := New()
	const goroutines = 16
	const iterations = 2000

	var executed atomic.Int64
	var wg sync.WaitGroup

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				e := r.Enter()
				r.Defer(func() { executed.Add(1) })
				r.Exit(e)
			}
		}()
	}
	wg.Wait()

	// Force enough rotations to flush any stragglers.
	for i := 0; i < 8; i++ {
		e := r.Enter()
		r.Exit(e)
	}

	if got, want := executed.Load(), int64(goroutines*iterations); got != want {
		t.Fatalf("expected all %d deferred callbacks to run, got %d", want, got)
	}
}

func TestGuardHelper(t *testing.T) {
	r := New()
	var ran bool
	func() {
		g := Enter(r)
		defer g.Exit()
		ran = true
	}()
	if !ran {
		t.Fatal("guard-bracketed body never executed")
	}
}
