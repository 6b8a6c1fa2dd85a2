// Command lockless-bench is a stress-test driver over every package in
// this module, the Go equivalent of the original's ad-hoc test
// binaries (thread-count, iteration-count and csv-output flags).
package main

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	flashflags "github.com/agilira/flash-flags"

	"github.com/agilira/lockless/atom"
	"github.com/agilira/lockless/grcu"
	"github.com/agilira/lockless/hashmap"
	"github.com/agilira/lockless/queue"
	"github.com/agilira/lockless/ring"
	"github.com/agilira/lockless/snzi"
)

func main() {
	fs := flashflags.New("lockless-bench", "stress-test driver for the lockless primitives")
	threads := fs.Int("threads", 8, "goroutines per benchmark")
	iterations := fs.Int("iterations", 100000, "operations per goroutine")
	csvPath := fs.String("csv", "", "write results as CSV to this path instead of stdout")

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "lockless-bench:", err)
		os.Exit(1)
	}

	results := []result{
		benchQueue(threads.Value(), iterations.Value()),
		benchHashMap(threads.Value(), iterations.Value()),
		benchRing(threads.Value(), iterations.Value()),
		benchSNZI(threads.Value(), iterations.Value()),
		benchGRCU(threads.Value(), iterations.Value()),
	}

	if path := csvPath.Value(); path != "" {
		if err := writeCSV(path, results); err != nil {
			fmt.Fprintln(os.Stderr, "lockless-bench:", err)
			os.Exit(1)
		}
		return
	}

	for _, r := range results {
		fmt.Printf("%-12s threads=%d iterations=%d elapsed=%s ops/sec=%.0f\n",
			r.name, r.threads, r.iterations, r.elapsed, r.opsPerSec())
	}
}

type result struct {
	name       string
	threads    int
	iterations int
	elapsed    time.Duration
}

func (r result) opsPerSec() float64 {
	total := float64(r.threads) * float64(r.iterations)
	return total / r.elapsed.Seconds()
}

func writeCSV(path string, results []result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, "name,threads,iterations,elapsed_ns,ops_per_sec"); err != nil {
		return err
	}
	for _, r := range results {
		if _, err := fmt.Fprintf(f, "%s,%d,%d,%d,%.0f\n",
			r.name, r.threads, r.iterations, r.elapsed.Nanoseconds(), r.opsPerSec()); err != nil {
			return err
		}
	}
	return nil
}

func benchQueue(threads, iterations int) result {
	q := queue.New[int]()

	start := time.Now()
	var wg sync.WaitGroup
	for g := 0; g < threads; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				q.Push(base*iterations + i)
			}
		}(g)
	}
	wg.Wait()
	for {
		if _, ok := q.Pop(); !ok {
			break
		}
	}

	return result{"queue", threads, iterations, time.Since(start)}
}

func benchHashMap(threads, iterations int) result {
	m := hashmap.New[int, int](
		func(k int) uint64 { return uint64(k) * 2654435761 },
		atom.NewEmbedded[int](atom.DefaultMagicWord()),
		atom.NewEmbedded[int](atom.DefaultMagicWord()),
		hashmap.DefaultConfig(),
	)

	start := time.Now()
	var wg sync.WaitGroup
	for g := 0; g < threads; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				key := base*iterations + i
				m.Insert(key, key)
				m.Find(key)
				m.Remove(key)
			}
		}(g)
	}
	wg.Wait()

	return result{"hashmap", threads, iterations, time.Since(start)}
}

func benchRing(threads, iterations int) result {
	r := ring.New[int](1024, atom.NewEmbedded[int](atom.DefaultMagicWord()))

	start := time.Now()
	var wg sync.WaitGroup
	for g := 0; g < threads; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				v := base*iterations + i + 1
				for !r.PushMRMW(v) {
					r.PopMRMW()
				}
				r.PopMRMW()
			}
		}(g)
	}
	wg.Wait()

	return result{"ring", threads, iterations, time.Since(start)}
}

func benchSNZI(threads, iterations int) result {
	s := snzi.New(uint64(threads*2), 2)

	start := time.Now()
	var wg sync.WaitGroup
	for g := 0; g < threads; g++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				s.Inc(id)
				s.Dec(id)
			}
		}(uint64(g))
	}
	wg.Wait()

	return result{"snzi", threads, iterations, time.Since(start)}
}

func benchGRCU(threads, iterations int) result {
	domain := grcu.New()
	gc := grcu.NewGcThread(domain, 2*time.Millisecond)
	defer gc.Join()

	var completed int64

	start := time.Now()
	var wg sync.WaitGroup
	for g := 0; g < threads; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := domain.Register()
			defer h.Unregister()
			for i := 0; i < iterations; i++ {
				e := h.Enter()
				h.Defer(func() { atomic.AddInt64(&completed, 1) })
				h.Exit(e)
			}
		}()
	}
	wg.Wait()

	for domain.GC() {
	}

	return result{"grcu", threads, iterations, time.Since(start)}
}
