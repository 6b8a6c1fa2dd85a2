package grcu

import (
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// DefaultCadence is the tick interval GcThread uses when none is
// given — on the order of a few milliseconds, matching the original's
// "typically on the order of milliseconds" guidance (§6). NewGcThread
// falls back to it for a cadence of zero or less; the module root's
// HotConfig (hotreload.go) passes later cadences to SetCadence.
const DefaultCadence = 4 * time.Millisecond

// GcThread runs GC on a domain every Cadence until Join or Detach is
// called, the Go equivalent of the original's background GcThread
// collaborator. Its use is optional — callers can call GC() directly
// on whatever schedule suits them — but recommended, since nothing
// else in this package paces reclamation.
type GcThread struct {
	domain  *GlobalRCU
	cadence time.Duration
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once

	// lastSuccess records the go-timecache nanosecond timestamp of
	// the most recent successful GC pass, for diagnostics.
	lastSuccess int64
}

// NewGcThread starts a GcThread ticking GC on domain every cadence. A
// cadence of zero uses DefaultCadence.
func NewGcThread(domain *GlobalRCU, cadence time.Duration) *GcThread {
	if cadence <= 0 {
		cadence = DefaultCadence
	}

	t := &GcThread{
		domain:  domain,
		cadence: cadence,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go t.run()
	return t
}

func (t *GcThread) run() {
	defer close(t.done)

	ticker := time.NewTicker(t.cadence)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if t.domain.GC() {
				t.lastSuccess = timecache.CachedTimeNano()
			}
		}
	}
}

// SetCadence records d as the GcThread's cadence; used by the module's
// hot-reload support (HotConfig in the module root's hotreload.go).
// The background goroutine reads the cadence once, when NewGcThread
// starts it, so a GcThread that is already ticking keeps its original
// interval; SetCadence does not restart it.
func (t *GcThread) SetCadence(d time.Duration) {
	t.cadence = d
}

// Join stops the background ticking and blocks until the goroutine
// has exited.
func (t *GcThread) Join() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}

// Detach stops the background ticking without waiting for the
// goroutine to exit — useful at process-shutdown time when the caller
// doesn't want to block on the next tick boundary.
func (t *GcThread) Detach() {
	t.once.Do(func() { close(t.stop) })
}
