package lockless

import (
	"time"

	"github.com/agilira/go-timecache"
)

// Config holds the module-wide tunables that aren't local to a single
// package's own constructor arguments: the knobs a caller building a
// service out of these primitives would otherwise have to thread
// through by hand, and the one knob (gc cadence) and one threshold
// (hash map load factor) that HotConfig can retune live.
type Config struct {
	// TableInitialCapacity seeds a new hashmap.Map's Config.
	// Must be > 0. Default: DefaultTableInitialCapacity.
	TableInitialCapacity uint64

	// HashMapLoadFactor is the occupancy fraction past which a
	// hashmap.Map proactively resizes. Must be in (0, 1).
	// Default: DefaultHashMapLoadFactor.
	HashMapLoadFactor float64

	// GcCadence paces a grcu.GcThread's ticking. Default:
	// grcu.DefaultCadence.
	GcCadence time.Duration

	// Logger receives diagnostics from anything built on top of these
	// primitives. If nil, NoOpLogger is used.
	Logger Logger

	// TimeProvider supplies wall-clock time for diagnostics. If nil,
	// a default cached provider is used.
	TimeProvider TimeProvider

	// MetricsCollector receives operation counts. If nil,
	// NoOpMetricsCollector is used.
	MetricsCollector MetricsCollector
}

// Defaults for Config's normalized fields.
const (
	DefaultTableInitialCapacity = 32
	DefaultHashMapLoadFactor    = 0.7
	DefaultGcCadence            = 4 * time.Millisecond
)

// Validate normalizes c in place and always returns nil: every field
// has a sane default, so there is nothing for a caller to react to.
// This mirrors balios.Config.Validate's clamp-and-default contract;
// OutOfMemory and CallerError remain the only conditions this module
// surfaces as actual errors (see errors.go).
func (c *Config) Validate() error {
	if c.TableInitialCapacity == 0 {
		c.TableInitialCapacity = DefaultTableInitialCapacity
	}
	if c.HashMapLoadFactor <= 0 || c.HashMapLoadFactor >= 1 {
		c.HashMapLoadFactor = DefaultHashMapLoadFactor
	}
	if c.GcCadence <= 0 {
		c.GcCadence = DefaultGcCadence
	}
	if c.Logger == nil {
		c.Logger = NoOpLogger{}
	}
	if c.TimeProvider == nil {
		c.TimeProvider = &systemTimeProvider{}
	}
	if c.MetricsCollector == nil {
		c.MetricsCollector = NoOpMetricsCollector{}
	}
	return nil
}

// DefaultConfig returns a Config with every field already normalized.
func DefaultConfig() Config {
	c := Config{
		TableInitialCapacity: DefaultTableInitialCapacity,
		HashMapLoadFactor:    DefaultHashMapLoadFactor,
		GcCadence:            DefaultGcCadence,
	}
	_ = c.Validate()
	return c
}

// TimeProvider supplies the current time; injectable for deterministic
// tests, matching balios.TimeProvider's shape.
type TimeProvider interface {
	// Now returns nanoseconds since the Unix epoch.
	Now() int64
}

// systemTimeProvider is the default TimeProvider, backed by
// go-timecache's cached clock instead of time.Now() on whatever hot
// diagnostic path ends up reading it.
type systemTimeProvider struct{}

func (systemTimeProvider) Now() int64 {
	return timecache.CachedTimeNano()
}
