package lockless

// MetricsCollector receives operation counts from the core packages'
// callers. It has no method for every operation each package exposes;
// instead it groups by the kind of event worth counting in production
// (a contended CAS retry, a GC pass, a resize, a full ring) the way
// balios's MetricsCollector groups by hit/miss/eviction rather than by
// every individual cache method.
type MetricsCollector interface {
	// RecordRCUPass is called once per completed GC pass (rcu.RCU or
	// grcu.GlobalRCU), with the number of deferred callbacks it ran.
	RecordRCUPass(reclaimed int)

	// RecordMapResize is called once a hashmap.Map finishes migrating
	// every bucket out of an old table, with the old and new capacity.
	RecordMapResize(oldCapacity, newCapacity uint64)

	// RecordRetry is called when a lock-free operation in component
	// loses a CAS race and retries, for contention visibility. component
	// is a short tag such as "queue.push" or "ring.pushMRMW".
	RecordRetry(component string)
}

// NoOpMetricsCollector discards every event. It is the default
// wherever a MetricsCollector is accepted.
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordRCUPass(reclaimed int)                     {}
func (NoOpMetricsCollector) RecordMapResize(oldCapacity, newCapacity uint64) {}
func (NoOpMetricsCollector) RecordRetry(component string)                    {}
