// Package metrics defines the instrumentation hooks a cache namespace reports
// to, so the cache does not depend on a specific metrics backend.
//
// Every method receives the namespace name. Implementations must be safe for
// concurrent use.
package metrics

// Eviction reasons passed to Metrics.Evicted.
const (
	ReasonExpired = "expired"
	ReasonMissing = "missing"
	ReasonCorrupt = "corrupt"
	ReasonOrphan  = "orphan"
)

// Metrics receives cache lifecycle events.
type Metrics interface {
	// Hit is called when a lookup returns a stored value.
	Hit(namespace string)
	// Miss is called when a lookup finds no live value.
	Miss(namespace string)
	// Stored is called after a value of size bytes is written.
	Stored(namespace string, size int)
	// Removed is called after an explicit removal.
	Removed(namespace string)
	// Evicted is called when an entry or payload is dropped for reason.
	Evicted(namespace, reason string)
	// Reconciled is called after a reconciliation pass pruned n entries.
	Reconciled(namespace string, pruned int)
	// Entries reports the current ledger size.
	Entries(namespace string, n int)
	// ComputeDuration starts timing a generator invocation.
	ComputeDuration(namespace string) Timer
}

// Timer measures the duration of an operation.
type Timer interface {
	// ObserveDuration records the elapsed time since the timer was created.
	ObserveDuration()
}
