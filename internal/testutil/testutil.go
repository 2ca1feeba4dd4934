// Package testutil provides helpers shared by cache tests.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/meigma/stow/metrics"
)

// Clock is a manually advanced time source. The zero value starts at the
// zero time; use NewClock for a fixed, realistic start.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock set to start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Event keys counted by Metrics.
const (
	EventHit     = "hit"
	EventMiss    = "miss"
	EventStored  = "stored"
	EventRemoved = "removed"
	EventCompute = "compute"
)

// Metrics records cache events for assertions. It is safe for concurrent use.
type Metrics struct {
	mu      sync.Mutex
	counts  map[string]int
	entries int
}

var _ metrics.Metrics = (*Metrics)(nil)

// NewMetrics returns an empty recorder.
func NewMetrics() *Metrics {
	return &Metrics{counts: make(map[string]int)}
}

// Count returns how often event was recorded.
func (m *Metrics) Count(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[event]
}

// Evictions returns how many evictions were recorded for reason.
func (m *Metrics) Evictions(reason string) int {
	return m.Count("evicted:" + reason)
}

// LastEntries returns the most recently reported ledger size.
func (m *Metrics) LastEntries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries
}

func (m *Metrics) inc(event string) {
	m.mu.Lock()
	m.counts[event]++
	m.mu.Unlock()
}

// Hit records EventHit.
func (m *Metrics) Hit(string) { m.inc(EventHit) }

// Miss records EventMiss.
func (m *Metrics) Miss(string) { m.inc(EventMiss) }

// Stored records EventStored.
func (m *Metrics) Stored(string, int) { m.inc(EventStored) }

// Removed records EventRemoved.
func (m *Metrics) Removed(string) { m.inc(EventRemoved) }

// Evicted records an eviction for reason; see Evictions.
func (m *Metrics) Evicted(_, reason string) { m.inc("evicted:" + reason) }

// Reconciled is a no-op; pruning shows up as evictions.
func (m *Metrics) Reconciled(string, int) {}

// Entries records n as the ledger size; see LastEntries.
func (m *Metrics) Entries(_ string, n int) { m.setEntries(n) }

// ComputeDuration counts generator runs and returns a no-op timer.
func (m *Metrics) ComputeDuration(string) metrics.Timer {
	m.inc(EventCompute)
	return metrics.NopTimer()
}

func (m *Metrics) setEntries(n int) {
	m.mu.Lock()
	m.entries = n
	m.mu.Unlock()
}

// LedgerRecord is one record of a persisted ledger document.
type LedgerRecord struct {
	Expired    string `json:"Expired"`
	Identifier string `json:"Identifier"`
	Digest     string `json:"Digest,omitempty"`
}

// ReadLedger decodes the ledger document in the namespace directory dir.
func ReadLedger(tb testing.TB, dir string) []LedgerRecord {
	tb.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "main.json"))
	if err != nil {
		tb.Fatalf("read ledger: %v", err)
	}
	var doc struct {
		Files []LedgerRecord `json:"Files"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		tb.Fatalf("decode ledger %s: %v", data, err)
	}
	return doc.Files
}

// CountRecords returns how many ledger records in dir name id.
func CountRecords(tb testing.TB, dir, id string) int {
	tb.Helper()
	n := 0
	for _, rec := range ReadLedger(tb, dir) {
		if rec.Identifier == id {
			n++
		}
	}
	return n
}

// WriteFile writes data to name under dir, creating dir if needed.
func WriteFile(tb testing.TB, dir, name string, data []byte) {
	tb.Helper()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		tb.Fatalf("create %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
		tb.Fatalf("write %s: %v", name, err)
	}
}
