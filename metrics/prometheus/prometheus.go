// Package prometheus reports cache metrics to Prometheus.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meigma/stow/metrics"
)

// Default histogram buckets for generator latency (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60,
}

// cacheMetrics implements metrics.Metrics using Prometheus collectors.
type cacheMetrics struct {
	hits            *prometheus.CounterVec
	misses          *prometheus.CounterVec
	sets            *prometheus.CounterVec
	payloadBytes    *prometheus.HistogramVec
	removals        *prometheus.CounterVec
	evictions       *prometheus.CounterVec
	reconcilePruned *prometheus.CounterVec
	entries         *prometheus.GaugeVec
	computeDuration *prometheus.HistogramVec
}

// New creates Prometheus cache metrics and registers them with reg.
func New(reg prometheus.Registerer) metrics.Metrics {
	m := &cacheMetrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stow_cache_hits_total",
			Help: "Total number of lookups that returned a stored value",
		}, []string{"namespace"}),

		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stow_cache_misses_total",
			Help: "Total number of lookups that found no live value",
		}, []string{"namespace"}),

		sets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stow_cache_sets_total",
			Help: "Total number of values written",
		}, []string{"namespace"}),

		payloadBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stow_cache_payload_bytes",
			Help:    "Serialized size of written values",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10),
		}, []string{"namespace"}),

		removals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stow_cache_removals_total",
			Help: "Total number of explicit removals",
		}, []string{"namespace"}),

		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stow_cache_evictions_total",
			Help: "Total number of entries or payloads dropped",
		}, []string{"namespace", "reason"}),

		reconcilePruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stow_cache_reconcile_pruned_total",
			Help: "Total number of ledger entries pruned by reconciliation",
		}, []string{"namespace"}),

		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stow_cache_entries",
			Help: "Current number of ledger entries",
		}, []string{"namespace"}),

		computeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stow_cache_compute_duration_seconds",
			Help:    "Generator run time in seconds",
			Buckets: defaultBuckets,
		}, []string{"namespace"}),
	}

	reg.MustRegister(
		m.hits,
		m.misses,
		m.sets,
		m.payloadBytes,
		m.removals,
		m.evictions,
		m.reconcilePruned,
		m.entries,
		m.computeDuration,
	)

	return m
}

func (m *cacheMetrics) Hit(namespace string) {
	m.hits.WithLabelValues(namespace).Inc()
}

func (m *cacheMetrics) Miss(namespace string) {
	m.misses.WithLabelValues(namespace).Inc()
}

func (m *cacheMetrics) Stored(namespace string, size int) {
	m.sets.WithLabelValues(namespace).Inc()
	m.payloadBytes.WithLabelValues(namespace).Observe(float64(size))
}

func (m *cacheMetrics) Removed(namespace string) {
	m.removals.WithLabelValues(namespace).Inc()
}

func (m *cacheMetrics) Evicted(namespace, reason string) {
	m.evictions.WithLabelValues(namespace, reason).Inc()
}

func (m *cacheMetrics) Reconciled(namespace string, pruned int) {
	m.reconcilePruned.WithLabelValues(namespace).Add(float64(pruned))
}

func (m *cacheMetrics) Entries(namespace string, n int) {
	m.entries.WithLabelValues(namespace).Set(float64(n))
}

func (m *cacheMetrics) ComputeDuration(namespace string) metrics.Timer {
	return newTimer(m.computeDuration.WithLabelValues(namespace))
}

// timer wraps a Prometheus observer to implement metrics.Timer.
type timer struct {
	h     prometheus.Observer
	start time.Time
}

func newTimer(h prometheus.Observer) metrics.Timer {
	return &timer{h: h, start: time.Now()}
}

func (t *timer) ObserveDuration() {
	t.h.Observe(time.Since(t.start).Seconds())
}

var _ metrics.Metrics = (*cacheMetrics)(nil)
