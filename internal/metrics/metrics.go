// Package metrics provides Prometheus collectors for the data layer.
// It tracks request outcomes, retry attempts, cache effectiveness, and
// request deduplication so operators can see how the layer behaves against
// a live record store.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector aggregates data-layer telemetry. A nil *Collector is valid and
// records nothing, so instrumentation points need no nil checks.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	retriesTotal   prometheus.Counter
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	invalidations  prometheus.Counter
	dedupShared    prometheus.Counter
	inflightGauge  prometheus.Gauge
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "datalayer"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "request",
			Name:      "total",
			Help:      "Requests issued, by method and outcome (success|timeout|transport|abort|http)",
		},
		[]string{"method", "outcome"},
	)

	c.requestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "request",
			Name:      "duration_seconds",
			Help:      "Request latency by method",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	c.retriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "retry",
		Name:      "attempts_total",
		Help:      "Retry attempts issued after a retryable failure",
	})

	c.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Responses served from the cache",
	})

	c.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Cacheable reads that went to the network",
	})

	c.invalidations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "invalidations_total",
		Help:      "Global cache invalidations triggered by successful mutations",
	})

	c.dedupShared = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "inflight",
		Name:      "shared_total",
		Help:      "Callers that attached to an already-pending identical request",
	})

	c.inflightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "inflight",
		Name:      "outstanding",
		Help:      "Distinct requests currently outstanding",
	})

	c.registry.MustRegister(
		c.requestsTotal,
		c.requestLatency,
		c.retriesTotal,
		c.cacheHits,
		c.cacheMisses,
		c.invalidations,
		c.dedupShared,
		c.inflightGauge,
	)

	return c
}

// Registry returns the underlying registry for exposition.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveRequest records one settled request.
func (c *Collector) ObserveRequest(method, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(method, outcome).Inc()
	c.requestLatency.WithLabelValues(method).Observe(d.Seconds())
}

// RecordRetry records one retry attempt.
func (c *Collector) RecordRetry() {
	if c == nil {
		return
	}
	c.retriesTotal.Inc()
}

// RecordCacheHit records a response served from cache.
func (c *Collector) RecordCacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

// RecordCacheMiss records a cacheable read that went to the network.
func (c *Collector) RecordCacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

// RecordInvalidation records a global cache invalidation.
func (c *Collector) RecordInvalidation() {
	if c == nil {
		return
	}
	c.invalidations.Inc()
}

// RecordDedupShared records a caller joining a pending identical request.
func (c *Collector) RecordDedupShared() {
	if c == nil {
		return
	}
	c.dedupShared.Inc()
}

// SetInflight records the current number of outstanding requests.
func (c *Collector) SetInflight(n int) {
	if c == nil {
		return
	}
	c.inflightGauge.Set(float64(n))
}
