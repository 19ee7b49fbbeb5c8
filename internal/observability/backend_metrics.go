package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BackendCollector exposes metrics for fetching results and configurations
// from the simulation backend.
type BackendCollector struct {
	FetchDuration *prometheus.HistogramVec
	CacheLookups  *prometheus.CounterVec
}

// NewBackendCollector registers backend metrics against reg.
func NewBackendCollector(reg prometheus.Registerer) (*BackendCollector, error) {
	reg, _ = resolveRegistry(reg)

	fetch, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playback_backend_fetch_duration_seconds",
		Help:    "Duration of backend fetches, labeled by resource and outcome.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"resource", "outcome"}), "playback_backend_fetch_duration_seconds")
	if err != nil {
		return nil, err
	}
	cache, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playback_backend_cache_lookups_total",
		Help: "Backend document cache lookups, labeled by resource and result (hit or miss).",
	}, []string{"resource", "result"}), "playback_backend_cache_lookups_total")
	if err != nil {
		return nil, err
	}

	return &BackendCollector{FetchDuration: fetch, CacheLookups: cache}, nil
}

// ObserveFetch records one backend round trip.
func (c *BackendCollector) ObserveFetch(resource, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.FetchDuration.WithLabelValues(resource, outcome).Observe(d.Seconds())
}

// ObserveCache records a cache hit or miss for resource.
func (c *BackendCollector) ObserveCache(resource string, hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.CacheLookups.WithLabelValues(resource, result).Inc()
}
