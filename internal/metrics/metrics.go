package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RBAC engine metrics
var (
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rbac_permission_cache_hits_total",
		Help: "Effective-permission cache hits.",
	})

	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rbac_permission_cache_misses_total",
		Help: "Effective-permission cache misses (expired entries included).",
	})

	CacheInvalidations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rbac_permission_cache_invalidations_total",
		Help: "Cache entries deleted by mutations, fan-out included.",
	})

	Computations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rbac_effective_permission_computations_total",
		Help: "Full effective-permission set computations.",
	})

	computeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rbac_effective_permission_compute_seconds",
		Help:    "Effective-permission computation latency in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	permissionChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rbac_permission_checks_total",
			Help: "Permission check decisions.",
		},
		[]string{"allowed"},
	)
)

// Init registers the collectors with the default registry.
func Init() {
	prometheus.MustRegister(
		CacheHits,
		CacheMisses,
		CacheInvalidations,
		Computations,
		computeDuration,
		permissionChecks,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ComputeTimer times one effective-permission computation.
func ComputeTimer() *prometheus.Timer {
	return prometheus.NewTimer(computeDuration)
}

// ObserveCheck records one permission check decision.
func ObserveCheck(allowed bool) {
	permissionChecks.WithLabelValues(strconv.FormatBool(allowed)).Inc()
}
