package apidb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("apidb")

var (
	// parseDuration tracks how long descriptor parsing takes
	parseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "apidb_parse_duration_seconds",
		Help:    "Descriptor parse duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	})

	// lookupTotal counts facade lookups by kind and result
	lookupTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apidb_lookup_total",
		Help: "Total API lookups by kind and result",
	}, []string{"kind", "result"}) // result: "level" or "none"

	// cacheRegenerations counts binary cache rebuilds by reason
	cacheRegenerations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apidb_cache_regenerations_total",
		Help: "Total binary cache regenerations by reason",
	}, []string{"reason"})

	// registryRequests counts registry gets by outcome
	registryRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apidb_registry_requests_total",
		Help: "Total registry requests by outcome",
	}, []string{"outcome"}) // "hit", "miss" or "error"
)

func recordLookup(kind string, level int) {
	result := "level"
	if level == NoLevel {
		result = "none"
	}
	lookupTotal.WithLabelValues(kind, result).Inc()
}
