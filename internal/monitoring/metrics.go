// Package monitoring exposes prometheus metrics for wrap/unwrap operations
// and serves them over HTTP.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(registry)
)

var (
	// WrapOperationsTotal counts encryption-materials requests by suite and
	// outcome.
	WrapOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evk_wrap_operations_total",
			Help: "Total number of data-key wrap operations",
		},
		[]string{"algorithm", "status"},
	)

	// UnwrapOperationsTotal counts decryption-materials requests by suite and
	// outcome.
	UnwrapOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evk_unwrap_operations_total",
			Help: "Total number of data-key unwrap operations",
		},
		[]string{"algorithm", "status"},
	)

	// WrapDuration tracks how long one encryption pass takes.
	WrapDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evk_wrap_duration_seconds",
			Help:    "Wrap operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"algorithm"},
	)

	// UnwrapDuration tracks how long one decryption pass takes.
	UnwrapDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evk_unwrap_duration_seconds",
			Help:    "Unwrap operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"algorithm"},
	)
)

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
