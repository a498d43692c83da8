package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics recorded by the dispatcher.
// A nil *Metrics disables recording.
type Metrics struct {
	DispatchTotal  *prometheus.CounterVec
	ChainDuration  *prometheus.HistogramVec
	ChainFailures  *prometheus.CounterVec
	SkippedTotal   *prometheus.CounterVec
	ErrorChainFail prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
// An empty namespace defaults to "hookchain".
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "hookchain"
	}
	return &Metrics{
		DispatchTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Total number of dispatched service calls",
			},
			[]string{"service", "method", "status"}, // status=ok/error
		),
		ChainDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chain_duration_seconds",
				Help:      "Hook chain run duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"phase", "method"},
		),
		ChainFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chain_failures_total",
				Help:      "Total hook chain runs that stopped on an interceptor failure",
			},
			[]string{"phase", "method"},
		),
		SkippedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_skipped_total",
				Help:      "Total operations skipped because a before hook supplied the result",
			},
			[]string{"service", "method"},
		),
		ErrorChainFail: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "error_chain_failures_total",
				Help:      "Total error-phase chains that failed themselves",
			},
		),
	}
}
