package surrogate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vesselopt",
		Subsystem: "surrogate",
		Name:      "evaluations_total",
		Help:      "Surrogate model evaluations by model and outcome (ok, anomaly, unavailable).",
	}, []string{"model", "outcome"})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vesselopt",
		Subsystem: "surrogate",
		Name:      "cache_hits_total",
		Help:      "Surrogate outputs served from the evaluation cache.",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vesselopt",
		Subsystem: "surrogate",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of one batch evaluation.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
	})

	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vesselopt",
		Subsystem: "surrogate",
		Name:      "breaker_transitions_total",
		Help:      "Circuit breaker state transitions for remote models.",
	}, []string{"model", "state"})
)
