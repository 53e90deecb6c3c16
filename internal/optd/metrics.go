package optd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vesselopt",
		Subsystem: "jobs",
		Name:      "submitted_total",
		Help:      "Optimization jobs accepted by the controller.",
	})

	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vesselopt",
		Subsystem: "jobs",
		Name:      "finished_total",
		Help:      "Optimization jobs that reached a terminal state, by status and reason.",
	}, []string{"status", "reason"})

	jobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vesselopt",
		Subsystem: "jobs",
		Name:      "running",
		Help:      "Optimization jobs currently running.",
	})

	generationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vesselopt",
		Subsystem: "jobs",
		Name:      "generations_total",
		Help:      "Generations completed across all jobs.",
	})

	designEvaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vesselopt",
		Subsystem: "jobs",
		Name:      "design_evaluations_total",
		Help:      "Design evaluations performed across all jobs.",
	})

	generationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vesselopt",
		Subsystem: "jobs",
		Name:      "generation_duration_seconds",
		Help:      "Wall time of one generation including evaluation.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
	})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vesselopt",
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Wall time from start to terminal state of running jobs.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 18),
	})

	reliabilityRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vesselopt",
		Subsystem: "jobs",
		Name:      "reliability_requests_total",
		Help:      "Reliability requests by outcome (ok, invalid, sampling_failed, error).",
	}, []string{"outcome"})
)
