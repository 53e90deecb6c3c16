package reliability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analysesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vesselopt",
		Subsystem: "reliability",
		Name:      "analyses_total",
		Help:      "Completed reliability analyses.",
	})

	samplesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vesselopt",
		Subsystem: "reliability",
		Name:      "samples_total",
		Help:      "Monte Carlo samples drawn, including variance decomposition runs.",
	})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vesselopt",
		Subsystem: "reliability",
		Name:      "cache_hits_total",
		Help:      "Reliability requests answered from the result cache.",
	})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vesselopt",
		Subsystem: "reliability",
		Name:      "analysis_duration_seconds",
		Help:      "Wall time of one reliability analysis.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
	})
)
