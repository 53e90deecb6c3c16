package metrics

import (
	"time"
)

// Metric names recorded once per generation
const (
	MetricParetoSize         = "pareto_size"
	MetricParetoSaturated    = "pareto_saturated"
	MetricEvaluations        = "evaluations"
	MetricFeasibleFraction   = "feasible_fraction"
	MetricBestObjective      = "best_objective"
	MetricGenerationDuration = "generation_duration_ms"
	MetricUnanswered         = "unanswered_evaluations"
	MetricCacheHits          = "cache_hits"
)

// GenerationSample is what one finished generation contributes to the series
type GenerationSample struct {
	Generation       int
	Evaluations      int
	ParetoSize       int
	Saturated        bool
	FeasibleFraction float64
	Best             map[string]float64 // objective name -> best raw value
	Duration         time.Duration
	Unanswered       int
	CacheHits        int
}

// RecordGeneration appends one point per metric for s
func RecordGeneration(c *Collector, s GenerationSample) {
	now := time.Now()
	c.Record(MetricParetoSize, s.Generation, float64(s.ParetoSize), now, nil)
	saturated := 0.0
	if s.Saturated {
		saturated = 1
	}
	c.Record(MetricParetoSaturated, s.Generation, saturated, now, nil)
	c.Record(MetricEvaluations, s.Generation, float64(s.Evaluations), now, nil)
	c.Record(MetricFeasibleFraction, s.Generation, s.FeasibleFraction, now, nil)
	c.Record(MetricGenerationDuration, s.Generation, float64(s.Duration)/float64(time.Millisecond), now, nil)
	c.Record(MetricUnanswered, s.Generation, float64(s.Unanswered), now, nil)
	c.Record(MetricCacheHits, s.Generation, float64(s.CacheHits), now, nil)
	for name, v := range s.Best {
		c.Record(MetricBestObjective, s.Generation, v, now, ObjectiveLabels(name))
	}
}

// ObjectiveLabels creates a labels map for an objective
func ObjectiveLabels(objective string) map[string]string {
	return map[string]string{
		"objective": objective,
	}
}
