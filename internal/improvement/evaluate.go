package improvement

import (
	"context"
	"fmt"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/constraint"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/surrogate"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
)

// AnomalyMagnitude is the violation charged for each surrogate that produced
// an unusable value for a design
const AnomalyMagnitude = 1e6

// AnomalyConstraintPrefix prefixes the violation names of surrogate anomalies
const AnomalyConstraintPrefix = "surrogate:"

// evaluate scores vectors through the batch evaluator and builds individuals.
// The batch fans out in parallel inside the evaluator; building individuals
// happens here on the caller's goroutine.
func (o *Optimizer) evaluate(ctx context.Context, vectors []design.Vector) ([]*Individual, surrogate.BatchStats, error) {
	batch := make([]design.Params, len(vectors))
	for i, v := range vectors {
		batch[i] = design.Merge(o.problem.Parameters, o.problem.Space.Named(v))
	}

	evals, stats, err := o.eval.EvaluateBatch(ctx, batch)
	if err != nil {
		return nil, stats, fmt.Errorf("generation %d: %w", o.generation+1, err)
	}
	if len(evals) != len(vectors) {
		return nil, stats, fmt.Errorf("generation %d: evaluator returned %d results for %d designs", o.generation+1, len(evals), len(vectors))
	}
	o.evaluations += len(vectors)

	out := make([]*Individual, len(vectors))
	for i, v := range vectors {
		out[i] = o.newIndividual(v, batch[i], evals[i])
	}
	return out, stats, nil
}

func (o *Optimizer) newIndividual(v design.Vector, params design.Params, ev surrogate.Evaluation) *Individual {
	metrics := design.Merge(params, ev.Values())
	objs := o.problem.Objectives

	ind := &Individual{
		Vector:     v,
		Objectives: make([]float64, len(objs)),
		Intervals:  make([]models.Interval, len(objs)),
		Metrics:    metrics,
		Anomalous:  ev.Infeasible,
		cost:       make([]float64, len(objs)),
		seq:        o.seq,
	}
	o.seq++

	for k, obj := range objs {
		out, ok := ev.Outputs[obj.Name]
		if !ok || out.Anomalous() {
			w := obj.Worst()
			ind.Objectives[k] = w
			ind.Intervals[k] = models.Interval{Lower: w, Upper: w}
			ind.cost[k] = surrogate.WorstCaseValue
			continue
		}
		ind.Objectives[k] = out.Value
		ind.Intervals[k] = models.Interval{Lower: out.Lower, Upper: out.Upper}
		ind.cost[k] = obj.cost(out.Value)
	}

	violations := o.problem.Constraints.Evaluate(metrics)
	for _, name := range ev.Anomalies {
		violations = append(violations, constraint.Violation{
			Constraint: AnomalyConstraintPrefix + name,
			Metric:     name,
			Value:      surrogate.WorstCaseValue,
			Magnitude:  AnomalyMagnitude,
		})
	}
	for k, obj := range objs {
		if _, ok := ev.Outputs[obj.Name]; !ok {
			violations = append(violations, constraint.Violation{
				Constraint: AnomalyConstraintPrefix + obj.Name,
				Metric:     obj.Name,
				Value:      ind.Objectives[k],
				Magnitude:  AnomalyMagnitude,
			})
		}
	}
	ind.Violations = violations
	ind.TotalViolation = constraint.Total(violations)
	return ind
}
