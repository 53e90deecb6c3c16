package improvement

import (
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/constraint"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
)

// Individual is one evaluated candidate design. Everything except Rank and
// Crowding is fixed once evaluation completes.
type Individual struct {
	Vector         design.Vector
	Objectives     []float64         // raw values, aligned with Problem.Objectives
	Intervals      []models.Interval // confidence band per objective
	Metrics        design.Params     // design, job parameters and surrogate outputs
	Violations     []constraint.Violation
	TotalViolation float64
	Anomalous      bool // a surrogate produced an unusable value
	Rank           int
	Crowding       float64

	cost []float64 // objectives in minimization form
	seq  int       // creation order, used for deterministic ties
}

// Feasible reports whether no constraint is violated
func (ind *Individual) Feasible() bool {
	return len(ind.Violations) == 0
}

// Seq returns the creation sequence number of the individual
func (ind *Individual) Seq() int {
	return ind.seq
}

// snapshot returns a copy with its own Rank and Crowding; the slices are
// shared since they never change after evaluation
func (ind *Individual) snapshot() *Individual {
	c := *ind
	return &c
}

// ConstraintStatus summarises the individual's feasibility
func (ind *Individual) ConstraintStatus() models.ConstraintStatus {
	return models.ConstraintStatus{
		Feasible:       ind.Feasible(),
		TotalViolation: ind.TotalViolation,
		Violations:     append([]constraint.Violation(nil), ind.Violations...),
	}
}

// Design converts the individual into its presentation form
func (ind *Individual) Design(space *design.Space, objs []Objective) models.ParetoDesign {
	d := models.ParetoDesign{
		DesignVector:     append([]float64(nil), ind.Vector...),
		Parameters:       space.Named(ind.Vector),
		Labels:           space.Labels(ind.Vector),
		Objectives:       make(map[string]float64, len(objs)),
		Confidence:       make(map[string]models.Interval, len(objs)),
		ConstraintStatus: ind.ConstraintStatus(),
	}
	for i, o := range objs {
		d.Objectives[o.Name] = ind.Objectives[i]
		if i < len(ind.Intervals) {
			d.Confidence[o.Name] = ind.Intervals[i]
		}
	}
	return d
}
