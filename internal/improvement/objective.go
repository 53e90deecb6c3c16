package improvement

import (
	"fmt"
	"sort"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/surrogate"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
)

// Direction says whether an objective is minimized or maximized
type Direction string

const (
	Minimize Direction = "minimize"
	Maximize Direction = "maximize"
)

// Objective is one optimization target, read from the surrogate output of the
// same name. Priority only orders results for presentation; lower comes first.
type Objective struct {
	Name      string
	Direction Direction
	Priority  int
}

// cost converts a raw value to minimization form
func (o Objective) cost(v float64) float64 {
	if o.Direction == Maximize {
		return -v
	}
	return v
}

// Worst returns the raw value substituted for an unusable surrogate output
func (o Objective) Worst() float64 {
	if o.Direction == Maximize {
		return -surrogate.WorstCaseValue
	}
	return surrogate.WorstCaseValue
}

// Better reports whether raw value a beats raw value b
func (o Objective) Better(a, b float64) bool {
	return o.cost(a) < o.cost(b)
}

// ObjectivesFromSpec builds objectives from a job spec. A zero priority list
// keeps declaration order.
func ObjectivesFromSpec(specs []config.ObjectiveSpec, priorities []int) ([]Objective, error) {
	out := make([]Objective, len(specs))
	for i, s := range specs {
		dir := Minimize
		if s.Maximized() {
			dir = Maximize
		}
		out[i] = Objective{Name: s.Name, Direction: dir, Priority: i}
		if len(priorities) > 0 {
			if len(priorities) != len(specs) {
				return nil, fmt.Errorf("%w: %d priorities for %d objectives", ErrInvalidProblem, len(priorities), len(specs))
			}
			out[i].Priority = priorities[i]
		}
	}
	return out, nil
}

// PriorityOrder returns objective indices sorted by priority; ties keep
// declaration order
func PriorityOrder(objs []Objective) []int {
	order := make([]int, len(objs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return objs[order[a]].Priority < objs[order[b]].Priority
	})
	return order
}

// SortByPriority orders individuals lexicographically by objective, taking
// objectives in priority order. Equal designs keep their relative order.
func SortByPriority(inds []*Individual, objs []Objective) {
	order := PriorityOrder(objs)
	sort.SliceStable(inds, func(i, j int) bool {
		for _, m := range order {
			a, b := inds[i].cost[m], inds[j].cost[m]
			if a != b {
				return a < b
			}
		}
		return false
	})
}
