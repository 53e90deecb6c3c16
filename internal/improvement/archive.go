package improvement

import (
	"math"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
)

// Archive is the job's Pareto front: every feasible non-dominated design seen
// so far, deduplicated in design space and capped by crowding distance. It is
// owned by one optimizer and never written concurrently.
type Archive struct {
	space   *design.Space
	max     int
	epsilon float64
	metric  CrowdingMetric
	members []*Individual
}

// NewArchive creates an empty archive; max <= 0 means unbounded
func NewArchive(space *design.Space, max int, epsilon float64, metric CrowdingMetric) *Archive {
	return &Archive{
		space:   space,
		max:     max,
		epsilon: epsilon,
		metric:  metric,
	}
}

// Update merges candidates into the archive and returns how many were
// admitted. Infeasible candidates are ignored. A candidate is rejected when a
// member dominates it or lies within epsilon of it in design space; members
// it dominates are evicted.
func (a *Archive) Update(candidates []*Individual) int {
	added := 0
	for _, c := range candidates {
		if !c.Feasible() || a.rejects(c) {
			continue
		}
		kept := a.members[:0]
		for _, m := range a.members {
			if !dominates(c.cost, m.cost) {
				kept = append(kept, m)
			}
		}
		for i := len(kept); i < len(a.members); i++ {
			a.members[i] = nil
		}
		a.members = append(kept, c.snapshot())
		added++
	}
	a.prune()
	return added
}

func (a *Archive) rejects(c *Individual) bool {
	for _, m := range a.members {
		if dominates(m.cost, c.cost) {
			return true
		}
		if a.space.Distance(m.Vector, c.Vector) < a.epsilon {
			return true
		}
	}
	return false
}

// prune removes the most crowded member until the archive fits, recomputing
// crowding after each removal. Among equally crowded members the newest goes.
func (a *Archive) prune() {
	if a.max <= 0 {
		a.refreshCrowding()
		return
	}
	for len(a.members) > a.max {
		dist := crowding(a.members, a.metric)
		worst := -1
		for i, d := range dist {
			if worst < 0 || d < dist[worst] || (d == dist[worst] && a.members[i].seq > a.members[worst].seq) {
				worst = i
			}
		}
		a.members = append(a.members[:worst], a.members[worst+1:]...)
	}
	a.refreshCrowding()
}

func (a *Archive) refreshCrowding() {
	dist := crowding(a.members, a.metric)
	for i, m := range a.members {
		m.Rank = 0
		m.Crowding = dist[i]
	}
}

// Len returns the number of members
func (a *Archive) Len() int {
	return len(a.members)
}

// Members returns the members in admission order
func (a *Archive) Members() []*Individual {
	out := make([]*Individual, len(a.members))
	copy(out, a.members)
	return out
}

// Best returns the best raw value of each objective among members, or false
// when the archive is empty
func (a *Archive) Best(objs []Objective) ([]float64, bool) {
	if len(a.members) == 0 {
		return nil, false
	}
	return bestOf(a.members, objs), true
}

// bestOf returns the best raw value per objective across inds
func bestOf(inds []*Individual, objs []Objective) []float64 {
	best := make([]float64, len(objs))
	for k := range objs {
		b := math.Inf(1)
		for _, ind := range inds {
			b = math.Min(b, ind.cost[k])
		}
		best[k] = objs[k].cost(b) // cost is its own inverse
	}
	return best
}
