package improvement

import (
	"math"
	"sort"
)

// CrowdingMetric selects the space crowding distance is measured in
type CrowdingMetric string

const (
	// CrowdingObjective measures gaps between neighbours in objective space
	CrowdingObjective CrowdingMetric = "objective"
	// CrowdingDecision measures gaps between neighbours in design space
	CrowdingDecision CrowdingMetric = "decision"
)

// NonDominatedSort ranks pop with the fast non-dominated sort under
// constraint-domination. It sets Rank on every individual and returns the
// fronts as index lists in ascending index order.
func NonDominatedSort(pop []*Individual) [][]int {
	n := len(pop)
	if n == 0 {
		return nil
	}
	dominatedBy := make([][]int, n) // indices each individual dominates
	counts := make([]int, n)        // how many individuals dominate each one

	for p := 0; p < n; p++ {
		for q := p + 1; q < n; q++ {
			switch {
			case Dominates(pop[p], pop[q]):
				dominatedBy[p] = append(dominatedBy[p], q)
				counts[q]++
			case Dominates(pop[q], pop[p]):
				dominatedBy[q] = append(dominatedBy[q], p)
				counts[p]++
			}
		}
	}

	var fronts [][]int
	current := make([]int, 0)
	for i := 0; i < n; i++ {
		if counts[i] == 0 {
			pop[i].Rank = 0
			current = append(current, i)
		}
	}

	rank := 0
	for len(current) > 0 {
		fronts = append(fronts, current)
		next := make([]int, 0)
		for _, p := range current {
			for _, q := range dominatedBy[p] {
				counts[q]--
				if counts[q] == 0 {
					pop[q].Rank = rank + 1
					next = append(next, q)
				}
			}
		}
		sort.Ints(next)
		current = next
		rank++
	}
	return fronts
}

// crowdingDistances computes the crowding distance of n points with the given
// number of dimensions. Per dimension the points are sorted by value, the two
// extremes get +Inf and interior points accumulate the normalized gap between
// their neighbours. A dimension with no spread contributes nothing, so fully
// identical points all get 0. A single point gets +Inf.
func crowdingDistances(n, dims int, value func(i, d int) float64) []float64 {
	dist := make([]float64, n)
	if n == 0 {
		return dist
	}
	if n == 1 {
		dist[0] = math.Inf(1)
		return dist
	}

	idx := make([]int, n)
	for d := 0; d < dims; d++ {
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return value(idx[a], d) < value(idx[b], d)
		})
		lo, hi := value(idx[0], d), value(idx[n-1], d)
		span := hi - lo
		if span <= 0 || math.IsNaN(span) || math.IsInf(span, 0) {
			continue
		}
		dist[idx[0]] = math.Inf(1)
		dist[idx[n-1]] = math.Inf(1)
		for k := 1; k < n-1; k++ {
			i := idx[k]
			if math.IsInf(dist[i], 1) {
				continue
			}
			dist[i] += (value(idx[k+1], d) - value(idx[k-1], d)) / span
		}
	}
	return dist
}

// assignCrowding sets Crowding on the members of one front
func assignCrowding(pop []*Individual, front []int, metric CrowdingMetric) {
	if len(front) == 0 {
		return
	}
	members := make([]*Individual, len(front))
	for k, i := range front {
		members[k] = pop[i]
	}
	dist := crowding(members, metric)
	for k, m := range members {
		m.Crowding = dist[k]
	}
}

// crowding returns the crowding distances of members under metric
func crowding(members []*Individual, metric CrowdingMetric) []float64 {
	if len(members) == 0 {
		return nil
	}
	if metric == CrowdingDecision {
		return crowdingDistances(len(members), len(members[0].Vector), func(i, d int) float64 {
			return members[i].Vector[d]
		})
	}
	return crowdingDistances(len(members), len(members[0].cost), func(i, d int) float64 {
		return members[i].cost[d]
	})
}

// rankPopulation sorts pop into fronts and assigns crowding within each
func rankPopulation(pop []*Individual, metric CrowdingMetric) [][]int {
	fronts := NonDominatedSort(pop)
	for _, f := range fronts {
		assignCrowding(pop, f, metric)
	}
	return fronts
}
