package improvement

// dominates reports Pareto dominance on minimization costs: a is no worse
// than b everywhere and strictly better somewhere
func dominates(a, b []float64) bool {
	better := false
	for i := range a {
		if a[i] > b[i] {
			return false
		}
		if a[i] < b[i] {
			better = true
		}
	}
	return better
}

// Dominates applies constraint-domination: a feasible individual beats an
// infeasible one, two infeasible individuals compare by total violation, and
// two feasible individuals compare by Pareto dominance.
func Dominates(a, b *Individual) bool {
	af, bf := a.Feasible(), b.Feasible()
	switch {
	case af && !bf:
		return true
	case !af && bf:
		return false
	case !af && !bf:
		return a.TotalViolation < b.TotalViolation
	}
	return dominates(a.cost, b.cost)
}

// crowdedBetter is the crowded-comparison operator: lower rank wins, then
// larger crowding distance
func crowdedBetter(a, b *Individual) bool {
	if a.Rank != b.Rank {
		return a.Rank < b.Rank
	}
	return a.Crowding > b.Crowding
}
