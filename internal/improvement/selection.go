package improvement

import (
	"sort"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
)

// tournament picks k individuals uniformly with replacement and returns the
// winner under the crowded comparison. The first drawn wins ties.
func tournament(pop []*Individual, k int, rng design.Sampler) *Individual {
	if k < 1 {
		k = 1
	}
	best := pop[rng.Intn(len(pop))]
	for i := 1; i < k; i++ {
		c := pop[rng.Intn(len(pop))]
		if crowdedBetter(c, best) {
			best = c
		}
	}
	return best
}

// truncate selects exactly size individuals from a ranked pool. Whole fronts
// are taken in rank order while they fit; the front that overflows is cut by
// descending crowding distance, ties going to the earlier-created individual.
func truncate(pool []*Individual, fronts [][]int, size int) []*Individual {
	next := make([]*Individual, 0, size)
	for _, f := range fronts {
		if len(next) == size {
			break
		}
		if len(next)+len(f) <= size {
			for _, i := range f {
				next = append(next, pool[i])
			}
			continue
		}
		last := make([]*Individual, len(f))
		for k, i := range f {
			last[k] = pool[i]
		}
		sort.SliceStable(last, func(a, b int) bool {
			if last[a].Crowding != last[b].Crowding {
				return last[a].Crowding > last[b].Crowding
			}
			return last[a].seq < last[b].seq
		})
		next = append(next, last[:size-len(next)]...)
	}
	return next
}
