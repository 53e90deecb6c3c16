package improvement

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// scriptedSampler replays fixed draws
type scriptedSampler struct {
	ints   []int
	floats []float64
}

func (s *scriptedSampler) Intn(n int) int {
	v := s.ints[0]
	s.ints = s.ints[1:]
	return v % n
}

func (s *scriptedSampler) Float64() float64 {
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

func TestTournament(t *testing.T) {
	pop := []*Individual{
		testInd(0, []float64{1, 1}, 0),
		testInd(1, []float64{1, 1}, 0),
		testInd(2, []float64{1, 1}, 0),
	}
	pop[0].Rank, pop[0].Crowding = 1, 5
	pop[1].Rank, pop[1].Crowding = 0, 0.2
	pop[2].Rank, pop[2].Crowding = 0, 0.7

	tests := []struct {
		name  string
		draws []int
		k     int
		want  int
	}{
		{"Lower rank wins", []int{0, 1}, 2, 1},
		{"Larger crowding wins within rank", []int{1, 2}, 2, 2},
		{"First drawn keeps ties", []int{2, 2}, 2, 2},
		{"Size one returns the draw", []int{0}, 1, 0},
		{"Non-positive size behaves as one", []int{0}, 0, 0},
		{"Larger tournament", []int{0, 1, 2}, 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tournament(pop, tt.k, &scriptedSampler{ints: tt.draws})
			if got.seq != tt.want {
				t.Fatalf("expected winner %d, got %d", tt.want, got.seq)
			}
		})
	}
}

func TestTruncateFillsByCrowding(t *testing.T) {
	pool := []*Individual{
		testInd(0, nil, 0),
		testInd(1, nil, 0),
		testInd(2, nil, 0),
		testInd(3, nil, 0),
		testInd(4, nil, 0),
		testInd(5, nil, 0),
	}
	pool[2].Crowding = 0.5
	pool[3].Crowding = 2
	pool[4].Crowding = 0.5
	pool[5].Crowding = 0.1
	fronts := [][]int{{0, 1}, {2, 3, 4, 5}}

	next := truncate(pool, fronts, 4)
	got := make([]int, len(next))
	for i, ind := range next {
		got[i] = ind.seq
	}
	// 2 and 4 tie on crowding; the earlier one survives
	want := []int{0, 1, 3, 2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("survivors mismatch (-want +got):\n%s", diff)
	}
}

func TestTruncateExactSize(t *testing.T) {
	pool := make([]*Individual, 10)
	fronts := [][]int{{0, 1, 2}, {3, 4, 5}, {6, 7, 8, 9}}
	for i := range pool {
		pool[i] = testInd(i, nil, 0)
	}
	for _, size := range []int{1, 3, 6, 7, 10} {
		if got := truncate(pool, fronts, size); len(got) != size {
			t.Fatalf("expected %d survivors, got %d", size, len(got))
		}
	}
}

func TestTruncateIdenticalFallsBackToOrder(t *testing.T) {
	pool := []*Individual{
		testInd(0, []float64{2, 2}, 0),
		testInd(1, []float64{2, 2}, 0),
		testInd(2, []float64{2, 2}, 0),
		testInd(3, []float64{2, 2}, 0),
	}
	fronts := rankPopulation(pool, CrowdingObjective)
	next := truncate(pool, fronts, 2)
	if next[0].seq != 0 || next[1].seq != 1 {
		t.Fatalf("expected insertion order for identical designs, got %d and %d", next[0].seq, next[1].seq)
	}
}
