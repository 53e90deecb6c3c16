package design

import (
	"errors"
	"math"
	"testing"

	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/utils"
)

func testSpace(t *testing.T) *Space {
	t.Helper()
	s, err := NewSpace([]Gene{
		{Name: "radius", Kind: Continuous, Lower: 100, Upper: 300},
		{Name: "angle", Kind: Continuous, Lower: 10, Upper: 80},
		{Name: "fiber", Kind: Discrete, Choices: []float64{0, 1, 2}, Labels: []string{"T700", "T800", "M40J"}},
	})
	if err != nil {
		t.Fatalf("NewSpace returned error: %v", err)
	}
	return s
}

func TestNewSpaceValidation(t *testing.T) {
	tests := []struct {
		name  string
		genes []Gene
	}{
		{"empty", nil},
		{"unnamed", []Gene{{Kind: Continuous, Lower: 0, Upper: 1}}},
		{"inverted bounds", []Gene{{Name: "x", Kind: Continuous, Lower: 1, Upper: 1}}},
		{"infinite bound", []Gene{{Name: "x", Kind: Continuous, Lower: 0, Upper: math.Inf(1)}}},
		{"empty choices", []Gene{{Name: "x", Kind: Discrete}}},
		{"duplicate choice", []Gene{{Name: "x", Kind: Discrete, Choices: []float64{1, 1}}}},
		{"label mismatch", []Gene{{Name: "x", Kind: Discrete, Choices: []float64{1, 2}, Labels: []string{"a"}}}},
		{"duplicate gene", []Gene{
			{Name: "x", Kind: Continuous, Lower: 0, Upper: 1},
			{Name: "x", Kind: Continuous, Lower: 0, Upper: 1},
		}},
		{"unknown kind", []Gene{{Name: "x", Kind: "integer", Lower: 0, Upper: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSpace(tt.genes); err == nil {
				t.Fatalf("expected error for %s", tt.name)
			}
		})
	}
}

func TestNewSpaceCopiesChoices(t *testing.T) {
	choices := []float64{1, 2, 3}
	s, err := NewSpace([]Gene{{Name: "layers", Kind: Discrete, Choices: choices}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	choices[0] = 99
	if s.Gene(0).Choices[0] != 1 {
		t.Fatalf("expected choice set to be immutable after construction")
	}
	if s.Gene(0).Lower != 1 || s.Gene(0).Upper != 3 {
		t.Fatalf("expected discrete bounds [1,3], got [%g,%g]", s.Gene(0).Lower, s.Gene(0).Upper)
	}
}

func TestNewVectorRejectsMalformed(t *testing.T) {
	s := testSpace(t)

	if _, err := s.NewVector([]float64{150, 45}); !errors.Is(err, ErrVectorLength) {
		t.Fatalf("expected ErrVectorLength, got %v", err)
	}
	if _, err := s.NewVector([]float64{150, 45, 5}); !errors.Is(err, ErrInvalidChoice) {
		t.Fatalf("expected ErrInvalidChoice, got %v", err)
	}
	if _, err := s.NewVector([]float64{50, 45, 1}); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	if _, err := s.NewVector([]float64{math.NaN(), 45, 1}); !errors.Is(err, ErrNonFiniteValue) {
		t.Fatalf("expected ErrNonFiniteValue, got %v", err)
	}
	v, err := s.NewVector([]float64{150, 45, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != 3 {
		t.Fatalf("expected 3 genes, got %d", len(v))
	}
}

func TestSampleRandomStaysInSpace(t *testing.T) {
	s := testSpace(t)
	rng := utils.NewRandSource(7)

	seen := map[float64]bool{}
	for i := 0; i < 500; i++ {
		v := s.SampleRandom(rng)
		if _, err := s.NewVector(v); err != nil {
			t.Fatalf("sample %d outside space: %v", i, err)
		}
		seen[v[2]] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected all discrete choices to be sampled, got %v", seen)
	}
}

func TestClamp(t *testing.T) {
	s := testSpace(t)

	got := s.Clamp(Vector{-5, 500, 1.6})
	want := Vector{100, 80, 2}
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	got = s.Clamp(Vector{math.NaN(), 45, math.NaN()})
	if got[0] != 200 {
		t.Fatalf("expected NaN continuous value to clamp to midpoint, got %g", got[0])
	}
	if got[2] != 0 {
		t.Fatalf("expected NaN discrete value to snap to first choice, got %g", got[2])
	}
}

func TestDistance(t *testing.T) {
	s := testSpace(t)

	a := Vector{100, 10, 0}
	if d := s.Distance(a, a); d != 0 {
		t.Fatalf("expected zero self-distance, got %g", d)
	}

	b := Vector{300, 80, 2}
	if d := s.Distance(a, b); math.Abs(d-1) > 1e-12 {
		t.Fatalf("expected opposite corners to be at distance 1, got %g", d)
	}

	c := Vector{200, 10, 0}
	want := math.Sqrt(0.25 / 3)
	if d := s.Distance(a, c); math.Abs(d-want) > 1e-12 {
		t.Fatalf("expected %g, got %g", want, d)
	}
}

func TestNamedRoundTrip(t *testing.T) {
	s := testSpace(t)
	v := Vector{180, 55, 2}

	p := s.Named(v)
	if p["radius"] != 180 || p["angle"] != 55 || p["fiber"] != 2 {
		t.Fatalf("unexpected named params: %v", p)
	}
	back, err := s.FromNamed(p)
	if err != nil {
		t.Fatalf("FromNamed returned error: %v", err)
	}
	if !back.Equal(v) {
		t.Fatalf("expected %v, got %v", v, back)
	}

	labels := s.Labels(v)
	if labels["fiber"] != "M40J" {
		t.Fatalf("expected fiber label M40J, got %q", labels["fiber"])
	}

	p["extra"] = 1
	if _, err := s.FromNamed(p); !errors.Is(err, ErrUnknownGene) {
		t.Fatalf("expected ErrUnknownGene, got %v", err)
	}
	delete(p, "extra")
	delete(p, "angle")
	if _, err := s.FromNamed(p); !errors.Is(err, ErrMissingGene) {
		t.Fatalf("expected ErrMissingGene, got %v", err)
	}
}

func TestMerge(t *testing.T) {
	base := Params{"a": 1, "b": 2}
	over := Params{"b": 3, "c": 4}
	got := Merge(base, over)
	if got["a"] != 1 || got["b"] != 3 || got["c"] != 4 {
		t.Fatalf("unexpected merge result: %v", got)
	}
	if base["b"] != 2 {
		t.Fatalf("expected base to be untouched")
	}
}
