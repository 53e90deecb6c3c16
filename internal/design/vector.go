package design

import (
	"fmt"
	"math"
)

// Vector holds one value per gene, aligned with the space order.
// Discrete genes hold the chosen value itself, not its index.
type Vector []float64

// Params is the named form of a design, as consumed by surrogates and constraints
type Params map[string]float64

// Sampler is the random source used by sampling and variation
type Sampler interface {
	Float64() float64
	Intn(n int) int
}

// Clone returns an independent copy of v
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Equal reports whether both vectors hold identical values
func (v Vector) Equal(o Vector) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

// NewVector validates values against the space. Wrong length, non-finite values,
// out-of-bounds continuous values and non-member discrete values are rejected.
func (s *Space) NewVector(values []float64) (Vector, error) {
	if len(values) != len(s.genes) {
		return nil, fmt.Errorf("%w: got %d values for %d genes", ErrVectorLength, len(values), len(s.genes))
	}
	v := make(Vector, len(values))
	for i, g := range s.genes {
		x := values[i]
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: %s", ErrNonFiniteValue, g.Name)
		}
		switch g.Kind {
		case Continuous:
			if x < g.Lower || x > g.Upper {
				return nil, fmt.Errorf("%w: %s=%g not in [%g, %g]", ErrOutOfBounds, g.Name, x, g.Lower, g.Upper)
			}
		case Discrete:
			if g.ChoiceIndex(x) < 0 {
				return nil, fmt.Errorf("%w: %s=%g", ErrInvalidChoice, g.Name, x)
			}
		}
		v[i] = x
	}
	return v, nil
}

// SampleRandom draws a vector uniformly over continuous bounds and uniformly
// over discrete choice sets.
func (s *Space) SampleRandom(rng Sampler) Vector {
	v := make(Vector, len(s.genes))
	for i, g := range s.genes {
		switch g.Kind {
		case Continuous:
			v[i] = g.Lower + rng.Float64()*(g.Upper-g.Lower)
		case Discrete:
			v[i] = g.Choices[rng.Intn(len(g.Choices))]
		}
	}
	return v
}

// Clamp projects v back into the space: continuous values are clipped to their
// bounds and discrete values snap to the nearest choice. NaN continuous values
// fall back to the midpoint. Clamp never fails; it panics only when v has the
// wrong length, which is a programming error.
func (s *Space) Clamp(v Vector) Vector {
	if len(v) != len(s.genes) {
		panic(fmt.Sprintf("design: clamp of %d-vector in %d-gene space", len(v), len(s.genes)))
	}
	out := make(Vector, len(v))
	for i, g := range s.genes {
		x := v[i]
		switch g.Kind {
		case Continuous:
			switch {
			case math.IsNaN(x):
				x = g.Lower + (g.Upper-g.Lower)/2
			case x < g.Lower:
				x = g.Lower
			case x > g.Upper:
				x = g.Upper
			}
		case Discrete:
			x = nearestChoice(g.Choices, x)
		}
		out[i] = x
	}
	return out
}

// Distance is the normalized Euclidean distance between a and b. Continuous
// genes are scaled by their range and discrete genes contribute 0 when equal
// and 1 otherwise; the sum is divided by the gene count so the result lies in [0, 1].
func (s *Space) Distance(a, b Vector) float64 {
	if len(a) != len(s.genes) || len(b) != len(s.genes) {
		panic(fmt.Sprintf("design: distance between %d- and %d-vectors in %d-gene space", len(a), len(b), len(s.genes)))
	}
	sum := 0.0
	for i, g := range s.genes {
		var d float64
		switch g.Kind {
		case Continuous:
			d = (a[i] - b[i]) / (g.Upper - g.Lower)
		case Discrete:
			if a[i] != b[i] {
				d = 1
			}
		}
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(s.genes)))
}

// Named converts v into named parameters
func (s *Space) Named(v Vector) Params {
	p := make(Params, len(s.genes))
	for i, g := range s.genes {
		p[g.Name] = v[i]
	}
	return p
}

// Labels returns the labels of discrete genes that define them
func (s *Space) Labels(v Vector) map[string]string {
	var out map[string]string
	for i, g := range s.genes {
		if g.Kind != Discrete || len(g.Labels) == 0 {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[g.Name] = g.Label(v[i])
	}
	return out
}

// FromNamed builds a validated vector from named parameters. Extra names are rejected.
func (s *Space) FromNamed(p Params) (Vector, error) {
	values := make([]float64, len(s.genes))
	for i, g := range s.genes {
		x, ok := p[g.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingGene, g.Name)
		}
		values[i] = x
	}
	if len(p) != len(s.genes) {
		for name := range p {
			if _, ok := s.index[name]; !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownGene, name)
			}
		}
	}
	return s.NewVector(values)
}

// Merge returns a new parameter set holding base overlaid with over
func Merge(base, over Params) Params {
	out := make(Params, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

func nearestChoice(choices []float64, x float64) float64 {
	if math.IsNaN(x) {
		return choices[0]
	}
	best := choices[0]
	bestDist := math.Abs(x - best)
	for _, c := range choices[1:] {
		if d := math.Abs(x - c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
