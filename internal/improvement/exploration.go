package improvement

import (
	"math"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
)

// Variation produces offspring design vectors. Continuous genes use simulated
// binary crossover and polynomial mutation; discrete genes use uniform
// crossover and mutate to a different choice.
type Variation struct {
	space         *design.Space
	crossoverRate float64
	crossoverEta  float64
	mutationRate  float64
	mutationEta   float64
}

// NewVariation builds the operators from settings; a zero mutation rate
// becomes one gene per vector on average
func NewVariation(space *design.Space, s Settings) *Variation {
	pm := s.MutationRate
	if pm <= 0 {
		pm = 1 / float64(space.Len())
	}
	return &Variation{
		space:         space,
		crossoverRate: s.CrossoverRate,
		crossoverEta:  s.CrossoverEta,
		mutationRate:  pm,
		mutationEta:   s.MutationEta,
	}
}

// Crossover recombines two parents into two children. With probability
// 1-crossoverRate the children are copies of the parents.
func (v *Variation) Crossover(p1, p2 design.Vector, rng design.Sampler) (design.Vector, design.Vector) {
	c1, c2 := p1.Clone(), p2.Clone()
	if rng.Float64() >= v.crossoverRate {
		return c1, c2
	}
	for i := 0; i < v.space.Len(); i++ {
		g := v.space.Gene(i)
		switch g.Kind {
		case design.Continuous:
			if rng.Float64() < 0.5 {
				c1[i], c2[i] = sbx(p1[i], p2[i], g.Lower, g.Upper, v.crossoverEta, rng)
			}
		case design.Discrete:
			if rng.Float64() < 0.5 {
				c1[i], c2[i] = p2[i], p1[i]
			}
		}
	}
	return c1, c2
}

// Mutate perturbs each gene with probability mutationRate and returns the
// clamped result
func (v *Variation) Mutate(x design.Vector, rng design.Sampler) design.Vector {
	out := x.Clone()
	for i := 0; i < v.space.Len(); i++ {
		if rng.Float64() >= v.mutationRate {
			continue
		}
		g := v.space.Gene(i)
		switch g.Kind {
		case design.Continuous:
			out[i] = polynomialMutation(out[i], g.Lower, g.Upper, v.mutationEta, rng)
		case design.Discrete:
			out[i] = otherChoice(g, out[i], rng)
		}
	}
	return v.space.Clamp(out)
}

// sbx is bounded simulated binary crossover on one gene
func sbx(x1, x2, lower, upper, eta float64, rng design.Sampler) (float64, float64) {
	if math.Abs(x1-x2) < 1e-14 {
		return x1, x2
	}
	y1, y2 := math.Min(x1, x2), math.Max(x1, x2)
	u := rng.Float64()

	spread := func(beta float64) float64 {
		alpha := 2 - math.Pow(beta, -(eta+1))
		if u <= 1/alpha {
			return math.Pow(u*alpha, 1/(eta+1))
		}
		return math.Pow(1/(2-u*alpha), 1/(eta+1))
	}

	bq := spread(1 + 2*(y1-lower)/(y2-y1))
	c1 := 0.5 * ((y1 + y2) - bq*(y2-y1))
	bq = spread(1 + 2*(upper-y2)/(y2-y1))
	c2 := 0.5 * ((y1 + y2) + bq*(y2-y1))

	c1 = math.Min(math.Max(c1, lower), upper)
	c2 = math.Min(math.Max(c2, lower), upper)
	if rng.Float64() < 0.5 {
		return c2, c1
	}
	return c1, c2
}

// polynomialMutation is the bounded polynomial mutation of one gene
func polynomialMutation(y, lower, upper, eta float64, rng design.Sampler) float64 {
	span := upper - lower
	if span <= 0 {
		return y
	}
	d1 := (y - lower) / span
	d2 := (upper - y) / span
	u := rng.Float64()
	pow := 1 / (eta + 1)

	var dq float64
	if u < 0.5 {
		val := 2*u + (1-2*u)*math.Pow(1-d1, eta+1)
		dq = math.Pow(val, pow) - 1
	} else {
		val := 2*(1-u) + 2*(u-0.5)*math.Pow(1-d2, eta+1)
		dq = 1 - math.Pow(val, pow)
	}
	return math.Min(math.Max(y+dq*span, lower), upper)
}

// otherChoice picks a choice different from current, uniformly
func otherChoice(g design.Gene, current float64, rng design.Sampler) float64 {
	n := len(g.Choices)
	if n < 2 {
		return current
	}
	at := g.ChoiceIndex(current)
	if at < 0 {
		return g.Choices[rng.Intn(n)]
	}
	k := rng.Intn(n - 1)
	if k >= at {
		k++
	}
	return g.Choices[k]
}
