package reliability

import (
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
	"gonum.org/v1/gonum/stat/distuv"
)

// quantiler maps a probability in (0, 1) to a sample value
type quantiler interface {
	Quantile(p float64) float64
}

// constant is a zero-spread distribution
type constant float64

func (c constant) Quantile(float64) float64 { return float64(c) }

// Source is one uncertain parameter with its distribution around the nominal value
type Source struct {
	Parameter string
	Nominal   float64
	dist      quantiler
	spread    bool
}

// Draw maps a uniform variate u in (0, 1) to a parameter value by inverse CDF
func (s Source) Draw(u float64) float64 {
	return s.dist.Quantile(u)
}

// Varies reports whether the source has any spread
func (s Source) Varies() bool {
	return s.spread
}

// stdDev is the absolute standard deviation implied by a spec: StdDev when
// set, otherwise CoV times the nominal magnitude
func stdDev(spec config.UncertaintySpec, nominal float64) float64 {
	if spec.StdDev > 0 {
		return spec.StdDev
	}
	return spec.CoV * math.Abs(nominal)
}

// NewSource builds the distribution of one parameter. Lognormal and Weibull
// sources need a positive nominal and keep the nominal as their mean.
func NewSource(spec config.UncertaintySpec, nominal float64) (Source, error) {
	src := Source{Parameter: spec.Parameter, Nominal: nominal, dist: constant(nominal)}
	sd := stdDev(spec, nominal)

	switch spec.Distribution {
	case config.DistNormal:
		if sd > 0 {
			src.dist = distuv.Normal{Mu: nominal, Sigma: sd}
			src.spread = true
		}

	case config.DistLognormal:
		if nominal <= 0 {
			return Source{}, fmt.Errorf("%w: lognormal %s needs a positive nominal, got %g", ErrInvalidRequest, spec.Parameter, nominal)
		}
		if sd > 0 {
			cov := sd / nominal
			s2 := math.Log1p(cov * cov)
			src.dist = distuv.LogNormal{Mu: math.Log(nominal) - s2/2, Sigma: math.Sqrt(s2)}
			src.spread = true
		}

	case config.DistUniform:
		half := spec.HalfWidthPercent / 100 * math.Abs(nominal)
		if half == 0 {
			half = math.Sqrt(3) * sd
		}
		if half > 0 {
			src.dist = distuv.Uniform{Min: nominal - half, Max: nominal + half}
			src.spread = true
		}

	case config.DistWeibull:
		if nominal <= 0 {
			return Source{}, fmt.Errorf("%w: weibull %s needs a positive nominal, got %g", ErrInvalidRequest, spec.Parameter, nominal)
		}
		k := spec.Shape
		if k == 0 && sd > 0 {
			// common approximation of the shape from the coefficient of variation
			k = math.Pow(sd/nominal, -1.086)
		}
		if k > 0 {
			src.dist = distuv.Weibull{K: k, Lambda: nominal / math.Gamma(1+1/k)}
			src.spread = true
		}

	default:
		return Source{}, fmt.Errorf("%w: unknown distribution %q for %s", ErrInvalidRequest, spec.Distribution, spec.Parameter)
	}
	return src, nil
}
