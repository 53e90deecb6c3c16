package reliability

import (
	"errors"
	"math"
	"testing"

	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/utils"
	"gonum.org/v1/gonum/stat"
)

func drawMany(src Source, n int, seed int64) []float64 {
	rng := utils.NewRandSource(seed)
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = src.Draw(rng.OpenFloat64())
	}
	return xs
}

func TestSourceMoments(t *testing.T) {
	tests := []struct {
		name    string
		spec    config.UncertaintySpec
		nominal float64
		wantSD  float64
	}{
		{"Normal CoV", config.UncertaintySpec{Distribution: config.DistNormal, CoV: 0.1}, 200, 20},
		{"Normal std dev", config.UncertaintySpec{Distribution: config.DistNormal, StdDev: 3, CoV: 0.5}, 50, 3},
		{"Lognormal", config.UncertaintySpec{Distribution: config.DistLognormal, CoV: 0.2}, 4900, 980},
		{"Uniform from std dev", config.UncertaintySpec{Distribution: config.DistUniform, StdDev: 2}, 10, 2},
		{"Weibull from CoV", config.UncertaintySpec{Distribution: config.DistWeibull, CoV: 0.1}, 4900, 490},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.spec.Parameter = "p"
			src, err := NewSource(tt.spec, tt.nominal)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !src.Varies() {
				t.Fatalf("expected source to vary")
			}
			mean, sd := stat.MeanStdDev(drawMany(src, 50000, 3), nil)
			if math.Abs(mean-tt.nominal)/tt.nominal > 0.01 {
				t.Fatalf("expected mean near %g, got %g", tt.nominal, mean)
			}
			if math.Abs(sd-tt.wantSD)/tt.wantSD > 0.05 {
				t.Fatalf("expected std dev near %g, got %g", tt.wantSD, sd)
			}
		})
	}
}

func TestUniformHalfWidth(t *testing.T) {
	src, err := NewSource(config.UncertaintySpec{Parameter: "p", Distribution: config.DistUniform, HalfWidthPercent: 5}, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, x := range drawMany(src, 5000, 1) {
		if x < 95 || x > 105 {
			t.Fatalf("draw %g outside the 5%% band", x)
		}
	}
}

func TestWeibullExplicitShape(t *testing.T) {
	src, err := NewSource(config.UncertaintySpec{Parameter: "p", Distribution: config.DistWeibull, Shape: 2}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mean := stat.Mean(drawMany(src, 50000, 5), nil)
	if math.Abs(mean-10) > 0.1 {
		t.Fatalf("expected weibull mean near 10, got %g", mean)
	}
}

func TestZeroSpreadSources(t *testing.T) {
	for _, dist := range []string{config.DistNormal, config.DistLognormal, config.DistUniform, config.DistWeibull} {
		src, err := NewSource(config.UncertaintySpec{Parameter: "p", Distribution: dist}, 7)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", dist, err)
		}
		if src.Varies() {
			t.Fatalf("%s: expected no spread", dist)
		}
		for _, u := range []float64{1e-9, 0.5, 1 - 1e-9} {
			if got := src.Draw(u); got != 7 {
				t.Fatalf("%s: expected nominal 7, got %g", dist, got)
			}
		}
	}
}

func TestSourceRejectsNonPositiveNominal(t *testing.T) {
	for _, dist := range []string{config.DistLognormal, config.DistWeibull} {
		_, err := NewSource(config.UncertaintySpec{Parameter: "p", Distribution: dist, CoV: 0.1}, -1)
		if !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%s: expected ErrInvalidRequest, got %v", dist, err)
		}
	}
	_, err := NewSource(config.UncertaintySpec{Parameter: "p", Distribution: "gumbel"}, 1)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for unknown distribution, got %v", err)
	}
}
