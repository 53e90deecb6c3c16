package constraint

import (
	"errors"
	"math"
	"testing"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
	"github.com/google/go-cmp/cmp"
)

func TestConstraintCheck(t *testing.T) {
	tests := []struct {
		name      string
		c         Constraint
		values    design.Params
		violated  bool
		magnitude float64
	}{
		{
			name:     "At least satisfied",
			c:        Constraint{Name: "c", Metric: "m", Op: GreaterEqual, Threshold: 10},
			values:   design.Params{"m": 10},
			violated: false,
		},
		{
			name:      "At least violated relative",
			c:         Constraint{Name: "c", Metric: "m", Op: GreaterEqual, Threshold: 10},
			values:    design.Params{"m": 8},
			violated:  true,
			magnitude: 0.2,
		},
		{
			name:      "Strictly greater at threshold",
			c:         Constraint{Name: "c", Metric: "m", Op: Greater, Threshold: 10},
			values:    design.Params{"m": 10},
			violated:  true,
			magnitude: 0,
		},
		{
			name:      "At most violated",
			c:         Constraint{Name: "c", Metric: "m", Op: LessEqual, Threshold: 40},
			values:    design.Params{"m": 50},
			violated:  true,
			magnitude: 0.25,
		},
		{
			name:      "Zero threshold is absolute",
			c:         Constraint{Name: "c", Metric: "m", Op: Less, Threshold: 0},
			values:    design.Params{"m": 3},
			violated:  true,
			magnitude: 3,
		},
		{
			name:      "Factor times ref",
			c:         Constraint{Name: "burst", Metric: "burst", Op: GreaterEqual, Ref: "p", Factor: 2.25},
			values:    design.Params{"burst": 135, "p": 70},
			violated:  true,
			magnitude: (157.5 - 135) / 157.5,
		},
		{
			name:     "Ref without factor is one",
			c:        Constraint{Name: "c", Metric: "a", Op: LessEqual, Ref: "b"},
			values:   design.Params{"a": 3, "b": 3},
			violated: false,
		},
		{
			name:     "Membership satisfied",
			c:        Constraint{Name: "mode", Metric: "mode", Op: In, Allowed: []float64{0, 2}},
			values:   design.Params{"mode": 2},
			violated: false,
		},
		{
			name:      "Membership violated",
			c:         Constraint{Name: "mode", Metric: "mode", Op: In, Allowed: []float64{0, 2}},
			values:    design.Params{"mode": 1},
			violated:  true,
			magnitude: 1,
		},
		{
			name:      "Missing metric",
			c:         Constraint{Name: "c", Metric: "m", Op: LessEqual, Threshold: 1},
			values:    design.Params{},
			violated:  true,
			magnitude: MissingMagnitude,
		},
		{
			name:      "Missing ref",
			c:         Constraint{Name: "c", Metric: "m", Op: LessEqual, Ref: "r"},
			values:    design.Params{"m": 1},
			violated:  true,
			magnitude: MissingMagnitude,
		},
		{
			name:      "NaN metric",
			c:         Constraint{Name: "c", Metric: "m", Op: LessEqual, Threshold: 1},
			values:    design.Params{"m": math.NaN()},
			violated:  true,
			magnitude: MissingMagnitude,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, violated := tt.c.Check(tt.values)
			if violated != tt.violated {
				t.Fatalf("expected violated=%v, got %v (%+v)", tt.violated, violated, v)
			}
			if !violated {
				return
			}
			if math.Abs(v.Magnitude-tt.magnitude) > 1e-12 {
				t.Fatalf("expected magnitude %g, got %g", tt.magnitude, v.Magnitude)
			}
			if v.Constraint != tt.c.Name || v.Metric != tt.c.Metric {
				t.Fatalf("expected violation to name %s/%s, got %+v", tt.c.Name, tt.c.Metric, v)
			}
		})
	}
}

func TestNewSetValidation(t *testing.T) {
	tests := []struct {
		name string
		cs   []Constraint
		want error
	}{
		{"Empty name", []Constraint{{Metric: "m", Op: Less}}, ErrInvalidConstraint},
		{"Empty metric", []Constraint{{Name: "c", Op: Less}}, ErrInvalidConstraint},
		{"Unknown op", []Constraint{{Name: "c", Metric: "m", Op: "=="}}, ErrInvalidConstraint},
		{"Empty allowed", []Constraint{{Name: "c", Metric: "m", Op: In}}, ErrInvalidConstraint},
		{"Factor without ref", []Constraint{{Name: "c", Metric: "m", Op: Less, Factor: 2}}, ErrInvalidConstraint},
		{"Duplicate", []Constraint{
			{Name: "c", Metric: "m", Op: Less},
			{Name: "c", Metric: "n", Op: Less},
		}, ErrDuplicateName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSet("s", tt.cs); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func vesselSet(t *testing.T) *Set {
	t.Helper()
	set, err := FromSpecs("vessel", []config.ConstraintSpec{
		{Name: "burst_ratio", Metric: "burst", Op: ">=", Ref: "p", Factor: 2.25},
		{Name: "cycles", Metric: "cycles", Op: ">=", Threshold: 11000, Primary: true},
		{Name: "mode", Metric: "mode", Op: "in", Allowed: []float64{0}},
	})
	if err != nil {
		t.Fatalf("FromSpecs returned error: %v", err)
	}
	return set
}

func TestSetEvaluate(t *testing.T) {
	set := vesselSet(t)

	feasible := design.Params{"burst": 160, "p": 70, "cycles": 20000, "mode": 0}
	if vs := set.Evaluate(feasible); len(vs) != 0 {
		t.Fatalf("expected feasible design, got %+v", vs)
	}

	bad := design.Params{"burst": 140, "p": 70, "cycles": 5500, "mode": 1}
	got := set.Evaluate(bad)
	want := []Violation{
		{Constraint: "burst_ratio", Metric: "burst", Value: 140, Threshold: 157.5, Magnitude: 17.5 / 157.5},
		{Constraint: "cycles", Metric: "cycles", Value: 5500, Threshold: 11000, Magnitude: 0.5},
		{Constraint: "mode", Metric: "mode", Value: 1, Magnitude: 1},
	}
	approx := cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) < 1e-12 })
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Fatalf("violations mismatch (-want +got):\n%s", diff)
	}

	status := set.Status(bad)
	if status.Feasible {
		t.Fatalf("expected infeasible status")
	}
	if math.Abs(status.TotalViolation-(17.5/157.5+1.5)) > 1e-12 {
		t.Fatalf("unexpected total violation %g", status.TotalViolation)
	}

	// Evaluate is pure
	again := set.Evaluate(bad)
	if diff := cmp.Diff(got, again, approx); diff != "" {
		t.Fatalf("expected deterministic evaluation:\n%s", diff)
	}
}

func TestSetPrimaryAndMetrics(t *testing.T) {
	set := vesselSet(t)
	p, ok := set.Primary()
	if !ok || p.Name != "cycles" {
		t.Fatalf("expected flagged primary cycles, got %+v", p)
	}

	unflagged, _ := NewSet("u", []Constraint{
		{Name: "first", Metric: "a", Op: Less, Threshold: 1},
		{Name: "second", Metric: "b", Op: Less, Threshold: 1},
	})
	if p, _ := unflagged.Primary(); p.Name != "first" {
		t.Fatalf("expected first constraint as primary fallback, got %s", p.Name)
	}

	empty, _ := NewSet("empty", nil)
	if _, ok := empty.Primary(); ok {
		t.Fatalf("expected no primary in an empty set")
	}
	if vs := empty.Evaluate(design.Params{}); len(vs) != 0 {
		t.Fatalf("expected empty set to accept everything")
	}

	if diff := cmp.Diff([]string{"burst", "cycles", "mode", "p"}, set.Metrics()); diff != "" {
		t.Fatalf("metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestSetMerge(t *testing.T) {
	set := vesselSet(t)
	extra, _ := NewSet("extra", []Constraint{{Name: "mass", Metric: "mass", Op: LessEqual, Threshold: 100}})

	merged, err := set.Merge("job", extra)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	if merged.Len() != 4 || merged.Name() != "job" {
		t.Fatalf("expected 4 constraints in job set, got %d", merged.Len())
	}
	if set.Len() != 3 {
		t.Fatalf("expected original set to be unchanged")
	}

	clash, _ := NewSet("clash", []Constraint{{Name: "cycles", Metric: "x", Op: Less}})
	if _, err := set.Merge("job", clash); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected duplicate name error, got %v", err)
	}
}

func TestSetCopiesAllowed(t *testing.T) {
	allowed := []float64{0}
	set, _ := NewSet("s", []Constraint{{Name: "mode", Metric: "mode", Op: In, Allowed: allowed}})
	allowed[0] = 5
	if vs := set.Evaluate(design.Params{"mode": 0}); len(vs) != 0 {
		t.Fatalf("expected set to be unaffected by caller mutation")
	}
}
