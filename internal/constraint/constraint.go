package constraint

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
)

var (
	ErrInvalidConstraint = errors.New("invalid constraint")
	ErrDuplicateName     = errors.New("duplicate constraint name")
)

// Op is a comparison operator
type Op string

const (
	GreaterEqual Op = ">="
	LessEqual    Op = "<="
	Greater      Op = ">"
	Less         Op = "<"
	In           Op = "in"
)

// MissingMagnitude is the violation magnitude charged when a constraint's
// metric or reference has no value
const MissingMagnitude = 1e6

// membershipTolerance is the absolute tolerance for "in" comparisons
const membershipTolerance = 1e-9

// Constraint is one compliance rule: Metric Op Threshold, Metric Op Factor*Ref,
// or Metric in Allowed.
type Constraint struct {
	Name        string
	Metric      string
	Op          Op
	Threshold   float64
	Ref         string
	Factor      float64
	Allowed     []float64
	Primary     bool
	Description string
}

// Violation is a constraint that does not hold for a value set. Value and
// Threshold are zero when unknown.
type Violation = models.Violation

func (c Constraint) validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidConstraint)
	}
	if c.Metric == "" {
		return fmt.Errorf("%w: %s has no metric", ErrInvalidConstraint, c.Name)
	}
	switch c.Op {
	case GreaterEqual, LessEqual, Greater, Less:
		if len(c.Allowed) > 0 {
			return fmt.Errorf("%w: %s allowed set only applies to 'in'", ErrInvalidConstraint, c.Name)
		}
		if c.Factor != 0 && c.Ref == "" {
			return fmt.Errorf("%w: %s factor needs a ref", ErrInvalidConstraint, c.Name)
		}
	case In:
		if len(c.Allowed) == 0 {
			return fmt.Errorf("%w: %s has an empty allowed set", ErrInvalidConstraint, c.Name)
		}
	default:
		return fmt.Errorf("%w: %s has unknown operator %q", ErrInvalidConstraint, c.Name, c.Op)
	}
	return nil
}

// Bound returns the effective threshold: Factor*values[Ref] when a reference
// is set (factor defaults to 1), otherwise Threshold.
func (c Constraint) Bound(values design.Params) (float64, bool) {
	if c.Ref == "" {
		return c.Threshold, true
	}
	ref, ok := values[c.Ref]
	if !ok || math.IsNaN(ref) {
		return 0, false
	}
	factor := c.Factor
	if factor == 0 {
		factor = 1
	}
	return factor * ref, true
}

// Check evaluates the constraint against values. It returns the violation and
// true when the constraint does not hold.
func (c Constraint) Check(values design.Params) (Violation, bool) {
	v := Violation{Constraint: c.Name, Metric: c.Metric}

	value, ok := values[c.Metric]
	if !ok || math.IsNaN(value) {
		v.Magnitude = MissingMagnitude
		return v, true
	}
	v.Value = value

	if c.Op == In {
		for _, a := range c.Allowed {
			if math.Abs(a-value) <= membershipTolerance {
				return Violation{}, false
			}
		}
		v.Magnitude = 1
		return v, true
	}

	bound, ok := c.Bound(values)
	if !ok {
		v.Magnitude = MissingMagnitude
		return v, true
	}
	v.Threshold = bound

	var holds bool
	switch c.Op {
	case GreaterEqual:
		holds = value >= bound
	case LessEqual:
		holds = value <= bound
	case Greater:
		holds = value > bound
	case Less:
		holds = value < bound
	}
	if holds {
		return Violation{}, false
	}
	v.Magnitude = magnitude(value, bound)
	return v, true
}

// magnitude is the relative distance past the threshold, absolute when the
// threshold is zero
func magnitude(value, bound float64) float64 {
	d := math.Abs(value - bound)
	if bound == 0 {
		return d
	}
	return d / math.Abs(bound)
}

// Set is an immutable, ordered collection of constraints bound to a job
type Set struct {
	name        string
	constraints []Constraint
}

// NewSet validates constraints and returns a set. An empty set is valid and
// reports every design feasible.
func NewSet(name string, constraints []Constraint) (*Set, error) {
	seen := make(map[string]bool, len(constraints))
	cs := make([]Constraint, len(constraints))
	for i, c := range constraints {
		if err := c.validate(); err != nil {
			return nil, err
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, c.Name)
		}
		seen[c.Name] = true
		c.Allowed = append([]float64(nil), c.Allowed...)
		cs[i] = c
	}
	return &Set{name: name, constraints: cs}, nil
}

// FromSpecs builds a set from configuration constraint specs
func FromSpecs(name string, specs []config.ConstraintSpec) (*Set, error) {
	cs := make([]Constraint, len(specs))
	for i, s := range specs {
		cs[i] = Constraint{
			Name:        s.Name,
			Metric:      s.Metric,
			Op:          Op(s.Op),
			Threshold:   s.Threshold,
			Ref:         s.Ref,
			Factor:      s.Factor,
			Allowed:     s.Allowed,
			Primary:     s.Primary,
			Description: s.Description,
		}
	}
	return NewSet(name, cs)
}

// FromRuleSet builds a set from a loaded rule set
func FromRuleSet(rs *config.RuleSet) (*Set, error) {
	return FromSpecs(rs.Name, rs.Constraints)
}

// Merge returns a set holding s's constraints followed by extra's. Names must
// stay unique.
func (s *Set) Merge(name string, extra *Set) (*Set, error) {
	if extra == nil || extra.Len() == 0 {
		return NewSet(name, s.constraints)
	}
	all := append(s.Constraints(), extra.constraints...)
	return NewSet(name, all)
}

// Name returns the set's name
func (s *Set) Name() string { return s.name }

// Len returns the number of constraints
func (s *Set) Len() int { return len(s.constraints) }

// Constraints returns a copy of the constraints in order
func (s *Set) Constraints() []Constraint {
	out := make([]Constraint, len(s.constraints))
	copy(out, s.constraints)
	return out
}

// Get looks a constraint up by name
func (s *Set) Get(name string) (Constraint, bool) {
	for _, c := range s.constraints {
		if c.Name == name {
			return c, true
		}
	}
	return Constraint{}, false
}

// Primary returns the constraint flagged primary, or the first constraint
// when none is flagged
func (s *Set) Primary() (Constraint, bool) {
	for _, c := range s.constraints {
		if c.Primary {
			return c, true
		}
	}
	if len(s.constraints) > 0 {
		return s.constraints[0], true
	}
	return Constraint{}, false
}

// Metrics returns the sorted names every constraint reads, refs included
func (s *Set) Metrics() []string {
	seen := make(map[string]bool)
	for _, c := range s.constraints {
		seen[c.Metric] = true
		if c.Ref != "" {
			seen[c.Ref] = true
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Evaluate returns the violations of values in constraint order; empty means
// feasible
func (s *Set) Evaluate(values design.Params) []Violation {
	var out []Violation
	for _, c := range s.constraints {
		if v, violated := c.Check(values); violated {
			out = append(out, v)
		}
	}
	return out
}

// Status evaluates values and summarises the outcome
func (s *Set) Status(values design.Params) models.ConstraintStatus {
	vs := s.Evaluate(values)
	return models.ConstraintStatus{
		Feasible:       len(vs) == 0,
		TotalViolation: Total(vs),
		Violations:     vs,
	}
}

// Total sums violation magnitudes
func Total(vs []Violation) float64 {
	total := 0.0
	for _, v := range vs {
		total += v.Magnitude
	}
	return total
}
