package optd

import (
	"fmt"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/constraint"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/improvement"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/surrogate"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
)

// SpaceFromSpec builds the design space of a job
func SpaceFromSpec(genes []config.GeneSpec) (*design.Space, error) {
	out := make([]design.Gene, len(genes))
	for i, g := range genes {
		out[i] = design.Gene{
			Name:    g.Name,
			Kind:    design.GeneKind(g.Type),
			Lower:   g.Lower,
			Upper:   g.Upper,
			Choices: g.Choices,
			Labels:  g.Labels,
		}
	}
	return design.NewSpace(out)
}

// BuildProblem turns a validated job spec into an optimization problem. The
// rule set named by the spec is taken from rules now, so later reloads do not
// affect the job; inline constraints are added to it. base holds default
// parameters the job's own parameters override.
func BuildProblem(spec *config.JobSpec, reg *surrogate.Registry, rules *constraint.RuleRegistry, base design.Params) (improvement.Problem, error) {
	space, err := SpaceFromSpec(spec.DesignSpace)
	if err != nil {
		return improvement.Problem{}, err
	}
	objs, err := improvement.ObjectivesFromSpec(spec.Objectives, spec.Priorities)
	if err != nil {
		return improvement.Problem{}, err
	}

	inline, err := constraint.FromSpecs("inline", spec.Constraints)
	if err != nil {
		return improvement.Problem{}, err
	}
	set := inline
	if spec.RuleSet != "" {
		if rules == nil {
			return improvement.Problem{}, fmt.Errorf("%w: %s", constraint.ErrUnknownRuleSet, spec.RuleSet)
		}
		bound, err := rules.Get(spec.RuleSet)
		if err != nil {
			return improvement.Problem{}, err
		}
		if set, err = bound.Merge(spec.RuleSet, inline); err != nil {
			return improvement.Problem{}, err
		}
	}

	params := design.Merge(base, design.Params(spec.Parameters))
	for _, name := range space.Names() {
		delete(params, name)
	}

	p := improvement.Problem{
		Space:       space,
		Objectives:  objs,
		Constraints: set,
		Parameters:  params,
	}
	if err := checkInputs(p, reg); err != nil {
		return improvement.Problem{}, err
	}
	return p, nil
}

// checkInputs makes sure every objective is a surrogate output and every
// constraint reads something a design evaluation produces
func checkInputs(p improvement.Problem, reg *surrogate.Registry) error {
	for _, o := range p.Objectives {
		if err := reg.Require(o.Name); err != nil {
			return fmt.Errorf("objective %s: %w", o.Name, err)
		}
	}

	known := func(name string) bool {
		if _, ok := p.Space.Lookup(name); ok {
			return true
		}
		if _, ok := p.Parameters[name]; ok {
			return true
		}
		_, ok := reg.Get(name)
		return ok
	}
	for _, c := range p.Constraints.Constraints() {
		if !known(c.Metric) {
			return fmt.Errorf("constraint %s reads unknown metric %s", c.Name, c.Metric)
		}
		if c.Ref != "" && !known(c.Ref) {
			return fmt.Errorf("constraint %s references unknown value %s", c.Name, c.Ref)
		}
	}
	return nil
}

// ConstraintSpecs converts a constraint set back to its configuration form
func ConstraintSpecs(set *constraint.Set) []config.ConstraintSpec {
	cs := set.Constraints()
	out := make([]config.ConstraintSpec, len(cs))
	for i, c := range cs {
		out[i] = config.ConstraintSpec{
			Name:        c.Name,
			Metric:      c.Metric,
			Op:          string(c.Op),
			Threshold:   c.Threshold,
			Ref:         c.Ref,
			Factor:      c.Factor,
			Allowed:     c.Allowed,
			Primary:     c.Primary,
			Description: c.Description,
		}
	}
	return out
}
