package config

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Gene types
const (
	GeneContinuous = "continuous"
	GeneDiscrete   = "discrete"
)

// Objective directions
const (
	Minimize = "minimize"
	Maximize = "maximize"
)

// Constraint operators
const (
	OpGreaterEqual = ">="
	OpLessEqual    = "<="
	OpGreater      = ">"
	OpLess         = "<"
	OpIn           = "in"
)

// JobSpec is a submitted optimization job
type JobSpec struct {
	Name             string             `yaml:"name" json:"name"`
	DesignSpace      []GeneSpec         `yaml:"design_space" json:"design_space" validate:"required,min=1,dive"`
	Objectives       []ObjectiveSpec    `yaml:"objectives" json:"objectives" validate:"required,dive"`
	Priorities       []int              `yaml:"priorities" json:"priorities"`
	PopulationSize   int                `yaml:"population_size" json:"population_size"`
	TotalGenerations int                `yaml:"total_generations" json:"total_generations"`
	Constraints      []ConstraintSpec   `yaml:"constraints,omitempty" json:"constraints,omitempty" validate:"dive"`
	RuleSet          string             `yaml:"rule_set,omitempty" json:"rule_set,omitempty"`
	Parameters       map[string]float64 `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Settings         OptimizerSettings  `yaml:"settings" json:"settings"`
	MaxWallClock     string             `yaml:"max_wall_clock,omitempty" json:"max_wall_clock,omitempty"` // e.g. "10m"
	Seed             int64              `yaml:"seed,omitempty" json:"seed,omitempty"`
	Callback         *CallbackSpec      `yaml:"callback,omitempty" json:"callback,omitempty"`
}

// GeneSpec describes one design gene
type GeneSpec struct {
	Name    string    `yaml:"name" json:"name" validate:"required"`
	Type    string    `yaml:"type" json:"type" validate:"required,oneof=continuous discrete"`
	Lower   float64   `yaml:"lower,omitempty" json:"lower,omitempty"`
	Upper   float64   `yaml:"upper,omitempty" json:"upper,omitempty"`
	Choices []float64 `yaml:"choices,omitempty" json:"choices,omitempty"`
	Labels  []string  `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// ObjectiveSpec names a surrogate output to optimize. In YAML and JSON it may
// be written as a bare name, in which case it is minimized.
type ObjectiveSpec struct {
	Name      string `yaml:"name" json:"name" validate:"required"`
	Direction string `yaml:"direction,omitempty" json:"direction,omitempty" validate:"omitempty,oneof=minimize maximize"`
}

// UnmarshalYAML accepts either a scalar name or a mapping
func (o *ObjectiveSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		o.Name = value.Value
		o.Direction = ""
		return nil
	}
	type plain ObjectiveSpec
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*o = ObjectiveSpec(p)
	return nil
}

// UnmarshalJSON accepts either a string name or an object
func (o *ObjectiveSpec) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*o = ObjectiveSpec{Name: name}
		return nil
	}
	type plain ObjectiveSpec
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("objective must be a name or an object: %w", err)
	}
	*o = ObjectiveSpec(p)
	return nil
}

// Maximized reports whether the objective is maximized
func (o ObjectiveSpec) Maximized() bool {
	return o.Direction == Maximize
}

// ConstraintSpec is one constraint: metric OP threshold, metric OP factor*ref,
// or metric in allowed
type ConstraintSpec struct {
	Name        string    `yaml:"name" json:"name" validate:"required"`
	Metric      string    `yaml:"metric" json:"metric" validate:"required"`
	Op          string    `yaml:"op" json:"op" validate:"required,constraint_op"`
	Threshold   float64   `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Ref         string    `yaml:"ref,omitempty" json:"ref,omitempty"`
	Factor      float64   `yaml:"factor,omitempty" json:"factor,omitempty"`
	Allowed     []float64 `yaml:"allowed,omitempty" json:"allowed,omitempty"`
	Primary     bool      `yaml:"primary,omitempty" json:"primary,omitempty"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
}

// OptimizerSettings tunes the NSGA-II operators; zero values pick defaults
type OptimizerSettings struct {
	TournamentSize int     `yaml:"tournament_size,omitempty" json:"tournament_size,omitempty" validate:"gte=0"`
	CrossoverRate  float64 `yaml:"crossover_rate,omitempty" json:"crossover_rate,omitempty" validate:"gte=0,lte=1"`
	CrossoverEta   float64 `yaml:"crossover_eta,omitempty" json:"crossover_eta,omitempty" validate:"gte=0"`
	MutationRate   float64 `yaml:"mutation_rate,omitempty" json:"mutation_rate,omitempty" validate:"gte=0,lte=1"`
	MutationEta    float64 `yaml:"mutation_eta,omitempty" json:"mutation_eta,omitempty" validate:"gte=0"`
	ArchiveSize    int     `yaml:"archive_size,omitempty" json:"archive_size,omitempty" validate:"gte=0"`
	DedupEpsilon   float64 `yaml:"dedup_epsilon,omitempty" json:"dedup_epsilon,omitempty" validate:"gte=0"`
	CrowdingMetric string  `yaml:"crowding_metric,omitempty" json:"crowding_metric,omitempty" validate:"omitempty,oneof=objective decision"`
	Workers        int     `yaml:"workers,omitempty" json:"workers,omitempty" validate:"gte=0"`
}

// CallbackSpec is a webhook notified on terminal status
type CallbackSpec struct {
	URL    string `yaml:"url" json:"url" validate:"required,url"`
	Secret string `yaml:"secret,omitempty" json:"secret,omitempty"`
}

// RuleSet is a named regulatory regime
type RuleSet struct {
	Name        string           `yaml:"name" json:"name" validate:"required"`
	Regime      string           `yaml:"regime,omitempty" json:"regime,omitempty"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Constraints []ConstraintSpec `yaml:"constraints" json:"constraints" validate:"required,min=1,dive"`
}

// Distributions supported for reliability sampling
const (
	DistNormal    = "normal"
	DistLognormal = "lognormal"
	DistUniform   = "uniform"
	DistWeibull   = "weibull"
)

// ReliabilitySpec requests a Monte Carlo reliability analysis of one design
type ReliabilitySpec struct {
	DesignVector       []float64         `yaml:"design_vector" json:"design_vector" validate:"required"`
	Uncertainty        []UncertaintySpec `yaml:"uncertainty" json:"uncertainty" validate:"required,min=1,dive"`
	SampleCount        int               `yaml:"sample_count" json:"sample_count" validate:"gt=0"`
	PrimaryConstraint  string            `yaml:"primary_constraint,omitempty" json:"primary_constraint,omitempty"`
	Seed               int64             `yaml:"seed,omitempty" json:"seed,omitempty"`
	SensitivityStepPct float64           `yaml:"sensitivity_step_pct,omitempty" json:"sensitivity_step_pct,omitempty" validate:"gte=0"`
	SkipDecomposition  bool              `yaml:"skip_decomposition,omitempty" json:"skip_decomposition,omitempty"`
}

// UncertaintySpec is the distribution of one uncertain parameter around its
// nominal value
type UncertaintySpec struct {
	Parameter        string  `yaml:"parameter" json:"parameter" validate:"required"`
	Distribution     string  `yaml:"distribution" json:"distribution" validate:"required,oneof=normal lognormal uniform weibull"`
	CoV              float64 `yaml:"cov,omitempty" json:"cov,omitempty" validate:"gte=0"`
	StdDev           float64 `yaml:"std_dev,omitempty" json:"std_dev,omitempty" validate:"gte=0"`
	HalfWidthPercent float64 `yaml:"half_width_pct,omitempty" json:"half_width_pct,omitempty" validate:"gte=0"`
	Shape            float64 `yaml:"shape,omitempty" json:"shape,omitempty" validate:"gte=0"`
}

// WallClockBudget parses MaxWallClock; zero means unbounded
func (s *JobSpec) WallClockBudget() (time.Duration, error) {
	d, err := optionalDuration(s.MaxWallClock)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}

// PriorityOrder returns objective indices ordered by priority, lowest value
// first; equal priorities keep declaration order
func (s *JobSpec) PriorityOrder() []int {
	order := make([]int, len(s.Objectives))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return priorityAt(s.Priorities, order[a]) < priorityAt(s.Priorities, order[b])
	})
	return order
}

func priorityAt(p []int, i int) int {
	if i < len(p) {
		return p[i]
	}
	return math.MaxInt
}
