package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// configValidate checks struct tags; semantic checks follow in validate*.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New(validator.WithRequiredStructEnabled())
	configValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = configValidate.RegisterValidation("constraint_op", validateConstraintOp)
}

func validateConstraintOp(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case OpGreaterEqual, OpLessEqual, OpGreater, OpLess, OpIn:
		return true
	}
	return false
}

// LoadDaemonConfig loads and parses a daemon configuration file
func LoadDaemonConfig(path string) (*DaemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseDaemonConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadJobSpec loads a job file; .json files are parsed as JSON, anything else as YAML
func LoadJobSpec(path string) (*JobSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file %s: %w", path, err)
	}
	var spec *JobSpec
	if strings.EqualFold(filepath.Ext(path), ".json") {
		spec, err = ParseJobSpecJSON(data)
	} else {
		spec, err = ParseJobSpecYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse job file %s: %w", path, err)
	}
	return spec, nil
}

// IsRuleSetFile reports whether a path looks like a rule-set file
func IsRuleSetFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadRuleSetDir loads every rule-set file in dir, sorted by name. Duplicate
// rule-set names across files are rejected.
func LoadRuleSetDir(dir string) ([]*RuleSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules dir %s: %w", dir, err)
	}

	var sets []*RuleSet
	seen := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !IsRuleSetFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read rule set file %s: %w", path, err)
		}
		rs, err := ParseRuleSetYAML(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse rule set file %s: %w", path, err)
		}
		if prev, ok := seen[rs.Name]; ok {
			return nil, fmt.Errorf("duplicate rule set %s in %s and %s", rs.Name, prev, path)
		}
		seen[rs.Name] = path
		sets = append(sets, rs)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Name < sets[j].Name })
	return sets, nil
}

// structError flattens validator errors into one readable error
func structError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// validateDaemonConfig performs validation on the daemon configuration
func validateDaemonConfig(cfg *DaemonConfig) error {
	if err := configValidate.Struct(cfg); err != nil {
		return structError(err)
	}

	if _, err := cfg.Pacing(); err != nil {
		return fmt.Errorf("invalid generation_pacing %s: %w", cfg.GenerationPacing, err)
	}
	if _, err := cfg.EvaluationCacheTTL(); err != nil {
		return fmt.Errorf("invalid evaluation cache_ttl %s: %w", cfg.Evaluation.CacheTTL, err)
	}
	if _, err := cfg.ReliabilityCacheTTL(); err != nil {
		return fmt.Errorf("invalid reliability cache_ttl %s: %w", cfg.Reliability.CacheTTL, err)
	}

	names := make(map[string]bool)
	for _, r := range cfg.Surrogates.Remote {
		if names[r.Name] {
			return fmt.Errorf("duplicate remote surrogate: %s", r.Name)
		}
		names[r.Name] = true
	}
	return nil
}

// ValidateJobSpec checks a job for configuration errors
func ValidateJobSpec(spec *JobSpec) error {
	if err := configValidate.Struct(spec); err != nil {
		return structError(err)
	}

	if len(spec.Objectives) < 2 {
		return fmt.Errorf("at least 2 objectives are required, got %d", len(spec.Objectives))
	}
	if len(spec.Priorities) != len(spec.Objectives) {
		return fmt.Errorf("priorities length %d must equal objectives length %d", len(spec.Priorities), len(spec.Objectives))
	}
	if spec.PopulationSize <= 0 {
		return fmt.Errorf("population_size must be positive, got %d", spec.PopulationSize)
	}
	if spec.TotalGenerations <= 0 {
		return fmt.Errorf("total_generations must be positive, got %d", spec.TotalGenerations)
	}

	objectives := make(map[string]bool)
	for _, o := range spec.Objectives {
		if objectives[o.Name] {
			return fmt.Errorf("duplicate objective: %s", o.Name)
		}
		objectives[o.Name] = true
	}

	if err := validateDesignSpace(spec.DesignSpace); err != nil {
		return err
	}
	if err := validateConstraints(spec.Constraints); err != nil {
		return err
	}
	for name, v := range spec.Parameters {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("parameter %s must be finite", name)
		}
	}
	if spec.MaxWallClock != "" {
		if _, err := spec.WallClockBudget(); err != nil {
			return fmt.Errorf("invalid max_wall_clock %s: %w", spec.MaxWallClock, err)
		}
	}
	return nil
}

// validateDesignSpace checks gene bounds and choice sets
func validateDesignSpace(genes []GeneSpec) error {
	names := make(map[string]bool)
	for _, g := range genes {
		if names[g.Name] {
			return fmt.Errorf("duplicate gene: %s", g.Name)
		}
		names[g.Name] = true

		switch g.Type {
		case GeneContinuous:
			if math.IsNaN(g.Lower) || math.IsNaN(g.Upper) || math.IsInf(g.Lower, 0) || math.IsInf(g.Upper, 0) {
				return fmt.Errorf("gene %s: bounds must be finite", g.Name)
			}
			if g.Lower >= g.Upper {
				return fmt.Errorf("gene %s: lower %g must be below upper %g", g.Name, g.Lower, g.Upper)
			}
			if len(g.Choices) > 0 {
				return fmt.Errorf("gene %s: continuous genes take bounds, not choices", g.Name)
			}
		case GeneDiscrete:
			if len(g.Choices) == 0 {
				return fmt.Errorf("gene %s: discrete genes need at least one choice", g.Name)
			}
			if len(g.Labels) > 0 && len(g.Labels) != len(g.Choices) {
				return fmt.Errorf("gene %s: %d labels for %d choices", g.Name, len(g.Labels), len(g.Choices))
			}
			seen := make(map[float64]bool)
			for _, c := range g.Choices {
				if math.IsNaN(c) || math.IsInf(c, 0) {
					return fmt.Errorf("gene %s: choices must be finite", g.Name)
				}
				if seen[c] {
					return fmt.Errorf("gene %s: duplicate choice %g", g.Name, c)
				}
				seen[c] = true
			}
		}
	}
	return nil
}

// validateConstraints checks operator-specific fields and name uniqueness
func validateConstraints(cs []ConstraintSpec) error {
	names := make(map[string]bool)
	for _, c := range cs {
		if names[c.Name] {
			return fmt.Errorf("duplicate constraint: %s", c.Name)
		}
		names[c.Name] = true

		if c.Op == OpIn {
			if len(c.Allowed) == 0 {
				return fmt.Errorf("constraint %s: 'in' needs a non-empty allowed set", c.Name)
			}
			if c.Ref != "" {
				return fmt.Errorf("constraint %s: 'in' cannot take a ref", c.Name)
			}
			continue
		}
		if len(c.Allowed) > 0 {
			return fmt.Errorf("constraint %s: allowed set only applies to 'in'", c.Name)
		}
		if c.Factor != 0 && c.Ref == "" {
			return fmt.Errorf("constraint %s: factor needs a ref", c.Name)
		}
		if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) || math.IsNaN(c.Factor) || math.IsInf(c.Factor, 0) {
			return fmt.Errorf("constraint %s: threshold and factor must be finite", c.Name)
		}
	}
	return nil
}

// validateRuleSet performs validation on a rule set
func validateRuleSet(rs *RuleSet) error {
	if err := configValidate.Struct(rs); err != nil {
		return structError(err)
	}
	return validateConstraints(rs.Constraints)
}

// ValidateReliabilitySpec checks a reliability request for configuration errors
func ValidateReliabilitySpec(spec *ReliabilitySpec) error {
	if err := configValidate.Struct(spec); err != nil {
		return structError(err)
	}
	params := make(map[string]bool)
	for _, u := range spec.Uncertainty {
		if params[u.Parameter] {
			return fmt.Errorf("duplicate uncertainty for parameter %s", u.Parameter)
		}
		params[u.Parameter] = true
		if u.Distribution == DistUniform && u.HalfWidthPercent >= 100 {
			return fmt.Errorf("parameter %s: half_width_pct must be below 100", u.Parameter)
		}
	}
	for _, v := range spec.DesignVector {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("design_vector must be finite")
		}
	}
	return nil
}
