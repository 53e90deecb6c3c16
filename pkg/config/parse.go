package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseDaemonConfigYAML parses a DaemonConfig from YAML bytes on top of the
// defaults and validates it.
func ParseDaemonConfigYAML(data []byte) (*DaemonConfig, error) {
	cfg := DefaultDaemonConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}

	if err := validateDaemonConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ParseJobSpecYAML parses a JobSpec from YAML bytes and validates it.
// This is used for APIs where the job is provided as payload (not via filesystem).
func ParseJobSpecYAML(data []byte) (*JobSpec, error) {
	var spec JobSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse job yaml: %w", err)
	}

	if err := ValidateJobSpec(&spec); err != nil {
		return nil, fmt.Errorf("invalid job: %w", err)
	}

	return &spec, nil
}

// ParseJobSpecYAMLString parses a JobSpec from a YAML string and validates it.
func ParseJobSpecYAMLString(yamlText string) (*JobSpec, error) {
	return ParseJobSpecYAML([]byte(yamlText))
}

// ParseJobSpecJSON parses a JobSpec from JSON bytes and validates it.
// Unknown fields are rejected.
func ParseJobSpecJSON(data []byte) (*JobSpec, error) {
	var spec JobSpec
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("failed to parse job json: %w", err)
	}

	if err := ValidateJobSpec(&spec); err != nil {
		return nil, fmt.Errorf("invalid job: %w", err)
	}

	return &spec, nil
}

// ParseRuleSetYAML parses a RuleSet from YAML bytes and validates it.
func ParseRuleSetYAML(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse rule set yaml: %w", err)
	}

	if err := validateRuleSet(&rs); err != nil {
		return nil, fmt.Errorf("invalid rule set: %w", err)
	}

	return &rs, nil
}

// ParseReliabilitySpecJSON parses a reliability request from JSON bytes and validates it.
func ParseReliabilitySpecJSON(data []byte) (*ReliabilitySpec, error) {
	var spec ReliabilitySpec
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("failed to parse reliability request: %w", err)
	}

	if err := ValidateReliabilitySpec(&spec); err != nil {
		return nil, fmt.Errorf("invalid reliability request: %w", err)
	}

	return &spec, nil
}
