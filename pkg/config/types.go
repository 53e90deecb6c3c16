package config

import "time"

// DaemonConfig represents the optimization daemon configuration
type DaemonConfig struct {
	LogLevel          string            `yaml:"log_level" json:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat         string            `yaml:"log_format" json:"log_format" validate:"omitempty,oneof=json text console"`
	GRPCAddr          string            `yaml:"grpc_addr" json:"grpc_addr"`
	HTTPAddr          string            `yaml:"http_addr" json:"http_addr"`
	StorePath         string            `yaml:"store_path" json:"store_path"` // empty keeps results in memory
	RulesDir          string            `yaml:"rules_dir" json:"rules_dir"`
	MaxConcurrentJobs int               `yaml:"max_concurrent_jobs" json:"max_concurrent_jobs" validate:"gte=0"`
	Evaluation        EvaluationConfig  `yaml:"evaluation" json:"evaluation"`
	GenerationPacing  string            `yaml:"generation_pacing" json:"generation_pacing"` // e.g. "50ms"
	Surrogates        SurrogatesConfig  `yaml:"surrogates" json:"surrogates"`
	Tracing           TracingConfig     `yaml:"tracing" json:"tracing"`
	Notifier          NotifierConfig    `yaml:"notifier" json:"notifier"`
	Reliability       ReliabilityConfig `yaml:"reliability" json:"reliability"`
}

// EvaluationConfig controls surrogate batch evaluation
type EvaluationConfig struct {
	Workers  int    `yaml:"workers" json:"workers" validate:"gte=0"`
	CacheTTL string `yaml:"cache_ttl" json:"cache_ttl"` // empty disables the cache
}

// SurrogatesConfig selects the models registered with the daemon
type SurrogatesConfig struct {
	Reference *bool             `yaml:"reference,omitempty" json:"reference,omitempty"` // default true
	Remote    []RemoteSurrogate `yaml:"remote" json:"remote" validate:"dive"`
}

// RemoteSurrogate is a model served by a remote surrogate service
type RemoteSurrogate struct {
	Name       string         `yaml:"name" json:"name" validate:"required"`
	Target     string         `yaml:"target" json:"target" validate:"required"`
	RemoteName string         `yaml:"remote_name,omitempty" json:"remote_name,omitempty"`
	TimeoutMs  int            `yaml:"timeout_ms" json:"timeout_ms" validate:"gte=0"`
	Retries    *RetryPolicy   `yaml:"retries,omitempty" json:"retries,omitempty"`
	Breaker    *BreakerPolicy `yaml:"breaker,omitempty" json:"breaker,omitempty"`
}

// RetryPolicy represents retry configuration
type RetryPolicy struct {
	MaxRetries int    `yaml:"max_retries" json:"max_retries" validate:"gte=0"`
	Backoff    string `yaml:"backoff" json:"backoff" validate:"omitempty,oneof=exponential linear constant"`
	BaseMs     int    `yaml:"base_ms" json:"base_ms" validate:"gte=0"`
	MaxMs      int    `yaml:"max_ms" json:"max_ms" validate:"gte=0"`
}

// BreakerPolicy configures the circuit breaker guarding a remote model
type BreakerPolicy struct {
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold" validate:"gte=0"`
	SuccessThreshold int `yaml:"success_threshold" json:"success_threshold" validate:"gte=0"`
	TimeoutMs        int `yaml:"timeout_ms" json:"timeout_ms" validate:"gte=0"`
}

// TracingConfig enables OpenTelemetry span export
type TracingConfig struct {
	Stdout bool `yaml:"stdout" json:"stdout"`
}

// NotifierConfig configures terminal-status webhooks
type NotifierConfig struct {
	TimeoutMs int `yaml:"timeout_ms" json:"timeout_ms" validate:"gte=0"`
}

// ReliabilityConfig bounds on-demand reliability requests
type ReliabilityConfig struct {
	Workers    int    `yaml:"workers" json:"workers" validate:"gte=0"`
	MaxSamples int    `yaml:"max_samples" json:"max_samples" validate:"gte=0"`
	CacheTTL   string `yaml:"cache_ttl" json:"cache_ttl"`
}

// DefaultDaemonConfig returns the configuration used when no file is given
func DefaultDaemonConfig() *DaemonConfig {
	return &DaemonConfig{
		LogLevel:          "info",
		LogFormat:         "json",
		GRPCAddr:          ":50051",
		HTTPAddr:          ":8080",
		MaxConcurrentJobs: 4,
		Evaluation: EvaluationConfig{
			CacheTTL: "10m",
		},
		Notifier: NotifierConfig{TimeoutMs: 5000},
		Reliability: ReliabilityConfig{
			MaxSamples: 200000,
			CacheTTL:   "30m",
		},
	}
}

// ReferenceSurrogates reports whether the built-in vessel models are registered
func (s SurrogatesConfig) ReferenceSurrogates() bool {
	return s.Reference == nil || *s.Reference
}

// Pacing parses the inter-generation delay; empty means none
func (c *DaemonConfig) Pacing() (time.Duration, error) {
	return optionalDuration(c.GenerationPacing)
}

// EvaluationCacheTTL parses the surrogate cache TTL; zero disables caching
func (c *DaemonConfig) EvaluationCacheTTL() (time.Duration, error) {
	return optionalDuration(c.Evaluation.CacheTTL)
}

// ReliabilityCacheTTL parses the reliability result cache TTL
func (c *DaemonConfig) ReliabilityCacheTTL() (time.Duration, error) {
	return optionalDuration(c.Reliability.CacheTTL)
}

func optionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
