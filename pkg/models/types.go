package models

// JobStatus represents the lifecycle state of an optimization job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible from s
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCancelled, JobStatusFailed:
		return true
	}
	return false
}

// ParseJobStatus parses a case-sensitive status name. Unknown names return false.
func ParseJobStatus(s string) (JobStatus, bool) {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusCancelled, JobStatusFailed:
		return JobStatus(s), true
	}
	return "", false
}

// ReasonCode distinguishes how a job reached a terminal state
type ReasonCode string

const (
	ReasonNone                 ReasonCode = ""
	ReasonUserCancelled        ReasonCode = "user_cancelled"
	ReasonWallClockBudget      ReasonCode = "wall_clock_budget"
	ReasonSurrogateUnavailable ReasonCode = "surrogate_unavailable"
	ReasonInternal             ReasonCode = "internal"
	ReasonShutdown             ReasonCode = "shutdown"
)

// ErrorCode is the stable code returned with request-level failures
type ErrorCode string

const (
	ErrorCodeInvalidJob           ErrorCode = "invalid_job"
	ErrorCodeNotFound             ErrorCode = "not_found"
	ErrorCodeNotCompleted         ErrorCode = "not_completed"
	ErrorCodeSurrogateUnavailable ErrorCode = "surrogate_unavailable"
	ErrorCodeSamplingFailed       ErrorCode = "sampling_failed"
	ErrorCodeInternal             ErrorCode = "internal"
)

// Job is the externally visible state of an optimization job
type Job struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name,omitempty"`
	Status             JobStatus  `json:"status"`
	Reason             ReasonCode `json:"reason,omitempty"`
	Error              string     `json:"error,omitempty"`
	CurrentGeneration  int        `json:"current_generation"`
	TotalGenerations   int        `json:"total_generations"`
	Evaluations        int64      `json:"evaluations_so_far"`
	ParetoSize         int        `json:"pareto_size"`
	FailedAtGeneration int        `json:"failed_at_generation,omitempty"`
	RuleSet            string     `json:"rule_set,omitempty"`
	CreatedAtUnixMs    int64      `json:"created_at_unix_ms"`
	StartedAtUnixMs    int64      `json:"started_at_unix_ms,omitempty"`
	EndedAtUnixMs      int64      `json:"ended_at_unix_ms,omitempty"`
}

// ObjectiveBest is the best value seen for one objective in the current archive
type ObjectiveBest struct {
	Objective string  `json:"objective"`
	Direction string  `json:"direction"`
	Value     float64 `json:"value"`
}

// ProgressSnapshot is emitted after every generation and once on termination.
// Sequence increases strictly per job. Snapshots are values; subscribers never
// share mutable state with the job.
type ProgressSnapshot struct {
	JobID              string          `json:"job_id"`
	Sequence           int64           `json:"sequence"`
	Status             JobStatus       `json:"status"`
	Reason             ReasonCode      `json:"reason,omitempty"`
	Generation         int             `json:"generation"`
	TotalGenerations   int             `json:"total_generations"`
	Evaluations        int64           `json:"evaluations_so_far"`
	ParetoSize         int             `json:"pareto_size"`
	ParetoGrowth       int             `json:"pareto_growth"`
	ParetoSaturated    bool            `json:"pareto_saturated,omitempty"` // size flat over the tracker window
	FeasibleFraction   float64         `json:"feasible_fraction"`
	Best               []ObjectiveBest `json:"best,omitempty"`
	ElapsedMs          int64           `json:"elapsed_ms"`
	FailedAtGeneration int             `json:"failed_at_generation,omitempty"`
	Error              string          `json:"error,omitempty"`
	TimestampUnixMs    int64           `json:"timestamp_unix_ms"`
}

// Terminal reports whether this is the final snapshot of the job
func (s ProgressSnapshot) Terminal() bool {
	return s.Status.Terminal()
}

// Interval is a confidence interval reported by a surrogate
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Violation records how far one constraint was missed
type Violation struct {
	Constraint string  `json:"constraint"`
	Metric     string  `json:"metric"`
	Value      float64 `json:"value"`
	Threshold  float64 `json:"threshold"`
	Magnitude  float64 `json:"magnitude"`
}

// ConstraintStatus summarizes feasibility of one design
type ConstraintStatus struct {
	Feasible       bool        `json:"feasible"`
	TotalViolation float64     `json:"total_violation"`
	Violations     []Violation `json:"violations,omitempty"`
}

// ParetoDesign is one entry of a job's result set
type ParetoDesign struct {
	DesignVector     []float64           `json:"design_vector"`
	Parameters       map[string]float64  `json:"parameters"`
	Labels           map[string]string   `json:"labels,omitempty"`
	Objectives       map[string]float64  `json:"objective_values"`
	Confidence       map[string]Interval `json:"confidence_intervals,omitempty"`
	ConstraintStatus ConstraintStatus    `json:"constraint_status"`
}

// JobResults is returned by the fetch-results operation
type JobResults struct {
	JobID         string         `json:"job_id"`
	Status        JobStatus      `json:"status"`
	Reason        ReasonCode     `json:"reason,omitempty"`
	Generations   int            `json:"generations"`
	Evaluations   int64          `json:"evaluations"`
	Objectives    []string       `json:"objectives"`
	ParetoDesigns []ParetoDesign `json:"pareto_designs"`
}

// DistributionSummary describes the sampled distribution of the primary output
type DistributionSummary struct {
	Metric string  `json:"metric"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P01    float64 `json:"p01"`
	P05    float64 `json:"p05"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
}

// UncertaintyContribution is the share of output variance attributed to one source
type UncertaintyContribution struct {
	Source           string  `json:"source"`
	VarianceFraction float64 `json:"variance_fraction"`
}

// Sensitivity is the change in the primary output per percent change of a parameter
type Sensitivity struct {
	Parameter        string  `json:"parameter"`
	EffectPerPercent float64 `json:"effect_per_percent"`
}

// ReliabilityResult is produced on demand for one design and never mutated afterwards
type ReliabilityResult struct {
	JobID                    string                    `json:"job_id,omitempty"`
	DesignVector             []float64                 `json:"design_vector"`
	PrimaryConstraint        string                    `json:"primary_constraint"`
	RequestedSamples         int                       `json:"requested_samples"`
	SampleCount              int                       `json:"sample_count"`
	FailedEvaluations        int                       `json:"failed_evaluations"`
	FailedCount              int                       `json:"failed_count"`
	FailureProbability       float64                   `json:"failure_probability"`
	RelativeStdError         *float64                  `json:"relative_std_error,omitempty"`
	OutputDistribution       DistributionSummary       `json:"output_distribution_summary"`
	UncertaintyContributions []UncertaintyContribution `json:"uncertainty_contributions"`
	Sensitivity              []Sensitivity             `json:"sensitivity"`
	Seed                     int64                     `json:"seed"`
	DurationMs               int64                     `json:"duration_ms"`
}
