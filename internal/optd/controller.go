package optd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/constraint"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/improvement"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/metrics"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/reliability"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/surrogate"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/logger"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/utils"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobNotCompleted   = errors.New("job has not completed")
	ErrInvalidJob        = errors.New("invalid job")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrShuttingDown      = errors.New("controller is shutting down")
)

// Cancellation causes, checked at generation boundaries
var (
	errUserCancelled  = errors.New("cancelled by user")
	errBudgetExceeded = errors.New("wall-clock budget exceeded")
	errShutdown       = errors.New("controller shut down")
)

var tracer = otel.Tracer("github.com/GoSim-25-26J-441/vessel-optimizer/internal/optd")

// Options configures a Controller
type Options struct {
	MaxConcurrentJobs   int           // zero means 1
	Pacing              time.Duration // minimum spacing between generations
	EvalWorkers         int
	EvalCacheTTL        time.Duration // zero disables the evaluation cache
	ReliabilityWorkers  int
	MaxSamples          int
	ReliabilityCacheTTL time.Duration
	BaseParameters      design.Params // defaults job parameters override
	Results             ResultStore   // nil keeps finished jobs in memory only
	Notifier            *Notifier     // nil disables callbacks
}

// Controller owns job lifecycles: it validates submissions, runs one
// goroutine per job, honours cancellation and wall-clock budgets at
// generation boundaries, publishes progress and keeps results.
type Controller struct {
	store    *JobStore
	registry *surrogate.Registry
	rules    *constraint.RuleRegistry
	results  ResultStore
	notifier *Notifier
	opts     Options

	mu       sync.Mutex
	cancels  map[string]context.CancelCauseFunc
	restored map[string]*JobRecord // jobs loaded back from the result store
	closed   bool

	slots chan struct{}
	wg    sync.WaitGroup
}

// NewController creates a controller evaluating designs with reg. rules may
// be nil when no rule sets are configured.
func NewController(reg *surrogate.Registry, rules *constraint.RuleRegistry, opts Options) *Controller {
	if opts.MaxConcurrentJobs <= 0 {
		opts.MaxConcurrentJobs = 1
	}
	results := opts.Results
	if results == nil {
		results = NewMemoryResultStore()
	}
	return &Controller{
		store:    NewJobStore(),
		registry: reg,
		rules:    rules,
		results:  results,
		notifier: opts.Notifier,
		opts:     opts,
		cancels:  make(map[string]context.CancelCauseFunc),
		restored: make(map[string]*JobRecord),
		slots:    make(chan struct{}, opts.MaxConcurrentJobs),
	}
}

// Registry returns the surrogate registry jobs snapshot at submission
func (c *Controller) Registry() *surrogate.Registry {
	return c.registry
}

// Rules returns the rule registry, which may be nil
func (c *Controller) Rules() *constraint.RuleRegistry {
	return c.rules
}

// Submit validates spec and queues the job. The job starts as soon as a
// slot is free. Configuration errors wrap ErrInvalidJob.
func (c *Controller) Submit(ctx context.Context, spec *config.JobSpec) (models.Job, error) {
	if spec == nil {
		return models.Job{}, fmt.Errorf("%w: job spec is required", ErrInvalidJob)
	}
	if err := config.ValidateJobSpec(spec); err != nil {
		return models.Job{}, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	budget, err := spec.WallClockBudget()
	if err != nil {
		return models.Job{}, fmt.Errorf("%w: max_wall_clock: %w", ErrInvalidJob, err)
	}
	problem, err := BuildProblem(spec, c.registry, c.rules, c.opts.BaseParameters)
	if err != nil {
		return models.Job{}, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	workers := spec.Settings.Workers
	if workers <= 0 {
		workers = c.opts.EvalWorkers
	}
	evalOpts := []surrogate.Option{surrogate.WithWorkers(workers)}
	if c.opts.EvalCacheTTL > 0 {
		evalOpts = append(evalOpts, surrogate.WithCache(c.opts.EvalCacheTTL))
	}
	eval := surrogate.NewEvaluator(c.registry, evalOpts...)

	opt, err := improvement.NewOptimizer(problem, eval, improvement.SettingsFromSpec(spec))
	if err != nil {
		return models.Job{}, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	rec := &JobRecord{
		spec:     spec,
		problem:  problem,
		opt:      opt,
		budget:   budget,
		analyzer: c.newAnalyzer(workers),
		series:   metrics.NewCollector(),
		progress: newBroker(),
		job: models.Job{
			ID:               utils.GenerateJobID(),
			Name:             spec.Name,
			TotalGenerations: spec.TotalGenerations,
			RuleSet:          spec.RuleSet,
		},
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.Job{}, ErrShuttingDown
	}
	if err := c.store.Create(rec); err != nil {
		c.mu.Unlock()
		return models.Job{}, err
	}
	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	c.cancels[rec.job.ID] = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	job, _ := c.store.Get(rec.job.ID)
	rec.progress.publish(c.snapshot(rec, job, nil))
	jobsSubmitted.Inc()
	logger.Info("job submitted",
		"job_id", job.ID,
		"name", job.Name,
		"population", spec.PopulationSize,
		"generations", spec.TotalGenerations,
		"rule_set", spec.RuleSet)

	go c.execute(runCtx, rec)
	return job, nil
}

// newAnalyzer gives reliability requests their own evaluator. Monte Carlo
// samples never repeat, so it carries no evaluation cache.
func (c *Controller) newAnalyzer(workers int) *reliability.Analyzer {
	eval := surrogate.NewEvaluator(c.registry, surrogate.WithWorkers(workers))
	opts := []reliability.Option{reliability.WithWorkers(c.opts.ReliabilityWorkers)}
	if c.opts.MaxSamples > 0 {
		opts = append(opts, reliability.WithMaxSamples(c.opts.MaxSamples))
	}
	if c.opts.ReliabilityCacheTTL > 0 {
		opts = append(opts, reliability.WithCache(c.opts.ReliabilityCacheTTL))
	}
	return reliability.NewAnalyzer(eval, opts...)
}

// Cancel stops a job. A pending job is cancelled at once; a running job
// stops at its next generation boundary, so the returned job may still be
// running. Cancelling a finished job returns it unchanged.
func (c *Controller) Cancel(id string) (models.Job, error) {
	rec, ok := c.store.record(id)
	if !ok {
		if stored, err := c.results.Load(context.Background(), id); err == nil {
			return stored.Job, nil
		}
		return models.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	job, err := c.store.TransitionFrom(id, models.JobStatusPending, models.JobStatusCancelled, models.ReasonUserCancelled, "")
	if err == nil {
		logger.Info("pending job cancelled", "job_id", id)
		c.stop(id, errUserCancelled)
		c.finish(rec, job, nil, nil)
		return job, nil
	}
	if !errors.Is(err, ErrInvalidTransition) {
		return models.Job{}, err
	}
	if job.Status.Terminal() {
		return job, nil
	}

	logger.Info("cancellation requested", "job_id", id, "generation", job.CurrentGeneration)
	c.stop(id, errUserCancelled)
	return job, nil
}

// stop cancels the job's context with cause, if it is still live
func (c *Controller) stop(id string, cause error) {
	c.mu.Lock()
	cancel, ok := c.cancels[id]
	c.mu.Unlock()
	if ok {
		cancel(cause)
	}
}

func (c *Controller) cleanup(id string) {
	c.mu.Lock()
	if cancel, ok := c.cancels[id]; ok {
		cancel(nil)
		delete(c.cancels, id)
	}
	c.mu.Unlock()
}

// execute waits for a slot and drives the optimizer to a terminal state
func (c *Controller) execute(ctx context.Context, rec *JobRecord) {
	defer c.wg.Done()
	id := rec.job.ID
	defer c.cleanup(id)

	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		c.abandonPending(rec, context.Cause(ctx))
		return
	}
	defer func() { <-c.slots }()

	job, err := c.store.TransitionFrom(id, models.JobStatusPending, models.JobStatusRunning, models.ReasonNone, "")
	if err != nil {
		// cancelled while waiting for the slot
		return
	}
	jobsRunning.Inc()
	defer jobsRunning.Dec()

	ctx, span := tracer.Start(ctx, "optd.job", trace.WithAttributes(
		attribute.String("job_id", id),
		attribute.Int("population", rec.spec.PopulationSize),
		attribute.Int("generations", rec.spec.TotalGenerations),
	))
	defer span.End()

	rec.series.Start()
	defer rec.series.Stop()
	rec.progress.publish(c.snapshot(rec, job, nil))
	logger.Info("job started", "job_id", id)

	start := time.Now()
	var deadline time.Time
	if rec.budget > 0 {
		deadline = start.Add(rec.budget)
	}
	var limiter *rate.Limiter
	if c.opts.Pacing > 0 {
		limiter = rate.NewLimiter(rate.Every(c.opts.Pacing), 1)
	}

	attempting := 0
	var last *improvement.GenerationReport
	hooks := improvement.Hooks{
		Boundary: func(next int) error {
			if cause := context.Cause(ctx); cause != nil {
				return cause
			}
			if !deadline.IsZero() && !time.Now().Before(deadline) {
				return errBudgetExceeded
			}
			if limiter != nil && next > 0 {
				if err := limiter.Wait(ctx); err != nil {
					if cause := context.Cause(ctx); cause != nil {
						return cause
					}
					return err
				}
			}
			attempting = next
			return nil
		},
		Report: func(r improvement.GenerationReport) {
			last = &r
			c.report(ctx, rec, r)
		},
	}

	// a generation in flight always finishes; cancellation is only honoured
	// between generations
	_, runErr := improvement.Run(context.WithoutCancel(ctx), rec.opt, hooks)

	status, reason, msg := classify(runErr)
	if status == models.JobStatusFailed {
		c.store.SetFailedAt(id, attempting)
		span.RecordError(runErr)
		span.SetStatus(otelcodes.Error, msg)
	}
	// results go in before the status flips so a terminal job always has them
	var res *models.JobResults
	if status != models.JobStatusFailed {
		res = buildResults(id, status, reason, rec.opt)
		if err := c.store.SetResults(id, res); err != nil {
			logger.Error("failed to keep results", "job_id", id, "error", err)
		}
	}
	job, err = c.store.Transition(id, status, reason, msg)
	if err != nil {
		logger.Error("failed to record terminal status", "job_id", id, "status", status, "error", err)
		return
	}
	jobDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("status", string(status)), attribute.String("reason", string(reason)))
	c.finish(rec, job, res, last)

	switch status {
	case models.JobStatusFailed:
		logger.Error("job failed",
			"job_id", id,
			"reason", reason,
			"failed_at_generation", attempting,
			"error", runErr)
	default:
		logger.Info("job finished",
			"job_id", id,
			"status", status,
			"reason", reason,
			"generations", job.CurrentGeneration,
			"evaluations", job.Evaluations,
			"pareto_size", job.ParetoSize,
			"duration", time.Since(start))
	}
}

// abandonPending finishes a job whose context ended before it got a slot
func (c *Controller) abandonPending(rec *JobRecord, cause error) {
	reason := models.ReasonUserCancelled
	if errors.Is(cause, errShutdown) {
		reason = models.ReasonShutdown
	}
	job, err := c.store.TransitionFrom(rec.job.ID, models.JobStatusPending, models.JobStatusCancelled, reason, "")
	if err != nil {
		// Cancel already moved it
		return
	}
	c.finish(rec, job, nil, nil)
}

// classify maps the outcome of a run to a terminal status
func classify(err error) (models.JobStatus, models.ReasonCode, string) {
	switch {
	case err == nil:
		return models.JobStatusCompleted, models.ReasonNone, ""
	case errors.Is(err, improvement.ErrStopped):
		switch {
		case errors.Is(err, errBudgetExceeded):
			return models.JobStatusCancelled, models.ReasonWallClockBudget, ""
		case errors.Is(err, errShutdown):
			return models.JobStatusCancelled, models.ReasonShutdown, ""
		default:
			return models.JobStatusCancelled, models.ReasonUserCancelled, ""
		}
	case errors.Is(err, surrogate.ErrSurrogateUnavailable):
		return models.JobStatusFailed, models.ReasonSurrogateUnavailable, err.Error()
	default:
		return models.JobStatusFailed, models.ReasonInternal, err.Error()
	}
}

// report records a finished generation and publishes its snapshot. The last
// generation is published by finish with the terminal status instead.
func (c *Controller) report(ctx context.Context, rec *JobRecord, r improvement.GenerationReport) {
	job, err := c.store.Progress(rec.job.ID, r)
	if err != nil {
		logger.Error("failed to record progress", "job_id", rec.job.ID, "error", err)
		return
	}

	objs := rec.problem.Objectives
	best := make(map[string]float64, len(r.Best))
	for i, v := range r.Best {
		if i < len(objs) {
			best[objs[i].Name] = v
		}
	}
	metrics.RecordGeneration(rec.series, metrics.GenerationSample{
		Generation:       r.Generation,
		Evaluations:      r.Evaluations,
		ParetoSize:       r.ParetoSize,
		Saturated:        r.Saturated,
		FeasibleFraction: r.FeasibleFraction,
		Best:             best,
		Duration:         r.Duration,
		Unanswered:       r.BatchStats.Unanswered,
		CacheHits:        r.BatchStats.CacheHits,
	})
	generationsTotal.Inc()
	designEvaluationsTotal.Add(float64(r.BatchStats.Evaluations))
	generationDuration.Observe(r.Duration.Seconds())
	trace.SpanFromContext(ctx).AddEvent("generation", trace.WithAttributes(
		attribute.Int("generation", r.Generation),
		attribute.Int("evaluations", r.Evaluations),
		attribute.Int("pareto_size", r.ParetoSize),
		attribute.Float64("feasible_fraction", r.FeasibleFraction),
	))

	logger.Debug("generation finished",
		"job_id", rec.job.ID,
		"generation", r.Generation,
		"evaluations", r.Evaluations,
		"pareto_size", r.ParetoSize,
		"feasible_fraction", r.FeasibleFraction,
		"duration", r.Duration)

	if r.Generation < r.TotalGenerations {
		rec.progress.publish(c.snapshot(rec, job, &r))
	}
}

// finish persists a terminal job, publishes its terminal snapshot and fires
// the callback. A cancelled job without results gets an empty result set.
func (c *Controller) finish(rec *JobRecord, job models.Job, res *models.JobResults, last *improvement.GenerationReport) {
	if res == nil && job.Status == models.JobStatusCancelled {
		res = emptyResults(job, rec.problem)
		if err := c.store.SetResults(job.ID, res); err != nil {
			logger.Error("failed to keep results", "job_id", job.ID, "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stored := StoredJob{
		Job:         job,
		Spec:        rec.spec,
		Constraints: ConstraintSpecs(rec.problem.Constraints),
		Parameters:  map[string]float64(rec.problem.Parameters),
		Results:     res,
	}
	if err := c.results.Save(ctx, stored); err != nil {
		logger.Error("failed to persist job", "job_id", job.ID, "error", err)
	}

	rec.progress.publish(c.snapshot(rec, job, last))
	jobsFinished.WithLabelValues(string(job.Status), string(job.Reason)).Inc()

	if c.notifier != nil && rec.spec.Callback != nil {
		c.notifier.Notify(rec.spec.Callback.URL, rec.spec.Callback.Secret, job)
	}
}

// snapshot builds the progress value for job; r is the latest finished
// generation, if any
func (c *Controller) snapshot(rec *JobRecord, job models.Job, r *improvement.GenerationReport) models.ProgressSnapshot {
	snap := models.ProgressSnapshot{
		JobID:              job.ID,
		Status:             job.Status,
		Reason:             job.Reason,
		Generation:         job.CurrentGeneration,
		TotalGenerations:   job.TotalGenerations,
		Evaluations:        job.Evaluations,
		ParetoSize:         job.ParetoSize,
		FailedAtGeneration: job.FailedAtGeneration,
		Error:              job.Error,
		TimestampUnixMs:    nowUnixMs(),
	}
	if job.StartedAtUnixMs > 0 {
		end := snap.TimestampUnixMs
		if job.EndedAtUnixMs > 0 {
			end = job.EndedAtUnixMs
		}
		snap.ElapsedMs = end - job.StartedAtUnixMs
	}
	if r != nil {
		snap.ParetoGrowth = r.ParetoGrowth
		snap.ParetoSaturated = r.Saturated
		snap.FeasibleFraction = r.FeasibleFraction
		snap.Best = bestValues(rec.problem.Objectives, r.Best)
	}
	return snap
}

func bestValues(objs []improvement.Objective, best []float64) []models.ObjectiveBest {
	if len(best) == 0 {
		return nil
	}
	out := make([]models.ObjectiveBest, 0, len(best))
	for i, v := range best {
		if i >= len(objs) || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, models.ObjectiveBest{
			Objective: objs[i].Name,
			Direction: string(objs[i].Direction),
			Value:     v,
		})
	}
	return out
}

func objectiveNames(objs []improvement.Objective) []string {
	names := make([]string, len(objs))
	for i, o := range objs {
		names[i] = o.Name
	}
	return names
}

func buildResults(id string, status models.JobStatus, reason models.ReasonCode, opt *improvement.Optimizer) *models.JobResults {
	p := opt.Problem()
	inds := opt.Results()
	designs := make([]models.ParetoDesign, len(inds))
	for i, ind := range inds {
		designs[i] = ind.Design(p.Space, p.Objectives)
	}
	return &models.JobResults{
		JobID:         id,
		Status:        status,
		Reason:        reason,
		Generations:   opt.Generation(),
		Evaluations:   int64(opt.Evaluations()),
		Objectives:    objectiveNames(p.Objectives),
		ParetoDesigns: designs,
	}
}

func emptyResults(job models.Job, p improvement.Problem) *models.JobResults {
	return &models.JobResults{
		JobID:         job.ID,
		Status:        job.Status,
		Reason:        job.Reason,
		Objectives:    objectiveNames(p.Objectives),
		ParetoDesigns: []models.ParetoDesign{},
	}
}

// Get returns the current state of a job, including jobs finished before a
// restart
func (c *Controller) Get(ctx context.Context, id string) (models.Job, error) {
	if job, ok := c.store.Get(id); ok {
		return job, nil
	}
	stored, err := c.results.Load(ctx, id)
	if err != nil {
		return models.Job{}, err
	}
	return stored.Job, nil
}

// List returns a page of jobs, newest first, and the number of jobs matching f
func (c *Controller) List(ctx context.Context, f ListFilter) ([]models.Job, int, error) {
	live, _ := c.store.List(ListFilter{Status: f.Status, Limit: math.MaxInt})
	stored, err := c.results.List(ctx)
	if err != nil {
		return nil, 0, err
	}

	seen := make(map[string]bool, len(live))
	all := make([]models.Job, 0, len(live)+len(stored))
	for _, job := range live {
		seen[job.ID] = true
		all = append(all, job)
	}
	for _, job := range stored {
		if seen[job.ID] || (f.Status != "" && job.Status != f.Status) {
			continue
		}
		all = append(all, job)
	}
	sortNewestFirst(all)

	if f.Limit <= 0 {
		f.Limit = 50
	}
	total := len(all)
	if f.Offset >= total {
		return []models.Job{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total || end < 0 {
		end = total
	}
	return all[f.Offset:end], total, nil
}

// Results returns the result set of a completed or cancelled job. Other
// jobs return ErrJobNotCompleted.
func (c *Controller) Results(ctx context.Context, id string) (*models.JobResults, error) {
	job, res, ok := c.store.Results(id)
	if !ok {
		stored, err := c.results.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		job, res = stored.Job, stored.Results
	}
	if job.Status != models.JobStatusCompleted && job.Status != models.JobStatusCancelled {
		return nil, fmt.Errorf("%w: job %s is %s", ErrJobNotCompleted, id, job.Status)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: job %s has no results", ErrJobNotCompleted, id)
	}
	return res, nil
}

// Subscribe returns a subscription to a job's progress. It starts with the
// latest snapshot; for a finished job that is the terminal one and the
// channel is already closed.
func (c *Controller) Subscribe(ctx context.Context, id string) (*Subscription, error) {
	if rec, ok := c.store.record(id); ok {
		return rec.progress.subscribe(), nil
	}
	stored, err := c.results.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	b := newBroker()
	b.publish(c.snapshot(&JobRecord{progress: b}, stored.Job, nil))
	return b.subscribe(), nil
}

// TimeSeries returns the per-generation metrics of a job recorded after
// generation since. Jobs loaded from the result store have none.
func (c *Controller) TimeSeries(ctx context.Context, id string, since int) ([]metrics.Point, error) {
	if rec, ok := c.store.record(id); ok {
		return rec.series.Since(since), nil
	}
	if _, err := c.results.Load(ctx, id); err != nil {
		return nil, err
	}
	return []metrics.Point{}, nil
}

// AnalyzeReliability runs a reliability analysis of one design of job id.
// Any job may be analyzed, whatever its status, since only its problem
// definition is used.
func (c *Controller) AnalyzeReliability(ctx context.Context, id string, spec *config.ReliabilitySpec) (models.ReliabilityResult, error) {
	res, err := c.analyze(ctx, id, spec)
	switch {
	case err == nil:
		reliabilityRequests.WithLabelValues("ok").Inc()
	case errors.Is(err, reliability.ErrInvalidRequest):
		reliabilityRequests.WithLabelValues("invalid").Inc()
	case errors.Is(err, reliability.ErrSamplingFailed):
		reliabilityRequests.WithLabelValues("sampling_failed").Inc()
	default:
		reliabilityRequests.WithLabelValues("error").Inc()
	}
	return res, err
}

func (c *Controller) analyze(ctx context.Context, id string, spec *config.ReliabilitySpec) (models.ReliabilityResult, error) {
	if spec == nil {
		return models.ReliabilityResult{}, fmt.Errorf("%w: reliability spec is required", reliability.ErrInvalidRequest)
	}
	if err := config.ValidateReliabilitySpec(spec); err != nil {
		return models.ReliabilityResult{}, fmt.Errorf("%w: %w", reliability.ErrInvalidRequest, err)
	}
	rec, err := c.analysisRecord(ctx, id)
	if err != nil {
		return models.ReliabilityResult{}, err
	}

	p := rec.problem
	v, err := p.Space.NewVector(spec.DesignVector)
	if err != nil {
		return models.ReliabilityResult{}, fmt.Errorf("%w: %w", reliability.ErrInvalidRequest, err)
	}

	var primary constraint.Constraint
	var ok bool
	if spec.PrimaryConstraint != "" {
		if primary, ok = p.Constraints.Get(spec.PrimaryConstraint); !ok {
			return models.ReliabilityResult{}, fmt.Errorf("%w: job has no constraint %s", reliability.ErrInvalidRequest, spec.PrimaryConstraint)
		}
	} else if primary, ok = p.Constraints.Primary(); !ok {
		return models.ReliabilityResult{}, fmt.Errorf("%w: job has no primary constraint", reliability.ErrInvalidRequest)
	}

	res, err := rec.analyzer.Analyze(ctx, reliability.Request{
		Vector:             v,
		Nominal:            design.Merge(p.Parameters, p.Space.Named(v)),
		Uncertainty:        spec.Uncertainty,
		SampleCount:        spec.SampleCount,
		Primary:            primary,
		Seed:               spec.Seed,
		SensitivityStepPct: spec.SensitivityStepPct,
		SkipDecomposition:  spec.SkipDecomposition,
	})
	if err != nil {
		return models.ReliabilityResult{}, err
	}
	res.JobID = id
	logger.Info("reliability analysis finished",
		"job_id", id,
		"primary_constraint", primary.Name,
		"samples", res.SampleCount,
		"failure_probability", res.FailureProbability,
		"duration_ms", res.DurationMs)
	return res, nil
}

// analysisRecord finds the problem and analyzer of a job, rebuilding them
// from the result store for jobs that finished before a restart
func (c *Controller) analysisRecord(ctx context.Context, id string) (*JobRecord, error) {
	if rec, ok := c.store.record(id); ok {
		return rec, nil
	}
	c.mu.Lock()
	rec, ok := c.restored[id]
	c.mu.Unlock()
	if ok {
		return rec, nil
	}

	stored, err := c.results.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored.Spec == nil {
		return nil, fmt.Errorf("stored job %s has no spec", id)
	}
	spec := *stored.Spec
	spec.RuleSet = ""
	spec.Constraints = stored.Constraints
	spec.Parameters = stored.Parameters
	problem, err := BuildProblem(&spec, c.registry, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild job %s: %w", id, err)
	}

	rec = &JobRecord{
		spec:     stored.Spec,
		problem:  problem,
		analyzer: c.newAnalyzer(c.opts.EvalWorkers),
		job:      stored.Job,
	}
	c.mu.Lock()
	if existing, ok := c.restored[id]; ok {
		rec = existing
	} else {
		c.restored[id] = rec
	}
	c.mu.Unlock()
	return rec, nil
}

// Counts returns the number of in-memory jobs per status
func (c *Controller) Counts() map[models.JobStatus]int {
	return c.store.Counts()
}

// Shutdown stops accepting jobs, cancels every live job with reason
// shutdown and waits for them and for pending callbacks until ctx is done
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	for _, cancel := range c.cancels {
		cancel(errShutdown)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for jobs: %w", ctx.Err())
	}

	if c.notifier != nil {
		if err := c.notifier.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for callbacks: %w", err)
		}
	}
	return nil
}
