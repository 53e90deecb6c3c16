package reliability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/constraint"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/surrogate"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/logger"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/utils"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var (
	ErrInvalidRequest = errors.New("invalid reliability request")
	// ErrSamplingFailed is returned when more than half of the samples could
	// not be evaluated
	ErrSamplingFailed = errors.New("reliability sampling failed")
)

const (
	// DefaultMaxSamples caps the sample count of one request
	DefaultMaxSamples = 1_000_000
	// DefaultSensitivityStepPct is the finite-difference step in percent of nominal
	DefaultSensitivityStepPct = 1.0
	// InteractionSource names the variance share not explained by any single source
	InteractionSource = "interaction"

	chunkSize = 512
)

var tracer = otel.Tracer("github.com/GoSim-25-26J-441/vessel-optimizer/internal/reliability")

// Evaluator scores one parameter set; surrogate.Evaluator implements it
type Evaluator interface {
	EvaluateAll(ctx context.Context, params design.Params) surrogate.Evaluation
}

// Request describes one analysis. Nominal holds every input the surrogates
// need: the design merged over the job's fixed parameters.
type Request struct {
	Vector             design.Vector
	Nominal            design.Params
	Uncertainty        []config.UncertaintySpec
	SampleCount        int
	Primary            constraint.Constraint
	Seed               int64 // zero picks a time-based seed
	SensitivityStepPct float64
	SkipDecomposition  bool
}

// Analyzer runs Monte Carlo reliability analyses. It is safe for concurrent
// use; identical seeded requests in flight share one computation and their
// results are cached.
type Analyzer struct {
	eval       Evaluator
	workers    int
	maxSamples int
	cache      *cache.Cache
	group      singleflight.Group
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithWorkers bounds the number of sample chunks evaluated concurrently
func WithWorkers(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithMaxSamples caps the sample count of a single request
func WithMaxSamples(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxSamples = n
		}
	}
}

// WithCache keeps results of seeded requests for ttl
func WithCache(ttl time.Duration) Option {
	return func(a *Analyzer) {
		if ttl > 0 {
			a.cache = cache.New(ttl, 2*ttl)
		}
	}
}

// NewAnalyzer creates an analyzer over eval
func NewAnalyzer(eval Evaluator, opts ...Option) *Analyzer {
	a := &Analyzer{
		eval:       eval,
		workers:    runtime.GOMAXPROCS(0),
		maxSamples: DefaultMaxSamples,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs the analysis described by req. The returned result is a fresh
// value; its slices must be treated as read-only since cached results share them.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (models.ReliabilityResult, error) {
	if err := a.validate(req); err != nil {
		return models.ReliabilityResult{}, err
	}
	if req.Seed == 0 || a.cache == nil {
		return a.run(ctx, req)
	}

	key, err := requestKey(req)
	if err != nil {
		return a.run(ctx, req)
	}
	if cached, ok := a.cache.Get(key); ok {
		cacheHitsTotal.Inc()
		return cached.(models.ReliabilityResult), nil
	}

	v, err, _ := a.group.Do(key, func() (any, error) {
		if cached, ok := a.cache.Get(key); ok {
			return cached, nil
		}
		res, err := a.run(ctx, req)
		if err != nil {
			return nil, err
		}
		a.cache.Set(key, res, cache.DefaultExpiration)
		return res, nil
	})
	if err != nil {
		return models.ReliabilityResult{}, err
	}
	res, ok := v.(models.ReliabilityResult)
	if !ok {
		return models.ReliabilityResult{}, fmt.Errorf("unexpected type from singleflight group: got %T", v)
	}
	return res, nil
}

func (a *Analyzer) validate(req Request) error {
	if req.SampleCount <= 0 {
		return fmt.Errorf("%w: sample count must be positive, got %d", ErrInvalidRequest, req.SampleCount)
	}
	if req.SampleCount > a.maxSamples {
		return fmt.Errorf("%w: sample count %d exceeds the limit of %d", ErrInvalidRequest, req.SampleCount, a.maxSamples)
	}
	if req.Primary.Metric == "" {
		return fmt.Errorf("%w: no primary constraint", ErrInvalidRequest)
	}
	if len(req.Uncertainty) == 0 {
		return fmt.Errorf("%w: no uncertain parameters", ErrInvalidRequest)
	}
	seen := make(map[string]bool, len(req.Uncertainty))
	for _, u := range req.Uncertainty {
		if _, ok := req.Nominal[u.Parameter]; !ok {
			return fmt.Errorf("%w: uncertain parameter %s has no nominal value", ErrInvalidRequest, u.Parameter)
		}
		if seen[u.Parameter] {
			return fmt.Errorf("%w: duplicate uncertainty for %s", ErrInvalidRequest, u.Parameter)
		}
		seen[u.Parameter] = true
	}
	if req.SensitivityStepPct < 0 {
		return fmt.Errorf("%w: sensitivity step must not be negative", ErrInvalidRequest)
	}
	return nil
}

func (a *Analyzer) run(ctx context.Context, req Request) (models.ReliabilityResult, error) {
	ctx, span := tracer.Start(ctx, "reliability.Analyze")
	defer span.End()
	span.SetAttributes(
		attribute.Int("samples", req.SampleCount),
		attribute.String("primary_constraint", req.Primary.Name),
	)

	start := time.Now()
	rng := utils.NewRandSource(req.Seed)

	sources := make([]Source, len(req.Uncertainty))
	for i, u := range req.Uncertainty {
		src, err := NewSource(u, req.Nominal[u.Parameter])
		if err != nil {
			return models.ReliabilityResult{}, err
		}
		sources[i] = src
	}

	all := make([]bool, len(sources))
	for i := range all {
		all[i] = true
	}
	joint, err := a.sample(ctx, req, sources, all, rng.Derive(0))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.ReliabilityResult{}, err
	}
	if joint.errors*2 > req.SampleCount {
		err := fmt.Errorf("%w: %d of %d samples could not be evaluated", ErrSamplingFailed, joint.errors, req.SampleCount)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.ReliabilityResult{}, err
	}

	valid := len(joint.outputs)
	p := float64(joint.failed) / float64(valid)
	res := models.ReliabilityResult{
		DesignVector:       append([]float64(nil), req.Vector...),
		PrimaryConstraint:  req.Primary.Name,
		RequestedSamples:   req.SampleCount,
		SampleCount:        valid,
		FailedEvaluations:  joint.errors,
		FailedCount:        joint.failed,
		FailureProbability: p,
		RelativeStdError:   relativeStdError(p, valid),
		OutputDistribution: summarize(req.Primary.Metric, joint.outputs),
		Seed:               rng.Seed(),
	}

	if !req.SkipDecomposition {
		contributions, err := a.decompose(ctx, req, sources, variance(joint.outputs), rng)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return models.ReliabilityResult{}, err
		}
		res.UncertaintyContributions = contributions
	}
	res.Sensitivity = a.sensitivity(ctx, req, sources)
	res.DurationMs = time.Since(start).Milliseconds()

	analysesTotal.Inc()
	analysisDuration.Observe(time.Since(start).Seconds())
	logger.Debug("reliability analysis finished",
		"primary_constraint", req.Primary.Name,
		"samples", valid,
		"failure_probability", p,
		"seed", res.Seed,
		"duration_ms", res.DurationMs,
	)
	return res, nil
}

// relativeStdError is sqrt((1-p)/(p*n)); it is undefined when no sample failed
func relativeStdError(p float64, n int) *float64 {
	if p <= 0 || n <= 0 {
		return nil
	}
	rse := math.Sqrt((1 - p) / (p * float64(n)))
	return &rse
}

// decompose estimates each source's share of the output variance by varying
// it alone over the same number of samples
func (a *Analyzer) decompose(ctx context.Context, req Request, sources []Source, total float64, rng *utils.RandSource) ([]models.UncertaintyContribution, error) {
	out := make([]models.UncertaintyContribution, len(sources))
	sum := 0.0
	for j, src := range sources {
		out[j] = models.UncertaintyContribution{Source: src.Parameter}
		if !src.Varies() || total <= 0 {
			continue
		}
		only := make([]bool, len(sources))
		only[j] = true
		set, err := a.sample(ctx, req, sources, only, rng.Derive(int64(j+1)))
		if err != nil {
			return nil, err
		}
		frac := variance(set.outputs) / total
		out[j].VarianceFraction = frac
		sum += frac
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].VarianceFraction > out[j].VarianceFraction
	})
	if total > 0 && sum < 1 {
		out = append(out, models.UncertaintyContribution{Source: InteractionSource, VarianceFraction: 1 - sum})
	}
	return out, nil
}

// sensitivity is the central finite-difference change of the primary output
// per percent change of each uncertain parameter, largest effect first.
// Parameters whose perturbed designs cannot be evaluated are left out.
func (a *Analyzer) sensitivity(ctx context.Context, req Request, sources []Source) []models.Sensitivity {
	step := req.SensitivityStepPct
	if step == 0 {
		step = DefaultSensitivityStepPct
	}

	out := make([]models.Sensitivity, 0, len(sources))
	for _, src := range sources {
		if src.Nominal == 0 {
			out = append(out, models.Sensitivity{Parameter: src.Parameter})
			continue
		}
		h := src.Nominal * step / 100

		up := design.Merge(req.Nominal, design.Params{src.Parameter: src.Nominal + h})
		down := design.Merge(req.Nominal, design.Params{src.Parameter: src.Nominal - h})
		fUp, _, okUp := classify(a.eval.EvaluateAll(ctx, up), up, req.Primary)
		fDown, _, okDown := classify(a.eval.EvaluateAll(ctx, down), down, req.Primary)
		if !okUp || !okDown {
			continue
		}
		out = append(out, models.Sensitivity{
			Parameter:        src.Parameter,
			EffectPerPercent: (fUp - fDown) / (2 * step),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].EffectPerPercent) > math.Abs(out[j].EffectPerPercent)
	})
	return out
}

// requestKey identifies a seeded request for caching. Maps marshal with
// sorted keys so the key is stable.
func requestKey(req Request) (string, error) {
	b, err := json.Marshal(struct {
		Nominal     design.Params
		Uncertainty []config.UncertaintySpec
		Samples     int
		Primary     constraint.Constraint
		Seed        int64
		Step        float64
		Skip        bool
	}{req.Nominal, req.Uncertainty, req.SampleCount, req.Primary, req.Seed, req.SensitivityStepPct, req.SkipDecomposition})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
