package improvement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/constraint"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/surrogate"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/utils"
)

var (
	ErrInvalidProblem  = errors.New("invalid optimization problem")
	ErrNotInitialized  = errors.New("optimizer not initialized")
	ErrGenerationsDone = errors.New("all generations already run")
)

// BatchEvaluator scores a batch of named parameter sets; surrogate.Evaluator
// implements it
type BatchEvaluator interface {
	EvaluateBatch(ctx context.Context, batch []design.Params) ([]surrogate.Evaluation, surrogate.BatchStats, error)
}

// Problem is what one job optimizes
type Problem struct {
	Space       *design.Space
	Objectives  []Objective
	Constraints *constraint.Set
	Parameters  design.Params // fixed inputs merged under every design
}

// Settings tune the search
type Settings struct {
	PopulationSize   int
	TotalGenerations int
	TournamentSize   int
	CrossoverRate    float64
	CrossoverEta     float64
	MutationRate     float64 // per gene; zero means 1/genes
	MutationEta      float64
	ArchiveSize      int
	DedupEpsilon     float64
	Crowding         CrowdingMetric
	Seed             int64
}

// DefaultSettings returns the usual NSGA-II operator settings
func DefaultSettings() Settings {
	return Settings{
		PopulationSize:   100,
		TotalGenerations: 50,
		TournamentSize:   2,
		CrossoverRate:    0.9,
		CrossoverEta:     15,
		MutationEta:      20,
		DedupEpsilon:     1e-6,
		Crowding:         CrowdingObjective,
	}
}

// SettingsFromSpec applies a job spec on top of the defaults
func SettingsFromSpec(spec *config.JobSpec) Settings {
	s := DefaultSettings()
	s.PopulationSize = spec.PopulationSize
	s.TotalGenerations = spec.TotalGenerations
	s.Seed = spec.Seed
	o := spec.Settings
	if o.TournamentSize > 0 {
		s.TournamentSize = o.TournamentSize
	}
	if o.CrossoverRate > 0 {
		s.CrossoverRate = o.CrossoverRate
	}
	if o.CrossoverEta > 0 {
		s.CrossoverEta = o.CrossoverEta
	}
	if o.MutationRate > 0 {
		s.MutationRate = o.MutationRate
	}
	if o.MutationEta > 0 {
		s.MutationEta = o.MutationEta
	}
	if o.ArchiveSize > 0 {
		s.ArchiveSize = o.ArchiveSize
	}
	if o.DedupEpsilon > 0 {
		s.DedupEpsilon = o.DedupEpsilon
	}
	if o.CrowdingMetric != "" {
		s.Crowding = CrowdingMetric(o.CrowdingMetric)
	}
	return s
}

// GenerationReport summarises one generation
type GenerationReport struct {
	Generation       int // 0 is the initial population
	TotalGenerations int
	Evaluations      int // cumulative
	BatchStats       surrogate.BatchStats
	ParetoSize       int
	ParetoGrowth     int
	FeasibleFraction float64
	Best             []float64 // per objective, from the archive when it has members
	BestFeasible     bool
	Saturated        bool
	Duration         time.Duration
}

// Optimizer runs NSGA-II over a Problem. It is not safe for concurrent use;
// one goroutine drives it generation by generation.
type Optimizer struct {
	problem   Problem
	settings  Settings
	eval      BatchEvaluator
	rng       *utils.RandSource
	variation *Variation
	archive   *Archive
	tracker   *FrontTracker

	population  []*Individual
	generation  int
	evaluations int
	seq         int
	initialized bool
}

// NewOptimizer validates the problem and settings
func NewOptimizer(problem Problem, eval BatchEvaluator, settings Settings) (*Optimizer, error) {
	if problem.Space == nil || problem.Space.Len() == 0 {
		return nil, fmt.Errorf("%w: empty design space", ErrInvalidProblem)
	}
	if len(problem.Objectives) < 2 {
		return nil, fmt.Errorf("%w: at least 2 objectives required, got %d", ErrInvalidProblem, len(problem.Objectives))
	}
	if settings.PopulationSize <= 0 {
		return nil, fmt.Errorf("%w: population size must be positive, got %d", ErrInvalidProblem, settings.PopulationSize)
	}
	if settings.TotalGenerations < 0 {
		return nil, fmt.Errorf("%w: total generations must not be negative", ErrInvalidProblem)
	}
	if eval == nil {
		return nil, fmt.Errorf("%w: evaluator is required", ErrInvalidProblem)
	}
	switch settings.Crowding {
	case "":
		settings.Crowding = CrowdingObjective
	case CrowdingObjective, CrowdingDecision:
	default:
		return nil, fmt.Errorf("%w: unknown crowding metric %q", ErrInvalidProblem, settings.Crowding)
	}
	if problem.Constraints == nil {
		problem.Constraints, _ = constraint.NewSet("", nil)
	}
	if settings.ArchiveSize <= 0 {
		settings.ArchiveSize = settings.PopulationSize
	}

	return &Optimizer{
		problem:   problem,
		settings:  settings,
		eval:      eval,
		rng:       utils.NewRandSource(settings.Seed),
		variation: NewVariation(problem.Space, settings),
		archive:   NewArchive(problem.Space, settings.ArchiveSize, settings.DedupEpsilon, settings.Crowding),
		tracker:   NewFrontTracker(0),
	}, nil
}

// Initialize samples and evaluates the first population
func (o *Optimizer) Initialize(ctx context.Context) (GenerationReport, error) {
	start := time.Now()
	vectors := make([]design.Vector, o.settings.PopulationSize)
	for i := range vectors {
		vectors[i] = o.problem.Space.SampleRandom(o.rng)
	}
	pop, stats, err := o.evaluate(ctx, vectors)
	if err != nil {
		return GenerationReport{}, err
	}

	fronts := rankPopulation(pop, o.settings.Crowding)
	o.population = pop
	o.initialized = true
	return o.finishGeneration(pop, firstFront(pop, fronts), stats, start), nil
}

// Step runs one generation: variation, evaluation, ranking of parents and
// offspring together, truncation and archive update. On an evaluation error
// the population is left as it was.
func (o *Optimizer) Step(ctx context.Context) (GenerationReport, error) {
	if !o.initialized {
		return GenerationReport{}, ErrNotInitialized
	}
	if o.Done() {
		return GenerationReport{}, ErrGenerationsDone
	}
	start := time.Now()

	offspring := o.breed()
	children, stats, err := o.evaluate(ctx, offspring)
	if err != nil {
		return GenerationReport{}, err
	}

	pool := make([]*Individual, 0, len(o.population)+len(children))
	pool = append(pool, o.population...)
	pool = append(pool, children...)
	fronts := rankPopulation(pool, o.settings.Crowding)
	// the archive sees every non-dominated design, including the ones
	// truncation is about to drop
	front0 := firstFront(pool, fronts)

	next := truncate(pool, fronts, o.settings.PopulationSize)
	// rank and crowding are recomputed within the survivors
	rankPopulation(next, o.settings.Crowding)
	o.population = next
	o.generation++
	return o.finishGeneration(next, front0, stats, start), nil
}

// breed creates PopulationSize offspring vectors by tournament selection,
// crossover and mutation
func (o *Optimizer) breed() []design.Vector {
	n := o.settings.PopulationSize
	out := make([]design.Vector, 0, n+1)
	for len(out) < n {
		p1 := tournament(o.population, o.settings.TournamentSize, o.rng)
		p2 := tournament(o.population, o.settings.TournamentSize, o.rng)
		c1, c2 := o.variation.Crossover(p1.Vector, p2.Vector, o.rng)
		out = append(out, o.variation.Mutate(c1, o.rng), o.variation.Mutate(c2, o.rng))
	}
	return out[:n]
}

func firstFront(pop []*Individual, fronts [][]int) []*Individual {
	if len(fronts) == 0 {
		return nil
	}
	out := make([]*Individual, len(fronts[0]))
	for k, i := range fronts[0] {
		out[k] = pop[i]
	}
	return out
}

func (o *Optimizer) finishGeneration(pop []*Individual, front0 []*Individual, stats surrogate.BatchStats, start time.Time) GenerationReport {
	o.archive.Update(front0)
	o.tracker.Record(o.archive.Len())

	feasible := 0
	for _, ind := range pop {
		if ind.Feasible() {
			feasible++
		}
	}

	report := GenerationReport{
		Generation:       o.generation,
		TotalGenerations: o.settings.TotalGenerations,
		Evaluations:      o.evaluations,
		BatchStats:       stats,
		ParetoSize:       o.archive.Len(),
		ParetoGrowth:     o.tracker.Growth(),
		FeasibleFraction: float64(feasible) / float64(len(pop)),
		Duration:         time.Since(start),
	}
	if best, ok := o.archive.Best(o.problem.Objectives); ok {
		report.Best = best
		report.BestFeasible = true
	} else {
		report.Best = bestOf(pop, o.problem.Objectives)
	}
	report.Saturated, _ = o.tracker.Saturated()
	return report
}

// Done reports whether every generation has run
func (o *Optimizer) Done() bool {
	return o.generation >= o.settings.TotalGenerations
}

// Generation returns the number of completed generations after the initial one
func (o *Optimizer) Generation() int {
	return o.generation
}

// Evaluations returns the cumulative number of design evaluations
func (o *Optimizer) Evaluations() int {
	return o.evaluations
}

// Problem returns the problem being optimized
func (o *Optimizer) Problem() Problem {
	return o.problem
}

// Settings returns the effective settings
func (o *Optimizer) Settings() Settings {
	return o.settings
}

// Population returns the current population
func (o *Optimizer) Population() []*Individual {
	out := make([]*Individual, len(o.population))
	copy(out, o.population)
	return out
}

// Archive returns the Pareto archive
func (o *Optimizer) Archive() *Archive {
	return o.archive
}

// FrontSizes returns the Pareto-size growth curve, one entry per generation
func (o *Optimizer) FrontSizes() []int {
	return o.tracker.Sizes()
}

// Results returns the archive ordered by objective priority. When no feasible
// design was ever found it falls back to the least-violating distinct
// designs of the final population, so callers can see how close the search
// came.
func (o *Optimizer) Results() []*Individual {
	members := o.archive.Members()
	if len(members) > 0 {
		SortByPriority(members, o.problem.Objectives)
		return members
	}

	pop := o.Population()
	sort.SliceStable(pop, func(i, j int) bool {
		if pop[i].TotalViolation != pop[j].TotalViolation {
			return pop[i].TotalViolation < pop[j].TotalViolation
		}
		return pop[i].seq < pop[j].seq
	})
	var out []*Individual
	for _, ind := range pop {
		if len(out) == o.settings.ArchiveSize {
			break
		}
		dup := false
		for _, kept := range out {
			if o.problem.Space.Distance(kept.Vector, ind.Vector) < o.settings.DedupEpsilon {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, ind.snapshot())
		}
	}
	return out
}
