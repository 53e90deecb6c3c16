package improvement

import (
	"context"
	"math"
	"testing"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/constraint"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/surrogate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runToCompletion(t *testing.T, prob Problem, eval BatchEvaluator, s Settings) *Optimizer {
	t.Helper()
	opt, err := NewOptimizer(prob, eval, s)
	require.NoError(t, err)
	_, err = Run(context.Background(), opt, Hooks{})
	require.NoError(t, err)
	return opt
}

func TestTwoGeneCornerScenario(t *testing.T) {
	prob, eval := planeProblem(t)
	opt := runToCompletion(t, prob, eval, smallSettings(40, 40))

	results := opt.Results()
	require.NotEmpty(t, results)
	assertNonDominated(t, results)

	for _, ind := range results {
		assert.True(t, ind.Feasible())
		assert.False(t, ind.Vector[0] > 9 && ind.Vector[1] > 9, "design %v has both genes near 10", ind.Vector)
		assert.Less(t, ind.Vector[0], 1.0)
		assert.Less(t, ind.Vector[1], 1.0)
	}
	for _, ind := range opt.Population() {
		assert.False(t, ind.Vector[0] > 9 && ind.Vector[1] > 9, "population design %v has both genes near 10", ind.Vector)
	}
}

func TestTradeOffFrontScenario(t *testing.T) {
	prob := Problem{
		Space: planeSpace(t, 0, 1),
		Objectives: []Objective{
			{Name: "f1", Direction: Minimize},
			{Name: "f2", Direction: Minimize},
		},
	}
	// front is y = 0 with x spanning [0, 1]
	eval := newEvaluator(t,
		surrogate.NewPointFunc("f1", func(p design.Params) float64 { return p["x"] }),
		surrogate.NewPointFunc("f2", func(p design.Params) float64 {
			g := 1 + 9*p["y"]
			return g * (1 - math.Sqrt(p["x"]/g))
		}),
	)
	opt := runToCompletion(t, prob, eval, smallSettings(40, 60))

	results := opt.Results()
	require.GreaterOrEqual(t, len(results), 5)
	assert.LessOrEqual(t, len(results), 40)
	assertNonDominated(t, results)

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, ind := range results {
		assert.Less(t, ind.Vector[1], 0.3, "design %v far from the front", ind.Vector)
		lo = math.Min(lo, ind.Vector[0])
		hi = math.Max(hi, ind.Vector[0])
	}
	assert.Greater(t, hi-lo, 0.5, "front should spread along x")

	// results come back ordered by the first-priority objective
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Objectives[0], results[i].Objectives[0])
	}

	sizes := opt.FrontSizes()
	assert.Len(t, sizes, 61)
	assert.Greater(t, sizes[len(sizes)-1], 0)
}

func TestMaximizedObjective(t *testing.T) {
	prob := Problem{
		Space: planeSpace(t, 0, 10),
		Objectives: []Objective{
			{Name: "mass", Direction: Minimize},
			{Name: "burst", Direction: Maximize},
		},
	}
	eval := newEvaluator(t,
		surrogate.NewPointFunc("mass", func(p design.Params) float64 { return p["x"] + p["y"] }),
		surrogate.NewPointFunc("burst", func(p design.Params) float64 { return 2 * p["x"] }),
	)
	opt := runToCompletion(t, prob, eval, smallSettings(30, 30))

	results := opt.Results()
	require.NotEmpty(t, results)
	assertNonDominated(t, results)
	for _, ind := range results {
		// y only adds mass
		assert.Less(t, ind.Vector[1], 1.0)
	}
	best, ok := opt.Archive().Best(prob.Objectives)
	require.True(t, ok)
	assert.Greater(t, best[1], 15.0)
}

func TestUnsatisfiableConstraints(t *testing.T) {
	prob, eval := planeProblem(t)
	set, err := constraint.NewSet("contradictory", []constraint.Constraint{
		{Name: "x_high", Metric: "x", Op: constraint.GreaterEqual, Threshold: 20},
		{Name: "x_low", Metric: "x", Op: constraint.LessEqual, Threshold: -5},
	})
	require.NoError(t, err)
	prob.Constraints = set

	s := smallSettings(20, 10)
	s.ArchiveSize = 8
	opt := runToCompletion(t, prob, eval, s)

	assert.Zero(t, opt.Archive().Len())
	results := opt.Results()
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 8)
	for i, ind := range results {
		assert.False(t, ind.Feasible())
		assert.False(t, ind.ConstraintStatus().Feasible)
		if i > 0 {
			assert.LessOrEqual(t, results[i-1].TotalViolation, ind.TotalViolation)
		}
	}
}

func TestInfeasibleStartReachesFeasibility(t *testing.T) {
	prob, eval := planeProblem(t)
	set, err := constraint.NewSet("corner", []constraint.Constraint{
		{Name: "x_floor", Metric: "x", Op: constraint.GreaterEqual, Threshold: 9.5},
		{Name: "y_floor", Metric: "y", Op: constraint.GreaterEqual, Threshold: 9.5},
	})
	require.NoError(t, err)
	prob.Constraints = set

	opt := runToCompletion(t, prob, eval, smallSettings(30, 40))
	results := opt.Results()
	require.NotEmpty(t, results)
	for _, ind := range results {
		assert.True(t, ind.Feasible(), "expected violation gradient to reach the feasible corner")
	}
}
