package reliability

import (
	"context"
	"math"
	"sort"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/constraint"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/surrogate"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/utils"
	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// sampleSet is the outcome of one Monte Carlo run over the primary output
type sampleSet struct {
	outputs []float64 // primary metric of every usable sample, in draw order
	failed  int       // usable samples violating the primary constraint
	errors  int       // samples that could not be evaluated
}

// sample draws req.SampleCount parameter sets, perturbing only the sources
// flagged in vary, and evaluates them in parallel chunks. Chunk c always
// draws from rng.Derive(c), so results do not depend on the worker count.
func (a *Analyzer) sample(ctx context.Context, req Request, sources []Source, vary []bool, rng *utils.RandSource) (sampleSet, error) {
	n := req.SampleCount
	chunks := (n + chunkSize - 1) / chunkSize
	results := make([]sampleSet, chunks)

	p := pool.New().WithMaxGoroutines(a.workers)
	for c := 0; c < chunks; c++ {
		count := chunkSize
		if rest := n - c*chunkSize; rest < count {
			count = rest
		}
		chunkRng := rng.Derive(int64(c))
		p.Go(func() {
			results[c] = a.runChunk(ctx, req, sources, vary, count, chunkRng)
		})
	}
	p.Wait()
	if err := ctx.Err(); err != nil {
		return sampleSet{}, err
	}

	out := sampleSet{outputs: make([]float64, 0, n)}
	for _, r := range results {
		out.outputs = append(out.outputs, r.outputs...)
		out.failed += r.failed
		out.errors += r.errors
	}
	samplesTotal.Add(float64(n))
	return out, nil
}

func (a *Analyzer) runChunk(ctx context.Context, req Request, sources []Source, vary []bool, count int, rng *utils.RandSource) sampleSet {
	set := sampleSet{outputs: make([]float64, 0, count)}
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			return set
		}
		params := design.Merge(req.Nominal, nil)
		for j, src := range sources {
			// every source consumes a draw so streams line up across runs
			u := rng.OpenFloat64()
			if vary[j] {
				params[src.Parameter] = src.Draw(u)
			}
		}
		value, failed, ok := classify(a.eval.EvaluateAll(ctx, params), params, req.Primary)
		if !ok {
			set.errors++
			continue
		}
		set.outputs = append(set.outputs, value)
		if failed {
			set.failed++
		}
	}
	return set
}

// classify reads the primary output of one evaluation and reports whether the
// primary constraint is violated. ok is false when the outputs the constraint
// depends on are missing or anomalous.
func classify(ev surrogate.Evaluation, params design.Params, primary constraint.Constraint) (value float64, failed bool, ok bool) {
	if ev.Answered == 0 {
		return 0, false, false
	}
	for _, name := range []string{primary.Metric, primary.Ref} {
		if out, present := ev.Outputs[name]; present && out.Anomalous() {
			return 0, false, false
		}
	}
	values := design.Merge(params, ev.Values())
	value, present := values[primary.Metric]
	if !present {
		return 0, false, false
	}
	_, failed = primary.Check(values)
	return value, failed, true
}

// variance is the sample variance, zero for fewer than two samples
func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	v := stat.Variance(xs, nil)
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// summarize describes the sampled distribution of the primary output
func summarize(metric string, xs []float64) models.DistributionSummary {
	s := models.DistributionSummary{Metric: metric}
	if len(xs) == 0 {
		return s
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	s.Mean = stat.Mean(xs, nil)
	s.StdDev = math.Sqrt(variance(xs))
	s.Min = floats.Min(xs)
	s.Max = floats.Max(xs)
	q := func(p float64) float64 {
		return stat.Quantile(p, stat.Empirical, sorted, nil)
	}
	s.P01 = q(0.01)
	s.P05 = q(0.05)
	s.P50 = q(0.50)
	s.P95 = q(0.95)
	s.P99 = q(0.99)
	return s
}
