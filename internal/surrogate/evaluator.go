package surrogate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
)

// WorstCaseValue replaces any output that is missing, NaN or infinite so that
// fitness stays defined everywhere in the design space.
const WorstCaseValue = 1e30

// ErrSurrogateUnavailable is returned when no model answered for any member of a batch
var ErrSurrogateUnavailable = errors.New("surrogate layer unavailable")

// Output is one model's answer for one design
type Output struct {
	Estimate
	Err error
}

// Anomalous reports whether the output cannot be used as-is
func (o Output) Anomalous() bool {
	return o.Err != nil || !finite(o.Value)
}

// Answered reports whether the model responded at all
func (o Output) Answered() bool {
	return o.Err == nil || !errors.Is(o.Err, ErrModelUnavailable)
}

// Evaluation holds every model's output for one design
type Evaluation struct {
	Outputs map[string]Output
	// Infeasible is set when at least one output is anomalous
	Infeasible bool
	Anomalies  []string
	Answered   int
	CacheHits  int
}

// Value returns the named output, substituting WorstCaseValue for anomalies
// and missing models.
func (e Evaluation) Value(name string) float64 {
	out, ok := e.Outputs[name]
	if !ok || out.Anomalous() {
		return WorstCaseValue
	}
	return out.Value
}

// Values returns every output by name with worst-case substitution applied
func (e Evaluation) Values() design.Params {
	vals := make(design.Params, len(e.Outputs))
	for name := range e.Outputs {
		vals[name] = e.Value(name)
	}
	return vals
}

// BatchStats summarizes one batch evaluation
type BatchStats struct {
	Evaluations int
	Infeasible  int
	Unanswered  int
	CacheHits   int
	Duration    time.Duration
}

// Evaluator dispatches designs to every model of a registry snapshot
type Evaluator struct {
	models  []Model
	workers int
	cache   *cache.Cache
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithWorkers bounds the number of concurrent evaluations in a batch
func WithWorkers(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithCache memoizes successful outputs per model and parameter set for ttl
func WithCache(ttl time.Duration) Option {
	return func(e *Evaluator) {
		if ttl > 0 {
			e.cache = cache.New(ttl, 2*ttl)
		}
	}
}

// NewEvaluator snapshots reg and returns an evaluator over it
func NewEvaluator(reg *Registry, opts ...Option) *Evaluator {
	snap := reg.Snapshot()
	e := &Evaluator{workers: runtime.GOMAXPROCS(0)}
	for _, name := range snap.Names() {
		m, _ := snap.Get(name)
		e.models = append(e.models, m)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ModelNames returns the names of the models this evaluator dispatches to
func (e *Evaluator) ModelNames() []string {
	names := make([]string, len(e.models))
	for i, m := range e.models {
		names[i] = m.Name()
	}
	return names
}

// EvaluateAll runs every model for one design. It never returns an error:
// failures and invalid values are recorded on the evaluation instead.
func (e *Evaluator) EvaluateAll(ctx context.Context, params design.Params) Evaluation {
	ev := Evaluation{Outputs: make(map[string]Output, len(e.models))}

	var key string
	if e.cache != nil {
		key = paramsKey(params)
	}

	for _, m := range e.models {
		name := m.Name()
		if e.cache != nil {
			if cached, ok := e.cache.Get(name + "|" + key); ok {
				ev.Outputs[name] = Output{Estimate: cached.(Estimate)}
				ev.Answered++
				ev.CacheHits++
				cacheHitsTotal.Inc()
				continue
			}
		}

		out := evaluateModel(ctx, m, params)
		ev.Outputs[name] = out
		switch {
		case !out.Answered():
			evaluationsTotal.WithLabelValues(name, "unavailable").Inc()
		case out.Anomalous():
			ev.Answered++
			evaluationsTotal.WithLabelValues(name, "anomaly").Inc()
		default:
			ev.Answered++
			evaluationsTotal.WithLabelValues(name, "ok").Inc()
			if e.cache != nil {
				e.cache.Set(name+"|"+key, out.Estimate, cache.DefaultExpiration)
			}
		}
		if out.Anomalous() {
			ev.Infeasible = true
			ev.Anomalies = append(ev.Anomalies, name)
		}
	}
	return ev
}

// EvaluateBatch evaluates designs concurrently, preserving input order in the
// result. It fails with ErrSurrogateUnavailable only when the batch is
// non-empty and not a single model answered for any of its members.
func (e *Evaluator) EvaluateBatch(ctx context.Context, batch []design.Params) ([]Evaluation, BatchStats, error) {
	start := time.Now()
	results := make([]Evaluation, len(batch))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range batch {
		g.Go(func() error {
			results[i] = e.EvaluateAll(ctx, batch[i])
			return nil
		})
	}
	_ = g.Wait()

	stats := BatchStats{Evaluations: len(batch)}
	answeredAny := false
	for _, ev := range results {
		if ev.Infeasible {
			stats.Infeasible++
		}
		if ev.Answered == 0 {
			stats.Unanswered++
		} else {
			answeredAny = true
		}
		stats.CacheHits += ev.CacheHits
	}
	stats.Duration = time.Since(start)
	batchDuration.Observe(stats.Duration.Seconds())

	if len(batch) > 0 && len(e.models) > 0 && !answeredAny {
		cause := firstError(results)
		return results, stats, fmt.Errorf("%w: no model answered for %d designs: %v", ErrSurrogateUnavailable, len(batch), cause)
	}
	return results, stats, nil
}

func evaluateModel(ctx context.Context, m Model, params design.Params) (out Output) {
	defer func() {
		if r := recover(); r != nil {
			out = Output{Estimate: Point(math.NaN()), Err: fmt.Errorf("model %s panicked: %v", m.Name(), r)}
		}
	}()
	est, err := m.Evaluate(ctx, params)
	if err != nil {
		return Output{Estimate: Point(math.NaN()), Err: err}
	}
	// an unusable band around a usable value collapses to the value
	if finite(est.Value) && (!finite(est.Lower) || !finite(est.Upper)) {
		est = Point(est.Value)
	}
	return Output{Estimate: est}
}

func firstError(results []Evaluation) error {
	for _, ev := range results {
		names := make([]string, 0, len(ev.Outputs))
		for name := range ev.Outputs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := ev.Outputs[name].Err; err != nil {
				return err
			}
		}
	}
	return nil
}

func paramsKey(params design.Params) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(params[name], 'g', -1, 64))
		b.WriteByte(';')
	}
	return b.String()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
