package improvement

import (
	"context"
	"errors"
	"fmt"
)

// ErrStopped is wrapped by Run when a boundary hook stops the run early
var ErrStopped = errors.New("optimization stopped at generation boundary")

// Hooks let a caller observe and steer a run. Both run on the optimizer's
// goroutine.
type Hooks struct {
	// Boundary is consulted before each generation, including the initial
	// one. A non-nil error stops the run; the error is returned wrapped in
	// ErrStopped.
	Boundary func(next int) error
	// Report receives each finished generation in order
	Report func(GenerationReport)
}

// Run drives the optimizer from initialization through TotalGenerations,
// consulting hooks only between generations so a generation is never
// interrupted halfway. The returned report is the last completed one.
func Run(ctx context.Context, opt *Optimizer, hooks Hooks) (GenerationReport, error) {
	var last GenerationReport

	boundary := func(next int) error {
		if hooks.Boundary == nil {
			return nil
		}
		if err := hooks.Boundary(next); err != nil {
			return fmt.Errorf("%w: %w", ErrStopped, err)
		}
		return nil
	}
	report := func(r GenerationReport) {
		last = r
		if hooks.Report != nil {
			hooks.Report(r)
		}
	}

	if err := boundary(0); err != nil {
		return last, err
	}
	r, err := opt.Initialize(ctx)
	if err != nil {
		return last, err
	}
	report(r)

	for !opt.Done() {
		if err := boundary(opt.Generation() + 1); err != nil {
			return last, err
		}
		r, err := opt.Step(ctx)
		if err != nil {
			return last, err
		}
		report(r)
	}
	return last, nil
}
