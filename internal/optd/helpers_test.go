package optd

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/surrogate"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
)

// testRegistry holds two competing objectives over genes x and y and the
// sum g used by constraints
func testRegistry(t *testing.T) *surrogate.Registry {
	t.Helper()
	reg, err := surrogate.NewRegistry(
		surrogate.NewPointFunc("f1", func(p design.Params) float64 {
			return p["x"]*p["x"] + p["y"]*p["y"]
		}),
		surrogate.NewPointFunc("f2", func(p design.Params) float64 {
			return (p["x"]-2)*(p["x"]-2) + p["y"]*p["y"]
		}),
		surrogate.NewPointFunc("g", func(p design.Params) float64 {
			return p["x"] + p["y"]
		}),
	)
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}
	return reg
}

// failingRegistry answers the first `answered` calls of each model and is
// unavailable afterwards
func failingRegistry(t *testing.T, answered int64) *surrogate.Registry {
	t.Helper()
	model := func(name string, fn func(design.Params) float64) surrogate.Model {
		var calls atomic.Int64
		return surrogate.NewFunc(name, func(_ context.Context, p design.Params) (surrogate.Estimate, error) {
			if calls.Add(1) > answered {
				return surrogate.Estimate{}, surrogate.ErrModelUnavailable
			}
			return surrogate.Point(fn(p)), nil
		})
	}
	reg, err := surrogate.NewRegistry(
		model("f1", func(p design.Params) float64 { return p["x"] * p["x"] }),
		model("f2", func(p design.Params) float64 { return (p["x"] - 2) * (p["x"] - 2) }),
	)
	if err != nil {
		t.Fatalf("NewRegistry error: %v", err)
	}
	return reg
}

func testSpec(generations int) *config.JobSpec {
	return &config.JobSpec{
		Name: "test",
		DesignSpace: []config.GeneSpec{
			{Name: "x", Type: config.GeneContinuous, Lower: -1, Upper: 3},
			{Name: "y", Type: config.GeneContinuous, Lower: -1, Upper: 1},
		},
		Objectives:       []config.ObjectiveSpec{{Name: "f1"}, {Name: "f2"}},
		Priorities:       []int{1, 2},
		PopulationSize:   8,
		TotalGenerations: generations,
		Seed:             7,
	}
}

func newTestController(t *testing.T, reg *surrogate.Registry, opts Options) *Controller {
	t.Helper()
	c := NewController(reg, nil, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown error: %v", err)
		}
	})
	return c
}

// waitForTerminal drains the job's progress until the terminal snapshot,
// which is published only after the job was persisted
func waitForTerminal(t *testing.T, c *Controller, id string) models.Job {
	t.Helper()
	ctx := context.Background()
	sub, err := c.Subscribe(ctx, id)
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer sub.Cancel()

	timeout := time.After(10 * time.Second)
	for {
		select {
		case _, ok := <-sub.C:
			if !ok {
				job, err := c.Get(ctx, id)
				if err != nil {
					t.Fatalf("Get error: %v", err)
				}
				if !job.Status.Terminal() {
					t.Fatalf("progress closed before job %s finished", id)
				}
				return job
			}
		case <-timeout:
			t.Fatalf("job %s did not finish in time", id)
		}
	}
}

// waitForGeneration polls until job id has finished at least generation
func waitForGeneration(t *testing.T, c *Controller, id string, generation int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := c.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get error: %v", err)
		}
		if job.Status == models.JobStatusRunning && job.CurrentGeneration >= generation {
			return
		}
		if job.Status.Terminal() {
			t.Fatalf("job %s finished early: %s", id, job.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach generation %d", id, generation)
}
