package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/constraint"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/optd"
	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/surrogate"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/logger"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
)

var (
	rulesDir        string
	reliabilityFile string
	workers         int
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run JOB_FILE",
		Short: "Run a job in-process against the reference vessel surrogates",
		Long: `Run a job file (YAML, or JSON by extension) to completion in this process
and print its Pareto set. With --reliability the given JSON request is analyzed
against the finished job. Ctrl-C cancels the job and prints its partial archive.`,
		Args: cobra.ExactArgs(1),
		RunE: runLocal,
	}
	cmd.Flags().StringVar(&rulesDir, "rules", "", "directory of rule-set files")
	cmd.Flags().StringVar(&reliabilityFile, "reliability", "", "reliability request (JSON) to analyze after the run")
	cmd.Flags().IntVar(&workers, "workers", 0, "surrogate evaluation workers (0 picks a default)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate JOB_FILE",
		Short: "Check a job file against the reference surrogates and rule sets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := config.LoadJobSpec(args[0])
			if err != nil {
				return err
			}
			reg, rules, err := localCatalog()
			if err != nil {
				return err
			}
			p, err := optd.BuildProblem(spec, reg, rules, design.Merge(nil, surrogate.DefaultVesselParameters))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d genes, %d objectives, %d constraints)\n",
				args[0], p.Space.Len(), len(p.Objectives), p.Constraints.Len())
			return nil
		},
	}
}

func localCatalog() (*surrogate.Registry, *constraint.RuleRegistry, error) {
	reg, err := surrogate.NewVesselRegistry()
	if err != nil {
		return nil, nil, err
	}
	if rulesDir == "" {
		rules, err := constraint.NewRuleRegistry()
		return reg, rules, err
	}
	rules, err := constraint.LoadRuleRegistry(rulesDir)
	return reg, rules, err
}

func runLocal(cmd *cobra.Command, args []string) error {
	spec, err := config.LoadJobSpec(args[0])
	if err != nil {
		return err
	}
	var relSpec *config.ReliabilitySpec
	if reliabilityFile != "" {
		if relSpec, err = loadReliabilitySpec(reliabilityFile); err != nil {
			return err
		}
	}
	reg, rules, err := localCatalog()
	if err != nil {
		return err
	}

	controller := optd.NewController(reg, rules, optd.Options{
		EvalWorkers:    workers,
		BaseParameters: design.Merge(nil, surrogate.DefaultVesselParameters),
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := controller.Shutdown(ctx); err != nil {
			logger.Warn("controller shutdown error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job, err := controller.Submit(ctx, spec)
	if err != nil {
		return err
	}
	sub, err := controller.Subscribe(ctx, job.ID)
	if err != nil {
		return err
	}
	defer sub.Cancel()

	out := cmd.OutOrStdout()
	last, err := followLocal(ctx, controller, job.ID, sub, func(s models.ProgressSnapshot) {
		if !jsonOutput {
			printSnapshot(out, s)
		}
	})
	if err != nil {
		return err
	}

	if last.Status == models.JobStatusFailed {
		printJob(out, last)
		return exitCode(exitFailed)
	}
	res, err := controller.Results(context.Background(), job.ID)
	if err != nil {
		return err
	}
	if err := printResults(out, res); err != nil {
		return err
	}

	if relSpec == nil {
		return nil
	}
	rel, err := controller.AnalyzeReliability(context.Background(), job.ID, relSpec)
	if err != nil {
		return err
	}
	return printReliability(out, rel)
}

// followLocal reads progress until the terminal snapshot. An interrupt
// cancels the job and keeps reading until it has stopped.
func followLocal(ctx context.Context, c *optd.Controller, id string, sub *optd.Subscription, fn func(models.ProgressSnapshot)) (models.Job, error) {
	interrupted := ctx.Done()
	for {
		select {
		case <-interrupted:
			interrupted = nil
			logger.Warn("interrupted, cancelling job", "job_id", id)
			if _, err := c.Cancel(id); err != nil {
				return models.Job{}, err
			}
		case snap, ok := <-sub.C:
			if !ok {
				return c.Get(context.Background(), id)
			}
			fn(snap)
		}
	}
}

func loadReliabilitySpec(path string) (*config.ReliabilitySpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reliability file %s: %w", path, err)
	}
	spec, err := config.ParseReliabilitySpecJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reliability file %s: %w", path, err)
	}
	return spec, nil
}
