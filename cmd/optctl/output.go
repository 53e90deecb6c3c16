package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSnapshot(w io.Writer, s models.ProgressSnapshot) {
	best := make([]string, len(s.Best))
	for i, b := range s.Best {
		best[i] = fmt.Sprintf("%s=%s", b.Objective, humanize.FormatFloat("#,###.###", b.Value))
	}
	pareto := fmt.Sprintf("%d (%+d)", s.ParetoSize, s.ParetoGrowth)
	if s.ParetoSaturated {
		pareto += " flat"
	}
	fmt.Fprintf(w, "[%s] gen %d/%d  evals %s  pareto %s  feasible %.0f%%  %s\n",
		s.Status, s.Generation, s.TotalGenerations,
		humanize.Comma(s.Evaluations), pareto, 100*s.FeasibleFraction,
		strings.Join(best, " "))
}

func printJob(w io.Writer, job models.Job) error {
	if jsonOutput {
		return printJSON(w, job)
	}
	fmt.Fprintf(w, "Job:          %s\n", job.ID)
	if job.Name != "" {
		fmt.Fprintf(w, "Name:         %s\n", job.Name)
	}
	status := string(job.Status)
	if job.Reason != "" {
		status += " (" + string(job.Reason) + ")"
	}
	fmt.Fprintf(w, "Status:       %s\n", status)
	fmt.Fprintf(w, "Generation:   %d/%d\n", job.CurrentGeneration, job.TotalGenerations)
	fmt.Fprintf(w, "Evaluations:  %s\n", humanize.Comma(job.Evaluations))
	fmt.Fprintf(w, "Pareto size:  %d\n", job.ParetoSize)
	fmt.Fprintf(w, "Created:      %s\n", humanize.Time(time.UnixMilli(job.CreatedAtUnixMs)))
	if job.StartedAtUnixMs > 0 && job.EndedAtUnixMs > 0 {
		fmt.Fprintf(w, "Duration:     %s\n", time.Duration(job.EndedAtUnixMs-job.StartedAtUnixMs)*time.Millisecond)
	}
	if job.Error != "" {
		fmt.Fprintf(w, "Error:        %s (generation %d)\n", job.Error, job.FailedAtGeneration)
	}
	return nil
}

func printJobs(w io.Writer, jobs []models.Job, total int) error {
	if jsonOutput {
		return printJSON(w, map[string]any{"jobs": jobs, "total": total})
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tGENERATION\tEVALUATIONS\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			j.ID, j.Name, j.Status, j.CurrentGeneration, j.TotalGenerations,
			humanize.Comma(j.Evaluations), humanize.Time(time.UnixMilli(j.CreatedAtUnixMs)))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d of %d jobs\n", len(jobs), total)
	return nil
}

func printResults(w io.Writer, res *models.JobResults) error {
	if jsonOutput {
		return printJSON(w, res)
	}
	fmt.Fprintf(w, "Job %s %s after %d generations, %s evaluations, %d Pareto designs\n",
		res.JobID, res.Status, res.Generations, humanize.Comma(res.Evaluations), len(res.ParetoDesigns))
	if len(res.ParetoDesigns) == 0 {
		return nil
	}

	params := parameterNames(res.ParetoDesigns[0])
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "#\t%s\t%s\tFEASIBLE\t\n", strings.Join(upper(res.Objectives), "\t"), strings.Join(params, "\t"))
	for i, d := range res.ParetoDesigns {
		cols := make([]string, 0, len(res.Objectives)+len(params))
		for _, o := range res.Objectives {
			cols = append(cols, humanize.FormatFloat("#,###.###", d.Objectives[o]))
		}
		for _, p := range params {
			cols = append(cols, humanize.FormatFloat("#,###.###", d.Parameters[p]))
		}
		fmt.Fprintf(tw, "%d\t%s\t%t\t\n", i+1, strings.Join(cols, "\t"), d.ConstraintStatus.Feasible)
	}
	return tw.Flush()
}

// parameterNames returns the gene values a design carries, sorted
func parameterNames(d models.ParetoDesign) []string {
	names := make([]string, 0, len(d.Parameters))
	for name := range d.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func upper(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToUpper(n)
	}
	return out
}

func printReliability(w io.Writer, res models.ReliabilityResult) error {
	if jsonOutput {
		return printJSON(w, res)
	}
	fmt.Fprintf(w, "Primary constraint:   %s\n", res.PrimaryConstraint)
	fmt.Fprintf(w, "Samples:              %s of %s requested (%d failed evaluations)\n",
		humanize.Comma(int64(res.SampleCount)), humanize.Comma(int64(res.RequestedSamples)), res.FailedEvaluations)
	fmt.Fprintf(w, "Failure probability:  %.3g (%d failures)\n", res.FailureProbability, res.FailedCount)
	if res.RelativeStdError != nil {
		fmt.Fprintf(w, "Relative std error:   %.3g\n", *res.RelativeStdError)
	}
	d := res.OutputDistribution
	fmt.Fprintf(w, "%s: mean %.4g, std %.4g, p05 %.4g, p50 %.4g\n", d.Metric, d.Mean, d.StdDev, d.P05, d.P50)
	for _, c := range res.UncertaintyContributions {
		fmt.Fprintf(w, "  %-24s %5.1f%% of variance\n", c.Source, 100*c.VarianceFraction)
	}
	for _, s := range res.Sensitivity {
		fmt.Fprintf(w, "  %-24s %+.4g per %%\n", s.Parameter, s.EffectPerPercent)
	}
	return nil
}
