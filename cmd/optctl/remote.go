package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/optd"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
)

var (
	submitWatch bool
	listStatus  string
	listLimit   int
	listOffset  int
)

// withClient dials the daemon for the duration of fn
func withClient(fn func(*optd.Client) error) error {
	client, err := optd.Dial(daemonAddr)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit JOB_FILE",
		Short: "Submit a YAML job file to the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withClient(func(c *optd.Client) error {
				job, err := c.SubmitJobYAML(cmd.Context(), string(data))
				if err != nil {
					return err
				}
				if !submitWatch {
					return printJob(cmd.OutOrStdout(), job)
				}
				return watch(cmd, c, job.ID)
			})
		},
	}
	cmd.Flags().BoolVarP(&submitWatch, "watch", "w", false, "follow the job's progress until it finishes")
	return cmd
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch JOB_ID",
		Short: "Stream a job's progress until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *optd.Client) error {
				return watch(cmd, c, args[0])
			})
		},
	}
}

func watch(cmd *cobra.Command, c *optd.Client, id string) error {
	out := cmd.OutOrStdout()
	var last models.ProgressSnapshot
	err := c.StreamProgress(cmd.Context(), id, func(s models.ProgressSnapshot) error {
		last = s
		if jsonOutput {
			return printJSON(out, s)
		}
		printSnapshot(out, s)
		return nil
	})
	if err != nil {
		return err
	}
	if last.Status == models.JobStatusFailed {
		return exitCode(exitFailed)
	}
	return nil
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *optd.Client) error {
				job, err := c.CancelJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJob(cmd.OutOrStdout(), job)
			})
		},
	}
}

func newResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results JOB_ID",
		Short: "Print the Pareto set of a completed or cancelled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *optd.Client) error {
				res, err := c.GetResults(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printResults(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *optd.Client) error {
				jobs, total, err := c.ListJobs(cmd.Context(), models.JobStatus(listStatus), listLimit, listOffset)
				if err != nil {
					return err
				}
				return printJobs(cmd.OutOrStdout(), jobs, total)
			})
		},
	}
	cmd.Flags().StringVar(&listStatus, "status", "", "only jobs with this status")
	cmd.Flags().IntVar(&listLimit, "limit", 20, "page size")
	cmd.Flags().IntVar(&listOffset, "offset", 0, "page offset")
	return cmd
}

func newReliabilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reliability JOB_ID REQUEST_FILE",
		Short: "Analyze the reliability of one design of a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadReliabilitySpec(args[1])
			if err != nil {
				return err
			}
			return withClient(func(c *optd.Client) error {
				res, err := c.AnalyzeReliability(cmd.Context(), args[0], spec)
				if err != nil {
					return err
				}
				return printReliability(cmd.OutOrStdout(), res)
			})
		},
	}
}
