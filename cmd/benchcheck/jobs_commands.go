package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"benchcheck/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage analysis jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsStatsCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	jobsCmd.AddCommand(newJobsClearCommand(ctx))
	jobsCmd.AddCommand(newJobsRemoveCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List analysis jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]jobs.Status, 0, len(listStatuses))
			for _, raw := range listStatuses {
				status, ok := jobs.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				statuses = append(statuses, status)
			}

			return ctx.withStore(func(store *jobs.Store) error {
				items, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}

				rows := make([][]string, 0, len(items))
				for _, job := range items {
					rows = append(rows, []string{
						strconv.FormatInt(job.ID, 10),
						string(job.Status),
						filepath.Base(job.InputPath),
						jobVerdict(job),
						job.CreatedAt.Format(time.RFC3339),
					})
				}
				table := renderTable(out,
					[]string{"ID", "Status", "Video", "Verdict", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by job status (repeatable)")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var withSeries bool

	cmd := &cobra.Command{
		Use:   "show <jobID>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}

			return ctx.withStore(func(store *jobs.Store) error {
				job, err := store.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %d not found", id)
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintf(out, "Job %d\n", job.ID)
				fmt.Fprintf(out, "  %-*s %s\n", verdictLabelWidth, "Status:", job.Status)
				fmt.Fprintf(out, "  %-*s %s\n", verdictLabelWidth, "Input:", job.InputPath)
				if job.OutputPath != "" {
					fmt.Fprintf(out, "  %-*s %s\n", verdictLabelWidth, "Output:", job.OutputPath)
				}
				fmt.Fprintf(out, "  %-*s %s\n", verdictLabelWidth, "Created:", job.CreatedAt.Format(time.RFC3339))
				fmt.Fprintf(out, "  %-*s %s\n", verdictLabelWidth, "Updated:", job.UpdatedAt.Format(time.RFC3339))

				switch job.Status {
				case jobs.StatusCompleted:
					fmt.Fprintln(out, verdictLine("Overall", job.OverallStatus, colorize))
					fmt.Fprintln(out, verdictLine("Hip lift", job.HipLiftStatus, colorize))
					fmt.Fprintln(out, verdictLine("Rep depth", job.ShallowRepStatus, colorize))
					fmt.Fprintf(out, "  %-*s %d frames at %.2f fps (%.1fs)\n",
						verdictLabelWidth, "Video:", job.TotalFrames, job.FPS, job.DurationSeconds)
				case jobs.StatusFailed:
					if job.ErrorMessage != "" {
						fmt.Fprintf(out, "  %-*s %s\n", verdictLabelWidth, "Error:", job.ErrorMessage)
					}
				}

				if !withSeries {
					return nil
				}
				points, err := store.TimeSeries(cmd.Context(), job.ID)
				if err != nil {
					return err
				}
				if len(points) == 0 {
					fmt.Fprintln(out, "No time-series data")
					return nil
				}
				rows := make([][]string, 0, len(points))
				for _, point := range points {
					rows = append(rows, []string{
						strconv.FormatInt(point.Frame, 10),
						fmt.Sprintf("%.3f", point.TimestampSeconds),
						formatSample(point.HipY),
						formatSample(point.ElbowY),
						formatSample(point.ShoulderY),
						formatDetected(point.BenchDetected),
						formatDetected(point.BarDetected),
					})
				}
				table := renderTable(out,
					[]string{"Frame", "Time", "Hip Y", "Elbow Y", "Shoulder Y", "Bench", "Bar"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&withSeries, "series", false, "Include per-frame measurements")
	return cmd
}

func newJobsStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *jobs.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()

				total := 0
				rows := make([][]string, 0, len(stats))
				for _, status := range jobs.AllStatuses() {
					count := stats[status]
					if count == 0 {
						continue
					}
					total += count
					rows = append(rows, []string{string(status), strconv.Itoa(count)})
				}
				if total == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				table := renderTable(out,
					[]string{"Status", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [jobID...]",
		Short: "Return failed jobs to pending",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid job id %q", arg)
				}
				ids = append(ids, id)
			}

			return ctx.withStore(func(store *jobs.Store) error {
				updated, err := store.RetryFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d failed jobs\n", updated)
				return nil
			})
		},
	}
}

func newJobsClearCommand(ctx *commandContext) *cobra.Command {
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *jobs.Store) error {
				var removed int64
				var err error
				if clearAll {
					removed, err = store.Clear(cmd.Context())
				} else {
					removed, err = store.ClearTerminal(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d jobs\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearAll, "all", false, "Remove every job, including pending and in-flight ones")
	return cmd
}

func newJobsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <jobID>",
		Short: "Remove a single job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}

			return ctx.withStore(func(store *jobs.Store) error {
				removed, err := store.Remove(cmd.Context(), id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !removed {
					fmt.Fprintf(out, "Job %d not found\n", id)
					return nil
				}
				fmt.Fprintf(out, "Job %d removed\n", id)
				return nil
			})
		},
	}
}

func jobVerdict(job *jobs.Job) string {
	if job.Status == jobs.StatusCompleted {
		return job.OverallStatus
	}
	if job.Status == jobs.StatusFailed && job.ErrorMessage != "" {
		return job.ErrorMessage
	}
	return ""
}

func formatSample(value *float64) string {
	if value == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *value)
}

func formatDetected(detected bool) string {
	if detected {
		return "yes"
	}
	return "no"
}
