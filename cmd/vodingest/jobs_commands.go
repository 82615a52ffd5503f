package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vodingest/internal/api"
	"vodingest/internal/daemonrun"
	"vodingest/internal/ingest"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage ingestion jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsRemoveCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var limit int
	var offset int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := api.ParseStatuses(statuses)
			if err != nil {
				return err
			}
			return ctx.withStack(cmd.Context(), func(stack *daemonrun.Stack) error {
				jobs, err := api.NewJobService(stack.Store).List(cmd.Context(), operator, api.ListRequest{
					Statuses: filter,
					Limit:    limit,
					Offset:   offset,
				})
				if err != nil {
					return err
				}
				if jsonOutput {
					if jobs == nil {
						jobs = []api.JobView{}
					}
					return writeJSON(cmd, api.JobListResponse{Jobs: jobs})
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(jobColumns, buildJobRows(jobs)))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable or comma-separated)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum jobs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Jobs to skip")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit jobs as JSON")
	return cmd
}

func buildJobRows(jobs []api.JobView) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		status := statusLabel(ingest.Status(job.Status))
		if job.Cancelling {
			status += " (cancelling)"
		}
		rows = append(rows, []string{
			job.JobID,
			status,
			job.FileType,
			job.OwnerID,
			strconv.Itoa(job.Progress) + "%",
			relativeTime(job.UpdatedAt),
		})
	}
	return rows
}

// relativeTime renders an API timestamp as "3 minutes ago".
func relativeTime(value string) string {
	t := api.ParseTime(value)
	if t.IsZero() {
		return ""
	}
	return humanize.Time(t)
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(cmd.Context(), func(stack *daemonrun.Stack) error {
				view, err := api.NewJobService(stack.Store).Get(cmd.Context(), args[0], operator)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, view)
				}
				renderJob(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the job as JSON")
	return cmd
}

func renderJob(out io.Writer, job api.JobView) {
	field := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		fmt.Fprintf(out, "%-14s %s\n", label+":", value)
	}
	field("Job", job.JobID)
	status := statusLabel(ingest.Status(job.Status))
	if shouldColorize(out) {
		status = statusKindColor(jobStatusKind(ingest.Status(job.Status))) + status + ansiReset
	}
	field("Status", status)
	field("Progress", strconv.Itoa(job.Progress)+"%")
	field("Type", job.FileType)
	field("Owner", job.OwnerID)
	field("Content", job.ContentID)
	field("Episode", job.EpisodeID)
	field("Original name", job.OriginalName)
	field("Result", job.ResultURL)
	field("Error", job.Error)
	if job.Cancelling {
		field("Cancelling", yesNo(true))
	}
	field("Created", job.CreatedAt)
	field("Updated", job.UpdatedAt)
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(cmd.Context(), func(stack *daemonrun.Stack) error {
				job, err := stack.Workflow.Cancel(cmd.Context(), operator, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if job.Status.Terminal() {
					fmt.Fprintf(out, "Cancelled job %s\n", job.ID)
					return nil
				}
				fmt.Fprintf(out, "Cancellation requested for job %s (%s); the worker stops at its next checkpoint\n", job.ID, job.Status)
				return nil
			})
		},
	}
}

func newJobsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <job-id>",
		Aliases: []string{"remove", "delete"},
		Short:   "Delete a job record",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(cmd.Context(), func(stack *daemonrun.Stack) error {
				if err := stack.Workflow.Delete(cmd.Context(), operator, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted job %s\n", args[0])
				return nil
			})
		},
	}
}
