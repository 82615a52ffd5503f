package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vodingest/internal/daemonrun"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge expired jobs, dead queue entries and stale staging data now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(cmd.Context(), func(stack *daemonrun.Stack) error {
				report, err := stack.Janitor.Run(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, map[string]any{
						"skipped":        report.Skipped,
						"jobsPurged":     report.JobsPurged,
						"entriesPurged":  report.EntriesPurged,
						"staleDirs":      report.StaleDirs,
						"orphanedDirs":   report.OrphanedDirs,
						"cleanupErrors":  report.CleanupErrors,
						"durationMillis": report.Duration.Milliseconds(),
					})
				}
				out := cmd.OutOrStdout()
				if report.Skipped {
					fmt.Fprintln(out, "Another cleanup is running; nothing done")
					return nil
				}
				fmt.Fprintf(out, "Retention cutoff:      %s\n", report.RetentionUntil.Local().Format("2006-01-02 15:04"))
				fmt.Fprintf(out, "Jobs purged:           %d\n", report.JobsPurged)
				fmt.Fprintf(out, "Dead entries purged:   %d\n", report.EntriesPurged)
				fmt.Fprintf(out, "Stale staging dirs:    %d\n", report.StaleDirs)
				fmt.Fprintf(out, "Orphaned staging dirs: %d\n", report.OrphanedDirs)
				if report.CleanupErrors > 0 {
					fmt.Fprintf(out, "Cleanup errors:        %d\n", report.CleanupErrors)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the report as JSON")
	return cmd
}
