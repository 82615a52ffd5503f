package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vodingest/internal/api"
	"vodingest/internal/daemonctl"
	"vodingest/internal/ingest"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, database, dependency and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, live, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.configValue())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}
			renderStatus(cmd.OutOrStdout(), status, live)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit status as JSON")
	return cmd
}

func renderStatus(out io.Writer, status api.DaemonStatus, live bool) {
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("System Status", colorize) {
		fmt.Fprintln(out, line)
	}
	daemonKind, daemonDetail := daemonHealth(status, live)
	fmt.Fprintln(out, renderStatusLine("Daemon", daemonKind, daemonDetail, colorize))

	dbDetail := fmt.Sprintf("%s %s", status.Database.Dialect, status.Database.Location)
	if status.Database.Version != "" {
		dbDetail += " (schema " + status.Database.Version + ")"
	}
	if status.Database.Detail != "" {
		dbDetail += ": " + status.Database.Detail
	}
	fmt.Fprintln(out, renderStatusLine("Database", okWhen(status.Database.Reachable, statusError), dbDetail, colorize))
	fmt.Fprintln(out, renderStatusLine("Storage", statusInfo, status.Storage, colorize))
	if status.Disk != nil {
		diskDetail := fmt.Sprintf("%s free of %s",
			humanize.IBytes(uint64(max(status.Disk.AvailableBytes, 0))),
			humanize.IBytes(uint64(max(status.Disk.TotalBytes, 0))))
		fmt.Fprintln(out, renderStatusLine("Disk", statusInfo, diskDetail, colorize))
	}
	workersKind, workersDetail := workerHealth(status.Workflow)
	fmt.Fprintln(out, renderStatusLine("Workers", workersKind, workersDetail, colorize))
	queueKind, queueDetail := queueHealth(status.Workflow.Queue)
	fmt.Fprintln(out, renderStatusLine("Queue", queueKind, queueDetail, colorize))
	if status.Workflow.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusWarn, status.Workflow.LastError, colorize))
	}
	fmt.Fprintln(out)

	if len(status.SystemChecks) > 0 {
		for _, line := range renderSectionHeader("System Checks", colorize) {
			fmt.Fprintln(out, line)
		}
		for _, check := range status.SystemChecks {
			fmt.Fprintln(out, renderStatusLine(check.Name, okWhen(check.Passed, statusError), check.Detail, colorize))
		}
		fmt.Fprintln(out)
	}

	if len(status.Workflow.PhaseHealth) > 0 {
		for _, line := range renderSectionHeader("Pipeline", colorize) {
			fmt.Fprintln(out, line)
		}
		for _, line := range phaseLines(status.Workflow.PhaseHealth, colorize) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprintln(out)
	}

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, dep := range status.Dependencies {
		kind, detail := dependencyHealth(dep)
		fmt.Fprintln(out, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Jobs", colorize) {
		fmt.Fprintln(out, line)
	}
	rows := buildJobCountRows(status.Workflow.JobCounts)
	if len(rows) == 0 {
		fmt.Fprintln(out, "No jobs")
		return
	}
	fmt.Fprint(out, renderCountTable("Status", rows))
}

func buildJobCountRows(counts map[string]int) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, status := range ingest.AllStatuses() {
		if count := counts[string(status)]; count > 0 {
			rows = append(rows, []string{statusLabel(status), strconv.Itoa(count)})
		}
	}
	return rows
}
