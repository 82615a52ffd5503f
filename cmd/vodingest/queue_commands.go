package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vodingest/internal/api"
	"vodingest/internal/daemonrun"
	"vodingest/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the delivery queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue depth by delivery state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(cmd.Context(), func(stack *daemonrun.Stack) error {
				stats, err := stack.Queue.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.QueueStats{
						Ready:       stats.Ready,
						Delayed:     stats.Delayed,
						Leased:      stats.Leased,
						Expired:     stats.Expired,
						Dead:        stats.Dead,
						OldestReady: api.FormatTime(stats.OldestReady),
					})
				}
				out := cmd.OutOrStdout()
				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprint(out, renderCountTable("State", rows))
				if !stats.OldestReady.IsZero() {
					fmt.Fprintf(out, "Oldest ready entry queued %s\n", humanize.Time(stats.OldestReady))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit queue stats as JSON")
	return cmd
}

func buildQueueStatusRows(stats queue.Stats) [][]string {
	counts := []struct {
		label string
		count int
	}{
		{"Ready", stats.Ready},
		{"Delayed", stats.Delayed},
		{"Leased", stats.Leased},
		{"Expired lease", stats.Expired},
		{"Dead", stats.Dead},
	}
	var rows [][]string
	for _, c := range counts {
		if c.count > 0 {
			rows = append(rows, []string{c.label, strconv.Itoa(c.count)})
		}
	}
	return rows
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue entries in delivery order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStack(cmd.Context(), func(stack *daemonrun.Stack) error {
				entries, err := stack.Queue.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(queueEntryColumns, buildQueueListRows(entries, time.Now())))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum entries to list")
	return cmd
}

func buildQueueListRows(entries []queue.Entry, now time.Time) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		due := ""
		switch e.State {
		case queue.StateReady:
			if e.VisibleAt.After(now) {
				due = humanize.RelTime(e.VisibleAt, now, "ago", "from now")
			} else {
				due = "now"
			}
		case queue.StateLeased:
			due = "lease ends " + humanize.RelTime(e.LeaseExpiresAt, now, "ago", "from now")
		}
		rows = append(rows, []string{
			e.JobID,
			string(e.State),
			fmt.Sprintf("%d/%d", e.Attempts, e.MaxAttempts),
			due,
			truncate(e.LastError, 60),
		})
	}
	return rows
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
