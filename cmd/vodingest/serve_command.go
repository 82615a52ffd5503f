package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vodingest/internal/daemonrun"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion daemon in the foreground",
		Long: "Run the HTTP API, the worker pool and the retention schedule until " +
			"interrupted. Only one daemon may run per data directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return daemonrun.Run(cmd.Context(), ctx.configValue(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Enable development logging")
	return cmd
}

func newWorkCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options
	var once bool

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Process queued jobs without the HTTP API",
		Long: "Run workers against the configured database. Several worker processes " +
			"may share one Postgres database. With --once, process every job that is " +
			"ready now and exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			logger, err := daemonrun.NewLogger(cfg, opts)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			stack, err := daemonrun.Open(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer stack.Close()

			processed, err := daemonrun.RunWorkers(cmd.Context(), stack, once)
			if err != nil {
				return err
			}
			if once {
				fmt.Fprintf(cmd.OutOrStdout(), "Processed %d job(s)\n", processed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Drain the ready queue and exit")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Enable development logging")
	return cmd
}
