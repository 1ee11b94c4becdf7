package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/talentloop/internal/feedbacksim"
	"github.com/okian/talentloop/pkg/logger"
)

// Default configuration constants.
const (
	defaultEvents      = 1000
	defaultJobs        = 10
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	cfg := &feedbacksim.Config{}

	cmd := &cobra.Command{
		Use:          "feedback-sim",
		Short:        "Fire concurrent recruiter feedback at a talentloop service and verify no update was lost",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(); err != nil {
				return fmt.Errorf("initialize logging: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			if cfg.Verbose {
				_ = logger.SetLevelString("debug")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTestTimeout)
			defer cancel()

			_, err := feedbacksim.Run(ctx, cfg)
			return err
		},
	}

	cmd.Flags().StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "Base URL of the service")
	cmd.Flags().IntVar(&cfg.Events, "events", defaultEvents, "Number of feedback events to submit")
	cmd.Flags().IntVar(&cfg.Jobs, "jobs", defaultJobs, "Number of jobs to spread the events over")
	cmd.Flags().IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	cmd.Flags().BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
