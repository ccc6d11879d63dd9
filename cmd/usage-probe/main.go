package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/usagedash/internal/probe"
	"github.com/okian/usagedash/pkg/logger"
	"github.com/spf13/cobra"
)

// Default configuration constants.
const (
	defaultTopN     = 10
	defaultWorkers  = 2 // multiplier for runtime.NumCPU()
	defaultTimeout  = 120 * time.Second
	defaultDeadline = 10 * time.Minute
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &probe.Config{}
	var (
		verboseLog bool
		format     string
	)

	cmd := &cobra.Command{
		Use:   "usage-probe",
		Short: "Query a running usage service and verify its responses",
		Long: "Issues /api/usage for every source and window combination concurrently and checks\n" +
			"series continuity, bucket counts, organization ordering and totals.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.InitWith(cmd.ErrOrStderr(), format); err != nil {
				return err
			}
			if verboseLog {
				_ = logger.SetLevelString("debug")
			}
			cfg.Logger = logger.Get()
			if cfg.Token == "" {
				cfg.Token = os.Getenv("USAGEDASH_PROBE_TOKEN")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, defaultDeadline)
			defer cancel()

			_, err := probe.Run(ctx, cfg, time.Now(), cmd.OutOrStdout())
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "Base URL of the service")
	f.StringVar(&cfg.Token, "token", "", "Bearer token (default $USAGEDASH_PROBE_TOKEN)")
	f.StringSliceVar(&cfg.Sources, "source", []string{"telemetry", "ledger"}, "Sources to query")
	f.StringSliceVar(&cfg.Windows, "window", []string{"1h", "24h", "7d", "30d", "all"}, "Windows to query: 1h, 24h, 7d, 30d, all")
	f.StringVar(&cfg.Org, "org", "", "Restrict every case to one organization")
	f.IntVar(&cfg.TopN, "top", defaultTopN, "Expected cap on telemetry organization lists")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkers, "Concurrent requests")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "Per-request timeout")
	f.BoolVar(&cfg.Verbose, "verbose", false, "Log every case")
	f.BoolVar(&verboseLog, "debug", false, "Enable debug logging")
	f.StringVar(&format, "log-format", "text", "Log format: text or json")

	return cmd
}
