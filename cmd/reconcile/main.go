package main

import (
	"context"
	"fmt"
	"os"

	"github.com/terminalledger/commission-recon/internal/application/recon"
	"github.com/terminalledger/commission-recon/internal/cli"
	"github.com/terminalledger/commission-recon/internal/infrastructure/config"
	"github.com/terminalledger/commission-recon/internal/infrastructure/logging"
	"github.com/terminalledger/commission-recon/internal/infrastructure/storage"
)

func main() {
	flags := cli.ParseReconFlags()

	cfg := config.LoadOrEnv(flags.ConfigPath)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	loggingCfg := cfg.Observability.Logging
	if flags.Verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(loggingCfg, "recon")

	opts, err := flags.ToOptions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = cfg.Reconciliation.BatchSize
	}
	if opts.MaxTimeDiffHours <= 0 {
		opts.MaxTimeDiffHours = cfg.Reconciliation.MaxTimeDiffHours
	}

	cli.PrintHeader(opts.DryRun)
	cli.PrintConfiguration(opts)

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	matcherCfg, err := cfg.MatcherConfig()
	if err != nil {
		logger.Error("invalid matcher configuration", "error", err)
		os.Exit(1)
	}

	runner := recon.NewRunner(store, matcherCfg, cfg.Reconciliation.DetailLimit, logger)

	result, err := runner.Run(context.Background(), opts)
	if err != nil {
		logger.Error("reconciliation failed", "error", err)
		os.Exit(1)
	}

	cli.PrintRunSummary(result, store, opts.DryRun)
}
