package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/terminalledger/commission-recon/internal/application/recon"
	"github.com/terminalledger/commission-recon/internal/export"
	"github.com/terminalledger/commission-recon/internal/infrastructure/config"
	"github.com/terminalledger/commission-recon/internal/infrastructure/storage"
)

func main() {
	var (
		configFile string
		runID      int64
		output     string
	)
	flag.StringVar(&configFile, "config", "", "Configuration file path")
	flag.Int64Var(&runID, "run", 0, "Run ID to export (0 = latest)")
	flag.StringVar(&output, "out", "report.xlsx", "Output file (.xlsx or .json)")
	flag.Parse()

	cfg := config.LoadOrEnv(configFile)

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	run, err := resolveRun(store, runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	var report recon.Report
	if err := json.Unmarshal([]byte(run.ReportJSON), &report); err != nil {
		fmt.Fprintf(os.Stderr, "run %d has no usable report: %v\n", run.ID, err)
		os.Exit(1)
	}

	switch {
	case strings.HasSuffix(output, ".json"):
		err = export.WriteJSON(&report, output)
	case strings.HasSuffix(output, ".xlsx"):
		err = export.WriteExcel(&report, output)
	default:
		err = fmt.Errorf("unsupported output format: %s (use .xlsx or .json)", output)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Run #%d exported to %s (matched=%d failed=%d)\n",
		run.ID, output, run.Matched, run.Failed)
}

// resolveRun loads the requested run, or the most recent one when id is 0.
func resolveRun(store *storage.Storage, id int64) (*storage.ReconRun, error) {
	if id > 0 {
		run, err := store.GetRun(id)
		if err != nil {
			return nil, fmt.Errorf("load run %d: %w", id, err)
		}
		if run == nil {
			return nil, fmt.Errorf("run %d not found", id)
		}
		return run, nil
	}

	runs, err := store.ListRuns(1)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no reconciliation runs recorded yet")
	}
	return &runs[0], nil
}
