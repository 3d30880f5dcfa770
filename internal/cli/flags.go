package cli

import (
	"flag"
	"fmt"
	"time"

	"github.com/terminalledger/commission-recon/internal/application/recon"
)

// ReconFlags are the command line flags for the reconcile command
type ReconFlags struct {
	ConfigPath  string
	StartDate   string
	EndDate     string
	OrgID       int64
	BatchSize   int
	MaxTimeDiff float64
	DryRun      bool
	Verbose     bool
}

// ParseReconFlags parses reconcile flags from the command line
func ParseReconFlags() *ReconFlags {
	flags := &ReconFlags{}
	flag.StringVar(&flags.ConfigPath, "config", "", "Configuration file path")
	flag.StringVar(&flags.StartDate, "start", "", "Start date (YYYY-MM-DD), inclusive")
	flag.StringVar(&flags.EndDate, "end", "", "End date (YYYY-MM-DD), exclusive")
	flag.Int64Var(&flags.OrgID, "org", 0, "Organization ID (0 = all)")
	flag.IntVar(&flags.BatchSize, "batch-size", 0, "Matches per commit (0 = config default)")
	flag.Float64Var(&flags.MaxTimeDiff, "max-time-diff", 0, "Max time difference in hours (0 = config default)")
	flag.BoolVar(&flags.DryRun, "dry-run", false, "Run without making changes")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Verbose output")
	flag.Parse()
	return flags
}

// ToOptions converts flags to run options
func (f *ReconFlags) ToOptions() (recon.Options, error) {
	opts := recon.Options{
		OrganizationID:   f.OrgID,
		BatchSize:        f.BatchSize,
		MaxTimeDiffHours: f.MaxTimeDiff,
		DryRun:           f.DryRun,
	}

	if f.StartDate != "" {
		t, err := time.Parse("2006-01-02", f.StartDate)
		if err != nil {
			return opts, fmt.Errorf("invalid -start date %q: %w", f.StartDate, err)
		}
		opts.StartDate = &t
	}
	if f.EndDate != "" {
		t, err := time.Parse("2006-01-02", f.EndDate)
		if err != nil {
			return opts, fmt.Errorf("invalid -end date %q: %w", f.EndDate, err)
		}
		opts.EndDate = &t
	}
	if opts.StartDate != nil && opts.EndDate != nil && !opts.EndDate.After(*opts.StartDate) {
		return opts, fmt.Errorf("-end must be after -start")
	}

	return opts, nil
}
