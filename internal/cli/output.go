package cli

import (
	"fmt"
	"strings"

	"github.com/terminalledger/commission-recon/internal/application/recon"
	"github.com/terminalledger/commission-recon/internal/infrastructure/storage"
)

// PrintHeader prints the application header
func PrintHeader(dryRun bool) {
	mode := "PRODUCTION"
	if dryRun {
		mode = "DRY-RUN"
	}
	fmt.Printf("commission-recon (%s mode)\n", mode)
}

// PrintConfiguration prints the run configuration
func PrintConfiguration(opts recon.Options) {
	fmt.Printf("Scope: ")
	if opts.StartDate != nil {
		fmt.Printf("from %s ", opts.StartDate.Format("2006-01-02"))
	}
	if opts.EndDate != nil {
		fmt.Printf("to %s ", opts.EndDate.Format("2006-01-02"))
	}
	if opts.StartDate == nil && opts.EndDate == nil {
		fmt.Printf("all dates ")
	}
	if opts.OrganizationID != 0 {
		fmt.Printf("| Org: %d ", opts.OrganizationID)
	}
	if opts.BatchSize > 0 {
		fmt.Printf("| Batch: %d ", opts.BatchSize)
	}
	if opts.MaxTimeDiffHours > 0 {
		fmt.Printf("| Window: %.0fh", opts.MaxTimeDiffHours)
	}
	fmt.Print("\n\n")
}

// PrintRunSummary prints the reconciliation result summary
func PrintRunSummary(result *recon.Result, store *storage.Storage, dryRun bool) {
	s := result.Report.Summary

	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("Run #%d: Matched=%d Failed=%d (%.1f%% of %d)\n",
		result.RunID, s.Matched, s.Failed, s.MatchPercentage, s.TotalCandidates)
	fmt.Printf("Fees: matched=%s failed=%s (time-filtered=%s)\n",
		s.MatchedAmount.StringFixed(2),
		s.FailedAmount.StringFixed(2),
		s.RejectedByTimeFilterAmount.StringFixed(2))
	fmt.Printf("Orders updated: %d (summed onto existing: %d)\n",
		s.OrdersUpdated, s.SummedWithExistingOrder)

	if len(result.Report.Details.Failed) > 0 {
		fmt.Println("\nUnmatched commissions:")
		for _, f := range result.Report.Details.Failed {
			fmt.Printf("  - #%d amount=%s fee=%s org=%d reason=%s\n",
				f.CommissionID, f.Amount.StringFixed(2), f.FeeAmount.StringFixed(2),
				f.OrganizationID, f.Reason)
		}
	}

	// All-time stats from the database
	if store != nil {
		stats, _ := store.GetStats()
		if stats != nil && stats.TotalCommissions > 0 {
			linkedRate := float64(stats.LinkedCommissions) / float64(stats.TotalCommissions) * 100
			fmt.Printf("\nAll-Time: Commissions=%d Linked=%d (%.1f%%) Fees=%s Runs=%d\n",
				stats.TotalCommissions,
				stats.LinkedCommissions,
				linkedRate,
				stats.LinkedFeeAmount.StringFixed(2),
				stats.TotalRuns)
		}
	}

	if !dryRun && s.Matched > 0 {
		fmt.Println("\nReconciliation completed successfully.")
	}
	if dryRun {
		fmt.Println("\nDry run: no changes were written.")
	}
}
