package recon

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/terminalledger/commission-recon/internal/domain/matcher"
	"github.com/terminalledger/commission-recon/internal/infrastructure/storage"
)

// Report is the structured outcome of a reconciliation run, shaped for
// external consumption (JSON, Excel export, API responses).
type Report struct {
	GeneratedAt time.Time `json:"timestamp"`
	DryRun      bool      `json:"dry_run"`
	Summary     Summary   `json:"summary"`
	Details     Details   `json:"details"`
}

// Summary holds the run counters
type Summary struct {
	TotalCandidates            int             `json:"total_candidates"`
	Matched                    int             `json:"matched"`
	Failed                     int             `json:"failed"`
	RejectedByTimeFilter       int             `json:"rejected_by_time_filter"`
	UnmatchedNoCandidate       int             `json:"unmatched_no_candidate"`
	SummedWithExistingOrder    int             `json:"summed_with_existing_order"`
	MatchPercentage            float64         `json:"match_percentage"`
	TotalAmount                decimal.Decimal `json:"total_amount"`
	MatchedAmount              decimal.Decimal `json:"matched_amount"`
	FailedAmount               decimal.Decimal `json:"failed_amount"`
	RejectedByTimeFilterAmount decimal.Decimal `json:"rejected_by_time_filter_amount"`
	OrdersUpdated              int             `json:"orders_updated"`
}

// Details holds the per-record audit lists, capped at the reporter's
// detail limit to keep reports tractable for very large runs.
type Details struct {
	Matched []MatchedEntry `json:"matched"`
	Failed  []FailedEntry  `json:"failed"`
}

// MatchedEntry is one successfully attributed commission
type MatchedEntry struct {
	CommissionID      int64                 `json:"commission_id"`
	OrderID           int64                 `json:"order_id"`
	OrderExternalID   string                `json:"order_external_id"`
	PaymentGroupKey   string                `json:"payment_group_key"`
	ReferenceTimeKind matcher.ReferenceKind `json:"reference_time_kind"`
	TimeDiffHours     float64               `json:"time_diff_hours"`
	FeeAmount         decimal.Decimal       `json:"fee_amount"`
	OrderTotalAfter   decimal.Decimal       `json:"order_total_after"`
	Confidence        Confidence            `json:"confidence"`
	WasSummed         bool                  `json:"was_summed"`
}

// FailedEntry is one commission that could not be attributed, with the
// literal record it applied to so manual follow-up needs no re-run.
type FailedEntry struct {
	CommissionID    int64           `json:"commission_id"`
	Amount          decimal.Decimal `json:"amount"`
	FeeAmount       decimal.Decimal `json:"fee_amount"`
	OrganizationID  int64           `json:"organization_id"`
	TransactionTime *time.Time      `json:"transaction_time"`
	Reason          matcher.Reason  `json:"reason"`
}

// Reporter accumulates per-commission outcomes into a Report
type Reporter struct {
	detailLimit int
	dryRun      bool

	matched []MatchedEntry
	failed  []FailedEntry

	total                int
	rejectedByTime       int
	noCandidate          int
	summedWithExisting   int
	ordersUpdated        int
	totalAmount          decimal.Decimal
	matchedAmount        decimal.Decimal
	failedAmount         decimal.Decimal
	rejectedByTimeAmount decimal.Decimal
}

// NewReporter creates a reporter. detailLimit caps each detail list in the
// final report; zero falls back to 100.
func NewReporter(detailLimit int, dryRun bool) *Reporter {
	if detailLimit <= 0 {
		detailLimit = 100
	}
	return &Reporter{
		detailLimit: detailLimit,
		dryRun:      dryRun,
	}
}

// RecordMatch records a successful match
func (r *Reporter) RecordMatch(c *storage.CommissionRecord, res *MatchResult) {
	r.total++
	r.totalAmount = r.totalAmount.Add(c.BankFee)
	r.matchedAmount = r.matchedAmount.Add(c.BankFee)

	if res.WasSummed {
		r.summedWithExisting++
	} else {
		r.ordersUpdated++
	}

	r.matched = append(r.matched, MatchedEntry{
		CommissionID:      res.CommissionID,
		OrderID:           res.OrderID,
		OrderExternalID:   res.OrderExternalID,
		PaymentGroupKey:   res.PaymentGroupKey,
		ReferenceTimeKind: res.ReferenceKind,
		TimeDiffHours:     res.TimeDiffHours,
		FeeAmount:         res.FeeAmount,
		OrderTotalAfter:   res.OrderTotalAfter,
		Confidence:        res.Confidence,
		WasSummed:         res.WasSummed,
	})
}

// RecordFailure records a commission that could not be matched
func (r *Reporter) RecordFailure(c *storage.CommissionRecord, reason matcher.Reason) {
	r.total++
	r.totalAmount = r.totalAmount.Add(c.BankFee)
	r.failedAmount = r.failedAmount.Add(c.BankFee)

	switch reason {
	case matcher.ReasonRejectedByTimeFilter:
		r.rejectedByTime++
		r.rejectedByTimeAmount = r.rejectedByTimeAmount.Add(c.BankFee)
	case matcher.ReasonNoCandidateFound:
		r.noCandidate++
	}

	r.failed = append(r.failed, FailedEntry{
		CommissionID:    c.ID,
		Amount:          c.Amount,
		FeeAmount:       c.BankFee,
		OrganizationID:  c.OrganizationID,
		TransactionTime: c.TransactionTime,
		Reason:          reason,
	})
}

// DemoteToFailure reclassifies an already-recorded match as failed. Used
// when a buffered batch write is rolled back after the match was scored.
func (r *Reporter) DemoteToFailure(c *storage.CommissionRecord, reason matcher.Reason) {
	for i, entry := range r.matched {
		if entry.CommissionID != c.ID {
			continue
		}
		r.matched = append(r.matched[:i], r.matched[i+1:]...)
		r.matchedAmount = r.matchedAmount.Sub(c.BankFee)
		r.failedAmount = r.failedAmount.Add(c.BankFee)
		if entry.WasSummed {
			r.summedWithExisting--
		} else {
			r.ordersUpdated--
		}
		r.failed = append(r.failed, FailedEntry{
			CommissionID:    c.ID,
			Amount:          c.Amount,
			FeeAmount:       c.BankFee,
			OrganizationID:  c.OrganizationID,
			TransactionTime: c.TransactionTime,
			Reason:          reason,
		})
		return
	}
}

// MatchedCount returns the current number of recorded matches
func (r *Reporter) MatchedCount() int {
	return len(r.matched)
}

// FailedCount returns the current number of recorded failures
func (r *Reporter) FailedCount() int {
	return len(r.failed)
}

// Report builds the final report snapshot
func (r *Reporter) Report() *Report {
	matchPct := 0.0
	if r.total > 0 {
		matchPct = float64(len(r.matched)) / float64(r.total) * 100
	}

	return &Report{
		GeneratedAt: time.Now(),
		DryRun:      r.dryRun,
		Summary: Summary{
			TotalCandidates:            r.total,
			Matched:                    len(r.matched),
			Failed:                     len(r.failed),
			RejectedByTimeFilter:       r.rejectedByTime,
			UnmatchedNoCandidate:       r.noCandidate,
			SummedWithExistingOrder:    r.summedWithExisting,
			MatchPercentage:            matchPct,
			TotalAmount:                r.totalAmount,
			MatchedAmount:              r.matchedAmount,
			FailedAmount:               r.failedAmount,
			RejectedByTimeFilterAmount: r.rejectedByTimeAmount,
			OrdersUpdated:              r.ordersUpdated,
		},
		Details: Details{
			Matched: capEntries(r.matched, r.detailLimit),
			Failed:  capEntries(r.failed, r.detailLimit),
		},
	}
}

func capEntries[T any](entries []T, limit int) []T {
	out := make([]T, 0, min(len(entries), limit))
	for i, e := range entries {
		if i >= limit {
			break
		}
		out = append(out, e)
	}
	return out
}
