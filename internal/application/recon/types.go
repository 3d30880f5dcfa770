package recon

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/terminalledger/commission-recon/internal/domain/matcher"
)

// Options holds per-run configuration
type Options struct {
	StartDate      *time.Time
	EndDate        *time.Time
	OrganizationID int64 // 0 = all organizations

	// BatchSize is how many successful matches to buffer before
	// committing. Zero falls back to 100.
	BatchSize int

	// MaxTimeDiffHours overrides the matcher's time window threshold
	// when positive.
	MaxTimeDiffHours float64

	// DryRun executes the full matching pipeline, consumption tracking
	// included, without issuing a single write.
	DryRun bool
}

// Confidence tells how contested the winning candidate was
type Confidence string

const (
	// ConfidenceExact means exactly one candidate survived filtering
	ConfidenceExact Confidence = "exact"
	// ConfidenceRanked means the best of several survivors was chosen
	ConfidenceRanked Confidence = "ranked"
)

// MatchResult describes one resolved commission-to-order match
type MatchResult struct {
	CommissionID    int64
	OrderID         int64
	OrderExternalID string
	PaymentGroupKey string
	ReferenceKind   matcher.ReferenceKind
	TimeDiffHours   float64
	AmountDiff      decimal.Decimal
	FeeAmount       decimal.Decimal
	OrderTotalAfter decimal.Decimal
	Confidence      Confidence

	// WasSummed is true when the order already carried a commission fee
	// from an earlier match, so this fee was added on top.
	WasSummed bool
}

// Result holds the outcome of one reconciliation run
type Result struct {
	RunID  int64
	Report *Report
}
