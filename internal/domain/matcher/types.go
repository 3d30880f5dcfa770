package matcher

import (
	"github.com/shopspring/decimal"

	"github.com/terminalledger/commission-recon/internal/domain/aggregator"
)

// Config holds matcher configuration
type Config struct {
	// AmountTolerance is the maximum allowed difference between a
	// commission's amount and a payment group's total. Zero means sums
	// must be exactly equal.
	AmountTolerance decimal.Decimal

	// MaxTimeDiffHours is the time window threshold: candidates whose
	// minimal reference-time delta exceeds it are rejected.
	MaxTimeDiffHours float64

	// MorningCutoffHour extends the candidate date filter into the next
	// calendar day, tolerating payments that settle after midnight.
	MorningCutoffHour int

	// DiscountTolerance is the band for the legacy fallback that compares
	// a commission's amount against the order's own discount when no
	// payment group matches by sum.
	DiscountTolerance decimal.Decimal
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		AmountTolerance:   decimal.Zero,
		MaxTimeDiffHours:  24,
		MorningCutoffHour: 12,
		DiscountTolerance: decimal.RequireFromString("0.01"),
	}
}

// Reason classifies why a commission could not be matched. Non-matches are
// values, not errors: every one is recovered locally and reported.
type Reason string

const (
	ReasonNoCandidateFound     Reason = "NoCandidateFound"
	ReasonRejectedByTimeFilter Reason = "RejectedByTimeFilter"
	ReasonNoTransactionTime    Reason = "NoTransactionTime"
	ReasonAlreadyLinked        Reason = "AlreadyLinked"
	ReasonOrderNotFound        Reason = "OrderNotFound"
	ReasonPersistenceFailure   Reason = "PersistenceFailure"
)

// ReferenceKind names which of a payment group's timestamps produced the
// winning time delta.
type ReferenceKind string

const (
	ReferenceOrderCreated ReferenceKind = "order_created_time"
	ReferencePrecheque    ReferenceKind = "precheque_time"
	ReferenceOpen         ReferenceKind = "open_time"
)

// Candidate is a payment group that survived the time-window filter,
// scored by its minimal reference-time delta in hours.
type Candidate struct {
	Group         *aggregator.PaymentGroup
	Score         float64 // hours; lower is better
	ReferenceKind ReferenceKind
}
