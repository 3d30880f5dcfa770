package recon

import (
	"fmt"
	"log/slog"

	"github.com/terminalledger/commission-recon/internal/domain/matcher"
	"github.com/terminalledger/commission-recon/internal/infrastructure/storage"
)

// OrderLookup resolves orders by external id. The runner backs it with a
// per-run cache so several commissions matching one order share the same
// in-memory Order and the fee update compounds correctly.
type OrderLookup interface {
	OrderByExternalID(externalID string) (*storage.Order, error)
}

// Resolver turns a ranked candidate list into a concrete match: it picks
// the winner, resolves the owning order, applies the cumulative fee update
// in memory, and emits the buffered write.
type Resolver struct {
	orders OrderLookup
	logger *slog.Logger
}

// NewResolver creates a resolver using the given order lookup
func NewResolver(orders OrderLookup, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{orders: orders, logger: logger}
}

// Resolve picks the best candidate and applies the match to the in-memory
// order state. A non-empty Reason means the commission stays unmatched
// (AlreadyLinked, OrderNotFound). A non-nil error is an infrastructure
// failure reading the order.
//
// On success the commission's link fields and the order's fee and payment
// keys are updated in memory, and the returned MatchWrite carries the
// persistence effect for the batch controller.
func (r *Resolver) Resolve(
	commission *storage.CommissionRecord,
	candidates []matcher.Candidate,
) (*MatchResult, *storage.MatchWrite, matcher.Reason, error) {

	// A record is never rematched once linked
	if commission.Linked() {
		return nil, nil, matcher.ReasonAlreadyLinked, nil
	}
	if len(candidates) == 0 {
		return nil, nil, matcher.ReasonNoCandidateFound, nil
	}

	best := candidates[0]
	confidence := ConfidenceRanked
	if len(candidates) == 1 {
		confidence = ConfidenceExact
	}

	order, err := r.orders.OrderByExternalID(best.Group.OrderExternalID)
	if err != nil {
		return nil, nil, "", fmt.Errorf("lookup order %q: %w", best.Group.OrderExternalID, err)
	}
	if order == nil {
		r.logger.Warn("payment group references unknown order",
			"commission_id", commission.ID,
			"payment_key", best.Group.Key,
			"order_external_id", best.Group.OrderExternalID)
		return nil, nil, matcher.ReasonOrderNotFound, nil
	}

	// Summed, not overwritten: an order may legitimately receive several
	// commissions.
	wasSummed := order.CommissionFee.IsPositive()
	order.CommissionFee = order.CommissionFee.Add(commission.BankFee)
	appended := order.AppendPaymentKey(best.Group.Key)

	orderID := order.ID
	commission.LinkedOrderID = &orderID
	commission.LinkedOrderExternalID = order.ExternalID

	write := &storage.MatchWrite{
		CommissionID:    commission.ID,
		OrderID:         order.ID,
		OrderExternalID: order.ExternalID,
		NewFee:          order.CommissionFee,
		PaymentKeys:     append([]string(nil), order.PaymentKeys...),
		FeeDelta:        commission.BankFee,
	}
	if appended {
		write.PaymentKey = best.Group.Key
	}

	result := &MatchResult{
		CommissionID:    commission.ID,
		OrderID:         order.ID,
		OrderExternalID: order.ExternalID,
		PaymentGroupKey: best.Group.Key,
		ReferenceKind:   best.ReferenceKind,
		TimeDiffHours:   best.Score,
		AmountDiff:      best.Group.TotalAmount.Sub(commission.Amount).Abs(),
		FeeAmount:       commission.BankFee,
		OrderTotalAfter: order.CommissionFee,
		Confidence:      confidence,
		WasSummed:       wasSummed,
	}

	return result, write, "", nil
}
