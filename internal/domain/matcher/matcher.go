// Package matcher correlates commission records with payment groups.
//
// Matching happens in two stages:
//   - FindCandidates filters payment groups by organization, aggregate
//     amount, and a coarse calendar-day window.
//   - Rank scores each surviving group by the minimal absolute delta
//     between the commission's transaction time and the group's reference
//     times, discarding groups outside the time window threshold.
//
// Example usage:
//
//	m := matcher.NewMatcher(matcher.DefaultConfig())
//	groups := m.FindCandidates(commission, index, usedKeys, discounts)
//	candidates, reason := m.Rank(commission, groups)
//	if reason == "" {
//		best := candidates[0]
//	}
package matcher

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/terminalledger/commission-recon/internal/domain/aggregator"
	"github.com/terminalledger/commission-recon/internal/infrastructure/storage"
)

// OrderDiscountLookup resolves an order's discount and creation time by its
// external id, for the legacy fallback path. ok is false when no such order
// exists.
type OrderDiscountLookup interface {
	OrderDiscount(externalID string) (discount decimal.Decimal, createdTime time.Time, ok bool)
}

// Matcher matches commission records with payment groups
type Matcher struct {
	config Config
}

// NewMatcher creates a new matcher with the given config
func NewMatcher(config Config) *Matcher {
	return &Matcher{config: config}
}

// FindCandidates returns payment groups compatible with the commission:
// same organization, total amount within tolerance of the commission amount,
// and at least one reference time inside the coarse date window. Groups
// whose key appears in usedKeys are excluded.
//
// When no group matches by sum, the legacy fallback compares the commission
// amount against each group's order discount (within DiscountTolerance).
// Pass a nil discounts lookup to disable the fallback.
func (m *Matcher) FindCandidates(
	commission *storage.CommissionRecord,
	index *aggregator.Index,
	usedKeys map[string]bool,
	discounts OrderDiscountLookup,
) []*aggregator.PaymentGroup {

	groups := index.ByOrganization(commission.OrganizationID)

	var candidates []*aggregator.PaymentGroup
	for _, group := range groups {
		if usedKeys[group.Key] {
			continue
		}
		if !m.inDateWindow(commission, group) {
			continue
		}
		diff := group.TotalAmount.Sub(commission.Amount).Abs()
		if diff.Cmp(m.config.AmountTolerance) <= 0 {
			candidates = append(candidates, group)
		}
	}
	if len(candidates) > 0 || discounts == nil {
		return candidates
	}

	// Legacy fallback: no group matched by sum, so compare against the
	// owning order's discount field instead.
	for _, group := range groups {
		if usedKeys[group.Key] || group.OrderExternalID == "" {
			continue
		}
		if !m.inDateWindow(commission, group) {
			continue
		}
		discount, _, ok := discounts.OrderDiscount(group.OrderExternalID)
		if !ok || discount.IsZero() {
			continue
		}
		if discount.Sub(commission.Amount).Abs().Cmp(m.config.DiscountTolerance) <= 0 {
			candidates = append(candidates, group)
		}
	}
	return candidates
}

// inDateWindow checks that at least one of the group's reference times falls
// within the coarse window around the commission's transaction day: from the
// morning cutoff of the previous day to the morning cutoff of the following
// day. The backward reach keeps a payment settled late in the evening
// matchable against a commission booked shortly after midnight. A commission
// without a transaction time passes the coarse filter; Rank rejects it with a
// precise reason.
func (m *Matcher) inDateWindow(commission *storage.CommissionRecord, group *aggregator.PaymentGroup) bool {
	if commission.TransactionTime == nil {
		return true
	}
	tx := *commission.TransactionTime
	cutoff := time.Duration(m.config.MorningCutoffHour) * time.Hour
	dayStart := time.Date(tx.Year(), tx.Month(), tx.Day(), 0, 0, 0, 0, tx.Location())
	windowStart := dayStart.Add(cutoff - 24*time.Hour)
	windowEnd := dayStart.Add(cutoff + 24*time.Hour)

	for _, ref := range referenceTimes(group) {
		if !ref.at.Before(windowStart) && ref.at.Before(windowEnd) {
			return true
		}
	}
	return false
}

// Rank scores the candidate groups by minimal reference-time delta and
// returns them sorted ascending, ties broken by payment key so re-runs are
// deterministic. A non-empty Reason means no candidate survived:
// ReasonNoTransactionTime when the commission has no timestamp to compare,
// ReasonRejectedByTimeFilter when every minimal delta exceeds the window.
func (m *Matcher) Rank(commission *storage.CommissionRecord, groups []*aggregator.PaymentGroup) ([]Candidate, Reason) {
	if len(groups) == 0 {
		return nil, ReasonNoCandidateFound
	}
	if commission.TransactionTime == nil {
		return nil, ReasonNoTransactionTime
	}
	tx := *commission.TransactionTime

	candidates := make([]Candidate, 0, len(groups))
	for _, group := range groups {
		best := math.Inf(1)
		var kind ReferenceKind

		// An order may be opened, pre-paid, and only settled on the
		// terminal days later. Comparing against every available moment
		// and keeping the minimum avoids false rejections when a single
		// timestamp is stale or missing.
		for _, ref := range referenceTimes(group) {
			diff := math.Abs(tx.Sub(ref.at).Hours())
			if diff < best {
				best = diff
				kind = ref.kind
			}
		}

		if best > m.config.MaxTimeDiffHours {
			continue
		}
		candidates = append(candidates, Candidate{
			Group:         group,
			Score:         best,
			ReferenceKind: kind,
		})
	}

	if len(candidates) == 0 {
		return nil, ReasonRejectedByTimeFilter
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score < candidates[j].Score
		}
		return candidates[i].Group.Key < candidates[j].Group.Key
	})

	return candidates, ""
}

type referenceTime struct {
	kind ReferenceKind
	at   time.Time
}

// referenceTimes lists the group's available timestamps with their kinds
func referenceTimes(group *aggregator.PaymentGroup) []referenceTime {
	refs := make([]referenceTime, 0, 3)
	if group.OrderCreatedTime != nil {
		refs = append(refs, referenceTime{ReferenceOrderCreated, *group.OrderCreatedTime})
	}
	if group.PrechequeTime != nil {
		refs = append(refs, referenceTime{ReferencePrecheque, *group.PrechequeTime})
	}
	if group.OpenTime != nil {
		refs = append(refs, referenceTime{ReferenceOpen, *group.OpenTime})
	}
	return refs
}
