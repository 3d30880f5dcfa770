// Package aggregator derives payment groups from raw sales line items.
//
// A payment group is the set of line items sharing one terminal
// payment/transaction identifier, treated as one virtual receipt. Groups are
// recomputed fresh from current line item state on every reconciliation run;
// they have no persistence or identity across runs.
package aggregator

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/terminalledger/commission-recon/internal/infrastructure/storage"
)

// PaymentGroup is one virtual receipt: every active line item sharing a
// payment key, with the group's total amount and candidate reference times.
type PaymentGroup struct {
	Key            string
	OrganizationID int64
	TotalAmount    decimal.Decimal

	// OrderExternalID is shared by the group's members (all lines of one
	// receipt belong to one order). First non-empty member value wins.
	OrderExternalID string

	// Reference times are the group-wide maximum of each timestamp field.
	// Members of one receipt share essentially the same timestamps; max
	// tolerates partial nulls.
	OrderCreatedTime *time.Time
	PrechequeTime    *time.Time
	OpenTime         *time.Time

	Members []*storage.SalesLineItem
}

// HasReferenceTime reports whether the group offers at least one timestamp
// to compare against a commission's transaction time.
func (g *PaymentGroup) HasReferenceTime() bool {
	return g.OrderCreatedTime != nil || g.PrechequeTime != nil || g.OpenTime != nil
}

// Index holds derived payment groups with lookups by organization and by
// order external id.
type Index struct {
	byKey   map[string]*PaymentGroup
	byOrg   map[int64][]*PaymentGroup
	byOrder map[string][]*PaymentGroup
}

// Build groups active line items by payment key and indexes the result.
// Line items without a payment key never contribute to a group; inactive
// (voided) items are skipped.
func Build(items []*storage.SalesLineItem) *Index {
	idx := &Index{
		byKey:   make(map[string]*PaymentGroup),
		byOrg:   make(map[int64][]*PaymentGroup),
		byOrder: make(map[string][]*PaymentGroup),
	}

	for _, item := range items {
		if item.PaymentKey == "" || !item.Active() {
			continue
		}

		group, ok := idx.byKey[item.PaymentKey]
		if !ok {
			group = &PaymentGroup{
				Key:            item.PaymentKey,
				OrganizationID: item.OrganizationID,
			}
			idx.byKey[item.PaymentKey] = group
		}

		group.TotalAmount = group.TotalAmount.Add(item.LineAmount)
		group.Members = append(group.Members, item)
		if group.OrderExternalID == "" {
			group.OrderExternalID = item.OrderExternalID
		}
		group.OrderCreatedTime = maxTime(group.OrderCreatedTime, item.OrderCreatedTime)
		group.PrechequeTime = maxTime(group.PrechequeTime, item.PrechequeTime)
		group.OpenTime = maxTime(group.OpenTime, item.OpenTime)
	}

	for _, group := range idx.byKey {
		idx.byOrg[group.OrganizationID] = append(idx.byOrg[group.OrganizationID], group)
		if group.OrderExternalID != "" {
			idx.byOrder[group.OrderExternalID] = append(idx.byOrder[group.OrderExternalID], group)
		}
	}

	return idx
}

// Get returns the group for a payment key, or nil
func (idx *Index) Get(key string) *PaymentGroup {
	return idx.byKey[key]
}

// ByOrganization returns all groups for an organization
func (idx *Index) ByOrganization(orgID int64) []*PaymentGroup {
	return idx.byOrg[orgID]
}

// ByOrderExternalID returns all groups whose members reference the order
func (idx *Index) ByOrderExternalID(externalID string) []*PaymentGroup {
	return idx.byOrder[externalID]
}

// Len returns the number of payment groups
func (idx *Index) Len() int {
	return len(idx.byKey)
}

func maxTime(current, candidate *time.Time) *time.Time {
	if candidate == nil {
		return current
	}
	if current == nil || candidate.After(*current) {
		v := *candidate
		return &v
	}
	return current
}
