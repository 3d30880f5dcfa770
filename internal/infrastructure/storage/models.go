package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Write-off status values for sales line items. Only active items
// participate in payment-group aggregation.
const (
	WriteoffActive  = "active"
	WriteoffVoided  = "voided_with_writeoff"
	WriteoffNoStock = "voided_without_writeoff"
)

// CommissionRecord is a single bank/terminal fee charge to be attributed
// to an order. LinkedOrderID stays nil until the record is matched and is
// never rewritten afterwards.
type CommissionRecord struct {
	ID                    int64           `json:"id"`
	Amount                decimal.Decimal `json:"amount"`   // gross charge amount
	BankFee               decimal.Decimal `json:"bank_fee"` // the commission itself
	OrganizationID        int64           `json:"organization_id"`
	TransactionTime       *time.Time      `json:"transaction_time"`
	LinkedOrderID         *int64          `json:"linked_order_id,omitempty"`
	LinkedOrderExternalID string          `json:"linked_order_external_id,omitempty"`
	Source                string          `json:"source,omitempty"` // statement document reference
}

// Linked reports whether this commission has already been attributed to an order.
func (c *CommissionRecord) Linked() bool {
	return c.LinkedOrderID != nil
}

// SalesLineItem is one point-of-sale line belonging to a terminal payment.
// Lines sharing a PaymentKey form one virtual receipt.
type SalesLineItem struct {
	ID               int64           `json:"id"`
	PaymentKey       string          `json:"payment_key"` // terminal payment/transaction identifier
	OrderExternalID  string          `json:"order_external_id"`
	OrganizationID   int64           `json:"organization_id"`
	LineAmount       decimal.Decimal `json:"line_amount"` // discounted amount
	OrderCreatedTime *time.Time      `json:"order_created_time,omitempty"`
	PrechequeTime    *time.Time      `json:"precheque_time,omitempty"`
	OpenTime         *time.Time      `json:"open_time,omitempty"`
	WriteoffStatus   string          `json:"writeoff_status"`
}

// Active reports whether the line participates in aggregation.
func (s *SalesLineItem) Active() bool {
	return s.WriteoffStatus == WriteoffActive
}

// Order is a sales order. CommissionFee only ever grows: every matched
// commission adds its bank fee on top of the current value. PaymentKeys is
// the ordered, de-duplicated set of consumed payment-group keys.
type Order struct {
	ID             int64           `json:"id"`
	ExternalID     string          `json:"external_id"`
	OrganizationID int64           `json:"organization_id"`
	CreatedTime    time.Time       `json:"created_time"`
	Discount       decimal.Decimal `json:"discount"`
	CommissionFee  decimal.Decimal `json:"commission_fee"`
	PaymentKeys    []string        `json:"payment_keys"`
}

// AppendPaymentKey adds key to the order's consumed payment keys if not
// already present. Returns true when the key was appended.
func (o *Order) AppendPaymentKey(key string) bool {
	for _, k := range o.PaymentKeys {
		if k == key {
			return false
		}
	}
	o.PaymentKeys = append(o.PaymentKeys, key)
	return true
}

// RemovePaymentKey deletes key from the order's consumed payment keys.
// Returns true when the key was present.
func (o *Order) RemovePaymentKey(key string) bool {
	for i, k := range o.PaymentKeys {
		if k == key {
			o.PaymentKeys = append(o.PaymentKeys[:i], o.PaymentKeys[i+1:]...)
			return true
		}
	}
	return false
}

// MarshalPaymentKeys serializes the payment key list for DB storage.
func (o *Order) MarshalPaymentKeys() string {
	if len(o.PaymentKeys) == 0 {
		return "[]"
	}
	data, err := json.Marshal(o.PaymentKeys)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// UnmarshalPaymentKeys deserializes the payment key list from DB storage.
func (o *Order) UnmarshalPaymentKeys(raw string) {
	o.PaymentKeys = nil
	if raw == "" {
		return
	}
	_ = json.Unmarshal([]byte(raw), &o.PaymentKeys)
}

// MatchWrite is one buffered persistence effect of a resolved match: the
// commission link plus the order's new cumulative fee and payment keys.
// NewFee and PaymentKeys are snapshots of the order state after this match;
// FeeDelta and PaymentKey are this match's own contribution to them, kept so
// a write that fails to persist can be backed out of sibling snapshots.
// PaymentKey is empty when the key was already on the order.
type MatchWrite struct {
	CommissionID    int64
	OrderID         int64
	OrderExternalID string
	NewFee          decimal.Decimal
	PaymentKeys     []string
	FeeDelta        decimal.Decimal
	PaymentKey      string
}

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ReconRun records one reconciliation run for audit.
type ReconRun struct {
	ID               int64      `json:"id"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	StartDate        *time.Time `json:"start_date,omitempty"`
	EndDate          *time.Time `json:"end_date,omitempty"`
	OrganizationID   int64      `json:"organization_id"` // 0 = all organizations
	BatchSize        int        `json:"batch_size"`
	MaxTimeDiffHours float64    `json:"max_time_diff_hours"`
	DryRun           bool       `json:"dry_run"`
	Status           string     `json:"status"`
	TotalCandidates  int        `json:"total_candidates"`
	Matched          int        `json:"matched"`
	Failed           int        `json:"failed"`
	ReportJSON       string     `json:"-"`
}

// Scope bounds which commissions and line items a run reads.
// Zero values mean "unbounded".
type Scope struct {
	StartDate      *time.Time
	EndDate        *time.Time
	OrganizationID int64
}

// Stats holds aggregate reconciliation statistics across all runs.
type Stats struct {
	TotalCommissions    int             `json:"total_commissions"`
	LinkedCommissions   int             `json:"linked_commissions"`
	UnlinkedCommissions int             `json:"unlinked_commissions"`
	TotalFeeAmount      decimal.Decimal `json:"total_fee_amount"`
	LinkedFeeAmount     decimal.Decimal `json:"linked_fee_amount"`
	OrdersWithFee       int             `json:"orders_with_fee"`
	TotalRuns           int             `json:"total_runs"`
}
