package dto

import (
	"encoding/json"
	"time"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// RunResponse represents a reconciliation run in API responses.
type RunResponse struct {
	ID               int64           `json:"id"`
	StartedAt        string          `json:"started_at"`
	CompletedAt      string          `json:"completed_at,omitempty"`
	StartDate        string          `json:"start_date,omitempty"`
	EndDate          string          `json:"end_date,omitempty"`
	OrganizationID   int64           `json:"organization_id"`
	BatchSize        int             `json:"batch_size"`
	MaxTimeDiffHours float64         `json:"max_time_diff_hours"`
	DryRun           bool            `json:"dry_run"`
	Status           string          `json:"status"`
	TotalCandidates  int             `json:"total_candidates"`
	Matched          int             `json:"matched"`
	Failed           int             `json:"failed"`
	Report           json.RawMessage `json:"report,omitempty"`
}

// RunListResponse is returned when listing reconciliation runs.
type RunListResponse struct {
	Runs  []RunResponse `json:"runs"`
	Count int           `json:"count"`
}

// CommissionResponse represents a commission record in API responses.
type CommissionResponse struct {
	ID                    int64  `json:"id"`
	Amount                string `json:"amount"`
	BankFee               string `json:"bank_fee"`
	OrganizationID        int64  `json:"organization_id"`
	TransactionTime       string `json:"transaction_time,omitempty"`
	LinkedOrderExternalID string `json:"linked_order_external_id,omitempty"`
	Source                string `json:"source,omitempty"`
}

// CommissionListResponse is returned when listing unmatched commissions.
type CommissionListResponse struct {
	Commissions []CommissionResponse `json:"commissions"`
	Count       int                  `json:"count"`
}

// StatsResponse represents aggregate statistics.
type StatsResponse struct {
	TotalCommissions    int    `json:"total_commissions"`
	LinkedCommissions   int    `json:"linked_commissions"`
	UnlinkedCommissions int    `json:"unlinked_commissions"`
	TotalFeeAmount      string `json:"total_fee_amount"`
	LinkedFeeAmount     string `json:"linked_fee_amount"`
	OrdersWithFee       int    `json:"orders_with_fee"`
	TotalRuns           int    `json:"total_runs"`
}

// MessageResponse is a generic message response.
type MessageResponse struct {
	Message string `json:"message"`
}
