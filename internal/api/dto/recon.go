package dto

// StartReconRequest is the request body for starting a reconciliation.
type StartReconRequest struct {
	StartDate        string  `json:"start_date"`          // RFC3339 or YYYY-MM-DD, optional
	EndDate          string  `json:"end_date"`            // RFC3339 or YYYY-MM-DD, optional
	OrganizationID   int64   `json:"organization_id"`     // 0 = all organizations
	BatchSize        int     `json:"batch_size"`          // 0 = configured default
	MaxTimeDiffHours float64 `json:"max_time_diff_hours"` // 0 = configured default
	DryRun           bool    `json:"dry_run"`             // Preview mode
	Verbose          bool    `json:"verbose"`             // Verbose logging
}

// StartReconResponse is returned when a reconciliation is started.
type StartReconResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	DryRun bool   `json:"dry_run"`
}

// ReconJobResponse represents a reconciliation job's status.
type ReconJobResponse struct {
	JobID       string               `json:"job_id"`
	Status      string               `json:"status"`
	DryRun      bool                 `json:"dry_run"`
	StartedAt   string               `json:"started_at"`
	CompletedAt *string              `json:"completed_at,omitempty"`
	Result      *ReconResultResponse `json:"result,omitempty"`
	Error       *string              `json:"error,omitempty"`
}

// ReconResultResponse represents the final result of a run.
type ReconResultResponse struct {
	RunID           int64   `json:"run_id"`
	TotalCandidates int     `json:"total_candidates"`
	Matched         int     `json:"matched"`
	Failed          int     `json:"failed"`
	MatchPercentage float64 `json:"match_percentage"`
	OrdersUpdated   int     `json:"orders_updated"`
}

// ActiveJobsResponse lists active reconciliation jobs.
type ActiveJobsResponse struct {
	Jobs  []ReconJobResponse `json:"jobs"`
	Count int                `json:"count"`
}

// AllJobsResponse lists all reconciliation jobs (including completed).
type AllJobsResponse struct {
	Jobs  []ReconJobResponse `json:"jobs"`
	Count int                `json:"count"`
}
