package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terminalledger/commission-recon/internal/api/dto"
	"github.com/terminalledger/commission-recon/internal/application/service"
)

// ReconHandler handles reconciliation job HTTP requests.
type ReconHandler struct {
	*Base
	reconService *service.ReconService
}

// NewReconHandler creates a new reconciliation handler.
func NewReconHandler(reconService *service.ReconService) *ReconHandler {
	return &ReconHandler{
		Base:         &Base{},
		reconService: reconService,
	}
}

// StartRecon handles POST /api/reconcile - starts a new reconciliation job.
func (h *ReconHandler) StartRecon(w http.ResponseWriter, r *http.Request) {
	var req dto.StartReconRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return
	}

	startDate, err := parseDateParam(req.StartDate)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("invalid start_date"))
		return
	}
	endDate, err := parseDateParam(req.EndDate)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("invalid end_date"))
		return
	}

	serviceReq := service.ReconRequest{
		StartDate:        startDate,
		EndDate:          endDate,
		OrganizationID:   req.OrganizationID,
		BatchSize:        req.BatchSize,
		MaxTimeDiffHours: req.MaxTimeDiffHours,
		DryRun:           req.DryRun,
		Verbose:          req.Verbose,
	}

	jobID, err := h.reconService.StartReconciliation(r.Context(), serviceReq)
	if err != nil {
		h.WriteError(w, http.StatusConflict, dto.APIError{
			Code:    "recon_conflict",
			Message: err.Error(),
		})
		return
	}

	response := dto.StartReconResponse{
		JobID:  jobID,
		Status: string(service.StatusPending),
		DryRun: req.DryRun,
	}

	h.WriteJSON(w, http.StatusAccepted, response)
}

// GetReconStatus handles GET /api/reconcile/{jobId} - gets job status.
func (h *ReconHandler) GetReconStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("job ID is required"))
		return
	}

	job, err := h.reconService.GetJob(jobID)
	if err != nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("reconciliation job"))
		return
	}

	h.WriteJSON(w, http.StatusOK, toReconJobResponse(job))
}

// ListActiveRecons handles GET /api/reconcile/active - lists active jobs.
func (h *ReconHandler) ListActiveRecons(w http.ResponseWriter, r *http.Request) {
	jobs := h.reconService.ListActiveJobs()

	response := dto.ActiveJobsResponse{
		Jobs:  make([]dto.ReconJobResponse, 0, len(jobs)),
		Count: len(jobs),
	}
	for _, job := range jobs {
		response.Jobs = append(response.Jobs, toReconJobResponse(job))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// ListAllRecons handles GET /api/reconcile - lists all jobs.
func (h *ReconHandler) ListAllRecons(w http.ResponseWriter, r *http.Request) {
	jobs := h.reconService.ListAllJobs()

	response := dto.AllJobsResponse{
		Jobs:  make([]dto.ReconJobResponse, 0, len(jobs)),
		Count: len(jobs),
	}
	for _, job := range jobs {
		response.Jobs = append(response.Jobs, toReconJobResponse(job))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// CancelRecon handles DELETE /api/reconcile/{jobId} - cancels a job.
func (h *ReconHandler) CancelRecon(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("job ID is required"))
		return
	}

	if err := h.reconService.CancelJob(jobID); err != nil {
		h.WriteError(w, http.StatusConflict, dto.APIError{
			Code:    "cancel_failed",
			Message: err.Error(),
		})
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.MessageResponse{
		Message: "Reconciliation job cancelled successfully",
	})
}

// toReconJobResponse converts a service model to an API response.
func toReconJobResponse(job *service.ReconJob) dto.ReconJobResponse {
	response := dto.ReconJobResponse{
		JobID:     job.ID,
		Status:    string(job.Status),
		DryRun:    job.Request.DryRun,
		StartedAt: job.StartedAt.Format(time.RFC3339),
	}

	if job.CompletedAt != nil {
		completedAt := job.CompletedAt.Format(time.RFC3339)
		response.CompletedAt = &completedAt
	}

	if job.Result != nil {
		summary := job.Result.Report.Summary
		response.Result = &dto.ReconResultResponse{
			RunID:           job.Result.RunID,
			TotalCandidates: summary.TotalCandidates,
			Matched:         summary.Matched,
			Failed:          summary.Failed,
			MatchPercentage: summary.MatchPercentage,
			OrdersUpdated:   summary.OrdersUpdated,
		}
	}

	if job.Error != nil {
		errMsg := job.Error.Error()
		response.Error = &errMsg
	}

	return response
}

// parseDateParam accepts RFC3339 timestamps or bare YYYY-MM-DD dates.
func parseDateParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
