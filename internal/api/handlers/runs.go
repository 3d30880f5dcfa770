package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terminalledger/commission-recon/internal/api/dto"
	"github.com/terminalledger/commission-recon/internal/infrastructure/storage"
)

// RunsHandler handles reconciliation run history requests.
type RunsHandler struct {
	*Base
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(repo storage.Repository) *RunsHandler {
	return &RunsHandler{
		Base: NewBase(repo),
	}
}

// List handles GET /api/runs - returns recent reconciliation runs.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := ParseIntParam(r, "limit", 20)

	runs, err := h.repo.ListRuns(limit)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.RunListResponse{
		Runs:  make([]dto.RunResponse, 0, len(runs)),
		Count: len(runs),
	}
	for _, run := range runs {
		// Full reports can be large; list responses carry counters only
		response.Runs = append(response.Runs, toRunResponse(&run, false))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/runs/{id} - returns one run with its full report.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	if idStr == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("run ID is required"))
		return
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid run ID"))
		return
	}

	run, err := h.repo.GetRun(id)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	if run == nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("run"))
		return
	}

	h.WriteJSON(w, http.StatusOK, toRunResponse(run, true))
}

// GetReport handles GET /api/runs/{id}/report - returns the raw report JSON.
func (h *RunsHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid run ID"))
		return
	}

	run, err := h.repo.GetRun(id)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	if run == nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("run"))
		return
	}
	if run.ReportJSON == "" {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("report"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(run.ReportJSON))
}

// toRunResponse converts a storage ReconRun to an API response.
func toRunResponse(run *storage.ReconRun, includeReport bool) dto.RunResponse {
	resp := dto.RunResponse{
		ID:               run.ID,
		StartedAt:        run.StartedAt.Format(time.RFC3339),
		OrganizationID:   run.OrganizationID,
		BatchSize:        run.BatchSize,
		MaxTimeDiffHours: run.MaxTimeDiffHours,
		DryRun:           run.DryRun,
		Status:           run.Status,
		TotalCandidates:  run.TotalCandidates,
		Matched:          run.Matched,
		Failed:           run.Failed,
	}
	if run.CompletedAt != nil {
		resp.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	if run.StartDate != nil {
		resp.StartDate = run.StartDate.Format(time.RFC3339)
	}
	if run.EndDate != nil {
		resp.EndDate = run.EndDate.Format(time.RFC3339)
	}
	if includeReport && run.ReportJSON != "" {
		resp.Report = json.RawMessage(run.ReportJSON)
	}
	return resp
}
