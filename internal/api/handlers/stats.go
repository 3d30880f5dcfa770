package handlers

import (
	"net/http"

	"github.com/terminalledger/commission-recon/internal/api/dto"
	"github.com/terminalledger/commission-recon/internal/infrastructure/storage"
)

// StatsHandler handles stats-related HTTP requests.
type StatsHandler struct {
	*Base
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(repo storage.Repository) *StatsHandler {
	return &StatsHandler{
		Base: NewBase(repo),
	}
}

// Get handles GET /api/stats - returns aggregate statistics.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.GetStats()
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.StatsResponse{
		TotalCommissions:    stats.TotalCommissions,
		LinkedCommissions:   stats.LinkedCommissions,
		UnlinkedCommissions: stats.UnlinkedCommissions,
		TotalFeeAmount:      stats.TotalFeeAmount.String(),
		LinkedFeeAmount:     stats.LinkedFeeAmount.String(),
		OrdersWithFee:       stats.OrdersWithFee,
		TotalRuns:           stats.TotalRuns,
	}

	h.WriteJSON(w, http.StatusOK, response)
}
