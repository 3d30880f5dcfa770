package handlers

import (
	"net/http"
	"time"

	"github.com/terminalledger/commission-recon/internal/api/dto"
	"github.com/terminalledger/commission-recon/internal/infrastructure/storage"
)

// CommissionsHandler handles commission record requests.
type CommissionsHandler struct {
	*Base
}

// NewCommissionsHandler creates a new commissions handler.
func NewCommissionsHandler(repo storage.Repository) *CommissionsHandler {
	return &CommissionsHandler{
		Base: NewBase(repo),
	}
}

// ListUnmatched handles GET /api/commissions/unmatched - returns commission
// records not yet linked to an order. Supports org and limit query params.
func (h *CommissionsHandler) ListUnmatched(w http.ResponseWriter, r *http.Request) {
	orgID := ParseInt64Param(r, "org", 0)
	limit := ParseIntParam(r, "limit", 100)

	commissions, err := h.repo.ListUnlinkedCommissions(storage.Scope{OrganizationID: orgID})
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	if limit > 0 && len(commissions) > limit {
		commissions = commissions[:limit]
	}

	response := dto.CommissionListResponse{
		Commissions: make([]dto.CommissionResponse, 0, len(commissions)),
		Count:       len(commissions),
	}
	for _, c := range commissions {
		response.Commissions = append(response.Commissions, toCommissionResponse(c))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// toCommissionResponse converts a storage CommissionRecord to an API response.
func toCommissionResponse(c *storage.CommissionRecord) dto.CommissionResponse {
	resp := dto.CommissionResponse{
		ID:                    c.ID,
		Amount:                c.Amount.String(),
		BankFee:               c.BankFee.String(),
		OrganizationID:        c.OrganizationID,
		LinkedOrderExternalID: c.LinkedOrderExternalID,
		Source:                c.Source,
	}
	if c.TransactionTime != nil {
		resp.TransactionTime = c.TransactionTime.Format(time.RFC3339)
	}
	return resp
}
