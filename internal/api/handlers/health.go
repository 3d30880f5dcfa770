package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/terminalledger/commission-recon/internal/api/dto"
)

// Health returns the health check handler used by load balancers.
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(dto.NewHealthResponse())
	}
}
