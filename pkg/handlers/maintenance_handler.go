package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/schemascope/schemascope-engine/pkg/services"
)

// MaintenanceHandler exposes operator reconciliation endpoints.
type MaintenanceHandler struct {
	maintenance services.MaintenanceService
	logger      *zap.Logger
}

// NewMaintenanceHandler creates a maintenance handler.
func NewMaintenanceHandler(maintenance services.MaintenanceService, logger *zap.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		maintenance: maintenance,
		logger:      logger.Named("maintenance-handler"),
	}
}

// RegisterRoutes registers maintenance endpoints on the mux.
func (h *MaintenanceHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/maintenance/verify-search-modes", h.VerifySearchModes)
	mux.HandleFunc("POST /api/maintenance/cleanup-stale-nodes", h.CleanupStaleNodes)
}

// VerifySearchModes diffs search-mode tags between the metadata store and
// the graph without changing anything.
func (h *MaintenanceHandler) VerifySearchModes(w http.ResponseWriter, r *http.Request) {
	report, err := h.maintenance.VerifySearchModes(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

// CleanupStaleNodes deletes graph tables the metadata store no longer
// considers imported.
func (h *MaintenanceHandler) CleanupStaleNodes(w http.ResponseWriter, r *http.Request) {
	report, err := h.maintenance.CleanupStaleNodes(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}
