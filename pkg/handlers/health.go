package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/schemascope/schemascope-engine/pkg/config"
)

// HealthHandler serves liveness endpoints.
type HealthHandler struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(cfg *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		cfg:    cfg,
		logger: logger.Named("health"),
	}
}

// RegisterRoutes registers health endpoints on the mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health responds with a bare liveness signal.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// PingResponse identifies the service and build.
type PingResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Env     string `json:"env"`
}

// Ping responds with service identity, useful for smoke tests.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, PingResponse{
		Service: "schemascope-engine",
		Version: h.cfg.Version,
		Env:     h.cfg.Env,
	})
}
