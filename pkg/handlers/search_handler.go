package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/schemascope/schemascope-engine/pkg/config"
	"github.com/schemascope/schemascope-engine/pkg/models"
	"github.com/schemascope/schemascope-engine/pkg/services"
)

// SearchHandler serves the semantic search endpoint.
type SearchHandler struct {
	search services.SemanticSearchService
	cfg    *config.SearchConfig
	logger *zap.Logger
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(search services.SemanticSearchService, cfg *config.SearchConfig, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		search: search,
		cfg:    cfg,
		logger: logger.Named("search-handler"),
	}
}

// RegisterRoutes registers search endpoints on the mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/search/semantic", h.Search)
}

// searchRequest is the wire form of a search. Threshold is a pointer so an
// absent field falls back to the mode's configured default rather than 0.
type searchRequest struct {
	Query                string   `json:"query"`
	Mode                 string   `json:"mode"`
	Threshold            *float64 `json:"threshold,omitempty"`
	IncludeRelationships bool     `json:"include_relationships"`
}

// Search handles POST /api/search/semantic.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	mode, err := models.ParseSearchMode(body.Mode)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := models.SearchRequest{
		Query:                body.Query,
		Mode:                 mode,
		IncludeRelationships: body.IncludeRelationships,
	}
	if body.Threshold != nil {
		req.Threshold = *body.Threshold
	} else {
		req.Threshold = h.cfg.DefaultThreshold(mode)
	}
	if err := req.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.search.Search(r.Context(), req)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}
