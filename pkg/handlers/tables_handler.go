package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/schemascope/schemascope-engine/pkg/graph"
	"github.com/schemascope/schemascope-engine/pkg/models"
	"github.com/schemascope/schemascope-engine/pkg/services"
)

// TablesHandler serves the catalog import and relationship endpoints.
type TablesHandler struct {
	importer  services.CatalogImportService
	detection services.DetectionOrchestrator
	store     graph.Store
	logger    *zap.Logger
}

// NewTablesHandler creates a tables handler.
func NewTablesHandler(
	importer services.CatalogImportService,
	detection services.DetectionOrchestrator,
	store graph.Store,
	logger *zap.Logger,
) *TablesHandler {
	return &TablesHandler{
		importer:  importer,
		detection: detection,
		store:     store,
		logger:    logger.Named("tables-handler"),
	}
}

// RegisterRoutes registers table endpoints on the mux.
func (h *TablesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tables/{catalog}/{schema}/{table}/import", h.Import)
	mux.HandleFunc("DELETE /api/tables/{catalog}/{schema}/{table}", h.Delete)
	mux.HandleFunc("GET /api/tables/{catalog}/{schema}/{table}/relationships", h.Relationships)
	mux.HandleFunc("GET /api/tables/{catalog}/{schema}/{table}/detection-status", h.DetectionStatus)
	mux.HandleFunc("POST /api/tables/{catalog}/{schema}/{table}/detect", h.Detect)
}

func tableKeyFromPath(r *http.Request) (models.TableKey, bool) {
	key := models.TableKey{
		Catalog: r.PathValue("catalog"),
		Schema:  r.PathValue("schema"),
		Table:   r.PathValue("table"),
	}
	return key, !key.IsZero()
}

// importRequest is the enrichment document for one table. Column table keys
// are assigned from the URL, not trusted from the body.
type importRequest struct {
	RowCount           int64                `json:"row_count"`
	Summary            string               `json:"summary"`
	CustomInstructions string               `json:"custom_instructions"`
	SearchMode         string               `json:"search_mode"`
	Columns            []*models.ColumnNode `json:"columns"`
}

// importResponse acknowledges an accepted import.
type importResponse struct {
	Table           string `json:"table"`
	Columns         int    `json:"columns"`
	DetectionQueued bool   `json:"detection_queued"`
}

// Import handles POST /api/tables/{catalog}/{schema}/{table}/import. The
// import itself runs synchronously; relationship detection continues in the
// background after the response.
func (h *TablesHandler) Import(w http.ResponseWriter, r *http.Request) {
	key, ok := tableKeyFromPath(r)
	if !ok {
		WriteError(w, http.StatusBadRequest, "catalog, schema and table are required")
		return
	}

	var body importRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(body.Columns) == 0 {
		WriteError(w, http.StatusBadRequest, "at least one column is required")
		return
	}

	mode := models.SearchModeAny
	if body.SearchMode != "" {
		parsed, err := models.ParseSearchMode(body.SearchMode)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		mode = parsed
	}

	table := &models.TableNode{
		Key:                key,
		RowCount:           body.RowCount,
		ColumnCount:        len(body.Columns),
		Summary:            body.Summary,
		CustomInstructions: body.CustomInstructions,
		SearchMode:         mode,
		UpdatedAt:          time.Now().UTC(),
	}
	for _, col := range body.Columns {
		if col.Name == "" {
			WriteError(w, http.StatusBadRequest, "column name is required")
			return
		}
		col.TableKey = key
	}

	if err := h.importer.ImportTable(r.Context(), table, body.Columns); err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, importResponse{
		Table:           key.String(),
		Columns:         len(body.Columns),
		DetectionQueued: true,
	})
}

// Delete handles DELETE /api/tables/{catalog}/{schema}/{table}.
func (h *TablesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key, ok := tableKeyFromPath(r)
	if !ok {
		WriteError(w, http.StatusBadRequest, "catalog, schema and table are required")
		return
	}

	if err := h.importer.DeleteTable(r.Context(), key); err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// relationshipsResponse wraps a table's edges.
type relationshipsResponse struct {
	Table         string                     `json:"table"`
	Relationships []*models.RelationshipEdge `json:"relationships"`
}

// Relationships handles GET .../relationships, returning every edge touching
// the table in either direction.
func (h *TablesHandler) Relationships(w http.ResponseWriter, r *http.Request) {
	key, ok := tableKeyFromPath(r)
	if !ok {
		WriteError(w, http.StatusBadRequest, "catalog, schema and table are required")
		return
	}

	edges, err := h.store.RelationshipsForTable(r.Context(), key)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	if edges == nil {
		edges = []*models.RelationshipEdge{}
	}
	WriteJSON(w, http.StatusOK, relationshipsResponse{
		Table:         key.String(),
		Relationships: edges,
	})
}

// detectionStatusResponse reports where a table's detection run stands.
type detectionStatusResponse struct {
	Table  string                 `json:"table"`
	Status models.DetectionStatus `json:"status"`
	Error  string                 `json:"error,omitempty"`
}

// DetectionStatus handles GET .../detection-status.
func (h *TablesHandler) DetectionStatus(w http.ResponseWriter, r *http.Request) {
	key, ok := tableKeyFromPath(r)
	if !ok {
		WriteError(w, http.StatusBadRequest, "catalog, schema and table are required")
		return
	}

	status, detectionErr, err := h.detection.Status(r.Context(), key)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, detectionStatusResponse{
		Table:  key.String(),
		Status: status,
		Error:  detectionErr,
	})
}

// detectResponse reports whether a manual trigger actually started a run.
type detectResponse struct {
	Table   string `json:"table"`
	Started bool   `json:"started"`
}

// Detect handles POST .../detect, re-triggering detection for a table. A
// false started means a run was already in flight.
func (h *TablesHandler) Detect(w http.ResponseWriter, r *http.Request) {
	key, ok := tableKeyFromPath(r)
	if !ok {
		WriteError(w, http.StatusBadRequest, "catalog, schema and table are required")
		return
	}

	started, err := h.detection.Trigger(r.Context(), key)
	if err != nil {
		WriteServiceError(w, h.logger, err)
		return
	}

	status := http.StatusAccepted
	if !started {
		status = http.StatusConflict
	}
	WriteJSON(w, status, detectResponse{
		Table:   key.String(),
		Started: started,
	})
}
