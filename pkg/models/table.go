package models

import (
	"fmt"
	"strings"
	"time"
)

// SearchMode restricts which surface a table is visible to during semantic
// search. An empty mode means the table carries no tag and is visible to both.
type SearchMode string

const (
	SearchModeAnalytics  SearchMode = "analytics"  // Table-oriented search with smart column filtering
	SearchModeDataMining SearchMode = "datamining" // Column-level exploration
	SearchModeAny        SearchMode = ""           // No tag; visible in both modes
)

// ParseSearchMode validates a caller-supplied mode string.
// Unlike table tags, a search request must name a concrete mode.
func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(strings.ToLower(strings.TrimSpace(s))) {
	case SearchModeAnalytics:
		return SearchModeAnalytics, nil
	case SearchModeDataMining:
		return SearchModeDataMining, nil
	default:
		return "", fmt.Errorf("invalid search mode %q (want %q or %q)", s, SearchModeAnalytics, SearchModeDataMining)
	}
}

// DetectionStatus tracks the lifecycle of relationship detection for a table.
type DetectionStatus string

const (
	DetectionNotStarted DetectionStatus = "not_started"
	DetectionInProgress DetectionStatus = "in_progress"
	DetectionCompleted  DetectionStatus = "completed"
	DetectionFailed     DetectionStatus = "failed"
)

// ImportStatus tracks whether a table's nodes have been written to the graph.
const (
	ImportStatusNotImported = "not_imported"
	ImportStatusImporting   = "importing"
	ImportStatusImported    = "imported"
	ImportStatusFailed      = "failed"
)

// TableKey identifies a table by its fully qualified name.
type TableKey struct {
	Catalog string `json:"catalog"`
	Schema  string `json:"schema"`
	Table   string `json:"table"`
}

// String returns the dotted form used as the node identity everywhere:
// catalog.schema.table.
func (k TableKey) String() string {
	return k.Catalog + "." + k.Schema + "." + k.Table
}

// IsZero reports whether any component of the key is missing.
func (k TableKey) IsZero() bool {
	return k.Catalog == "" || k.Schema == "" || k.Table == ""
}

// ParseTableKey parses a dotted catalog.schema.table identifier.
func ParseTableKey(s string) (TableKey, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return TableKey{}, fmt.Errorf("invalid table key %q (want catalog.schema.table)", s)
	}
	return TableKey{Catalog: parts[0], Schema: parts[1], Table: parts[2]}, nil
}

// TableNode is a table vertex in the catalog graph. The embedding is computed
// over the generated summary text and padded to the store's fixed dimension.
type TableNode struct {
	Key                TableKey   `json:"key"`
	RowCount           int64      `json:"row_count"`
	ColumnCount        int        `json:"column_count"`
	Summary            string     `json:"summary,omitempty"`             // Business purpose text, LLM-enriched upstream
	CustomInstructions string     `json:"custom_instructions,omitempty"` // Operator guidance surfaced in search results
	SearchMode         SearchMode `json:"search_mode,omitempty"`
	Embedding          []float32  `json:"-"`
	UpdatedAt          time.Time  `json:"updated_at,omitempty"`
}
