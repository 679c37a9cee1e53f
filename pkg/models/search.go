package models

import "fmt"

// Default similarity thresholds per mode. Analytics is stricter because
// table-level qualification already widens results; datamining casts a wide
// net over individual columns.
const (
	DefaultAnalyticsThreshold  = 0.6
	DefaultDataMiningThreshold = 0.40

	// MaxSearchThreshold caps caller-supplied thresholds. Cosine similarity
	// above 0.95 is effectively an exact-duplicate match and would hide
	// everything.
	MaxSearchThreshold = 0.95
	MinSearchThreshold = -1.0
)

// DefaultThreshold returns the default similarity threshold for a mode.
func DefaultThreshold(mode SearchMode) float64 {
	if mode == SearchModeDataMining {
		return DefaultDataMiningThreshold
	}
	return DefaultAnalyticsThreshold
}

// SearchRequest is a validated semantic search invocation.
type SearchRequest struct {
	Query                string     `json:"query"`
	Mode                 SearchMode `json:"mode"`
	Threshold            float64    `json:"threshold"`
	IncludeRelationships bool       `json:"include_relationships"`
}

// Validate enforces the request contract: a non-empty query, a concrete
// mode, and a threshold within [-1, 0.95].
func (r *SearchRequest) Validate() error {
	if r.Query == "" {
		return fmt.Errorf("query must not be empty")
	}
	if _, err := ParseSearchMode(string(r.Mode)); err != nil {
		return err
	}
	if r.Threshold < MinSearchThreshold || r.Threshold > MaxSearchThreshold {
		return fmt.Errorf("threshold %.3f out of range [%.1f, %.2f]",
			r.Threshold, MinSearchThreshold, MaxSearchThreshold)
	}
	return nil
}

// TableHit is a table in a search result, flattened for the response wire
// shape. A direct vector match carries the table's own similarity; a table
// that qualified only through its columns carries the best matched-column
// similarity.
type TableHit struct {
	CatalogSchemaTable string     `json:"catalog_schema_table"`
	RowCount           int64      `json:"row_count"`
	ColumnCount        int        `json:"column_count"`
	Summary            string     `json:"summary,omitempty"`
	CustomInstructions string     `json:"custom_instructions,omitempty"`
	SearchMode         SearchMode `json:"search_mode,omitempty"`
	Similarity         float64    `json:"similarity_score"`

	// Key is the parsed identity, kept for relationship lookups; the wire
	// form is CatalogSchemaTable.
	Key TableKey `json:"-"`
}

// NewTableHit flattens a table document into a search hit.
func NewTableHit(table *TableNode, similarity float64) TableHit {
	return TableHit{
		CatalogSchemaTable: table.Key.String(),
		RowCount:           table.RowCount,
		ColumnCount:        table.ColumnCount,
		Summary:            table.Summary,
		CustomInstructions: table.CustomInstructions,
		SearchMode:         table.SearchMode,
		Similarity:         similarity,
		Key:                table.Key,
	}
}

// ColumnHit is a column in a search result. MatchedQuery distinguishes
// columns that passed the vector threshold from columns included only
// because their table qualified in analytics mode.
type ColumnHit struct {
	CatalogSchemaTable string   `json:"catalog_schema_table"`
	ColumnName         string   `json:"column_name"`
	DataType           string   `json:"data_type"`
	ColumnType         string   `json:"column_type,omitempty"`
	SemanticType       string   `json:"semantic_type,omitempty"`
	Description        string   `json:"description,omitempty"`
	Aliases            []string `json:"aliases,omitempty"`
	Cardinality        int64    `json:"cardinality,omitempty"`
	NullPercentage     *float64 `json:"null_percentage,omitempty"`
	SampleValues       []string `json:"sample_values,omitempty"`
	MinValue           *string  `json:"min_value,omitempty"`
	MaxValue           *string  `json:"max_value,omitempty"`
	AvgValue           *float64 `json:"avg_value,omitempty"`
	Similarity         float64  `json:"similarity_score"`
	MatchedQuery       bool     `json:"matched_query"`

	TableKey TableKey `json:"-"`
}

// NewColumnHit flattens a column document into a search hit.
func NewColumnHit(col *ColumnNode, similarity float64, matched bool) ColumnHit {
	return ColumnHit{
		CatalogSchemaTable: col.TableKey.String(),
		ColumnName:         col.Name,
		DataType:           col.DataType,
		ColumnType:         col.ColumnType,
		SemanticType:       col.SemanticType,
		Description:        col.Description,
		Aliases:            col.Aliases,
		Cardinality:        col.Cardinality,
		NullPercentage:     col.NullPercentage,
		SampleValues:       col.SampleValues,
		MinValue:           col.MinValue,
		MaxValue:           col.MaxValue,
		AvgValue:           col.AvgValue,
		Similarity:         similarity,
		MatchedQuery:       matched,
		TableKey:           col.TableKey,
	}
}

// SearchMetadata groups the table and column hits of a search response.
type SearchMetadata struct {
	Tables  []TableHit  `json:"tables"`
	Columns []ColumnHit `json:"columns"`
}

// SearchResult is the engine's answer to a semantic search. Relationships
// and both metadata lists are always present, empty rather than null.
type SearchResult struct {
	QueryTooVague bool                `json:"query_too_vague"`
	Relationships []*RelationshipEdge `json:"relationships"`
	Metadata      SearchMetadata      `json:"metadata"`
}

// NewSearchResult returns an empty result with every list initialized.
func NewSearchResult() *SearchResult {
	return &SearchResult{
		Relationships: []*RelationshipEdge{},
		Metadata: SearchMetadata{
			Tables:  []TableHit{},
			Columns: []ColumnHit{},
		},
	}
}
