package models

// ColumnType constants for column classification.
const (
	ColumnTypeIdentifier = "identifier" // Keys and join candidates
	ColumnTypeDimension  = "dimension"  // Categorical attributes
	ColumnTypeMeasure    = "measure"    // Numeric facts; never join candidates
	ColumnTypeTimestamp  = "timestamp"  // Temporal columns
	ColumnTypeDetail     = "detail"     // Free-form descriptive columns
)

// Geospatial semantic types. Columns carrying these encode coordinates or
// geometry and are excluded from relationship detection: two tables both
// having a latitude column says nothing about a join path between them.
var GeospatialSemanticTypes = map[string]bool{
	"latitude":         true,
	"longitude":        true,
	"wkt_geometry":     true,
	"geojson_geometry": true,
	"geometry_type":    true,
}

// ColumnNode is a column vertex in the catalog graph, always attached to its
// parent table. Statistics (min/max/avg, samples) live in the metadata store
// and are hydrated into search responses; the graph holds only what the
// embedding and filtering logic needs.
type ColumnNode struct {
	TableKey       TableKey  `json:"table_key"`
	Name           string    `json:"name"`
	DataType       string    `json:"data_type"`
	ColumnType     string    `json:"column_type,omitempty"`   // identifier, dimension, measure, timestamp, detail
	SemanticType   string    `json:"semantic_type,omitempty"` // e.g. email, currency, latitude
	Description    string    `json:"description,omitempty"`
	Aliases        []string  `json:"aliases,omitempty"`
	Cardinality    int64     `json:"cardinality,omitempty"`
	NullPercentage *float64  `json:"null_percentage,omitempty"`
	SampleValues   []string  `json:"sample_values,omitempty"`
	MinValue       *string   `json:"min_value,omitempty"`
	MaxValue       *string   `json:"max_value,omitempty"`
	AvgValue       *float64  `json:"avg_value,omitempty"`
	Embedding      []float32 `json:"-"`
}

// FullName returns table.column for logs and dedup keys.
func (c *ColumnNode) FullName() string {
	return c.TableKey.Table + "." + c.Name
}

// JoinRelevant reports whether the column may participate in relationship
// detection. Measures and geospatial columns are excluded.
func (c *ColumnNode) JoinRelevant() bool {
	if c.ColumnType == ColumnTypeMeasure {
		return false
	}
	return !GeospatialSemanticTypes[c.SemanticType]
}
