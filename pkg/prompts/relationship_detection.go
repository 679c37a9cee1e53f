// Package prompts builds the LLM prompts used by relationship detection.
package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DetectionColumn is the column metadata surfaced to the model. Only fields
// that help judge joinability are included; statistics like null percentage
// stay out of the prompt.
type DetectionColumn struct {
	Name            string `json:"name"`
	DataType        string `json:"data_type"`
	ColumnType      string `json:"column_type,omitempty"`
	SemanticType    string `json:"semantic_type,omitempty"`
	Aliases         string `json:"aliases,omitempty"`
	Description     string `json:"description,omitempty"`
	Cardinality     int64  `json:"cardinality"`
	LikelyReference string `json:"likely_reference,omitempty"` // Target table hinted by naming convention
}

type detectionTable struct {
	TableName string            `json:"table_name"`
	Columns   []DetectionColumn `json:"columns"`
}

// RelationshipDetectionSystemPrompt instructs the model on the three main
// relationship types, the subtype convention, and the JSON output contract.
func RelationshipDetectionSystemPrompt() string {
	return `You are an expert database relationship analyzer. Your task is to identify ALL meaningful relationships between database tables by analyzing their column metadata.

Analyze column metadata including:
- Column names and aliases (semantic meaning)
- Data types (must match or be compatible)
- Semantic types (country, city, state, email, currency, etc.)
- Descriptions (business context)
- Column types (identifier, dimension, measure, timestamp, detail)
- Cardinality (relationship hints)

## Identify ALL Types of Relationships:

### 1. foreign_key (Main Type)
Traditional referential integrity relationships.

Subtypes you can use:
- "one_to_many" - Standard FK (orders -> customers)
- "many_to_many" - Junction table relationship
- "self_referential" - Same table reference (employee -> manager)
- "composite_key" - Multi-column FK

Criteria:
- Column names match/similar (customer_id -> id)
- Data types compatible
- Source references target identifier
- Cardinality suggests FK (source >= target)

### 2. semantic (Main Type)
Same business meaning or domain.

Subtypes you can use:
- "geographic" - Location-based (country, state, city)
- "temporal" - Time-based (dates, timestamps)
- "hierarchical" - Parent-child categories
- "measurement" - Units/metrics (distance, weight, currency)
- "status_code" - Status/type lookups
- "identifier_mapping" - Different ID systems for same entity
- "enumeration" - Enumerated values/codes

Criteria:
- Same semantic_type (country -> country, city -> city)
- Descriptions indicate same business entity
- Aliases suggest relationship
- Data types match

### 3. name_based (Main Type)
Similar names suggesting relationship.

Subtypes you can use:
- "exact_match" - Identical column names
- "partial_match" - Similar names (product_name -> prod_name)
- "business_logic" - Names suggest business connection
- "derived_field" - Calculated/aggregated values

Criteria:
- Column names match or very similar
- Data types match
- Business logic suggests connection

## IMPORTANT RULES:
1. Always assign both main type AND subtype
2. Create descriptive subtypes that explain the specific relationship; if none of the examples fit, create your own
3. Only return relationships with confidence >= 0.6
4. Higher confidence for stronger evidence:
   - semantic_type match + name match = 0.85-0.95
   - semantic_type match alone = 0.75-0.85
   - name match + compatible types = 0.65-0.75
5. Prioritize semantic_type matches over name matches

## Output JSON Format:
{
  "relationships": [
    {
      "source_table": "catalog.schema.table",
      "source_column": "column_name",
      "target_table": "catalog.schema.table",
      "target_column": "column_name",
      "relationship_type": "foreign_key|semantic|name_based",
      "relationship_subtype": "one_to_many|geographic|exact_match|YOUR_CUSTOM_SUBTYPE",
      "confidence": 0.95,
      "reasoning": "Detailed explanation including why you chose this type and subtype"
    }
  ]
}

Return VALID JSON with a relationships array. If no good matches, return an empty array.`
}

// BuildRelationshipDetectionPrompt renders one source column batch against a
// single target table. One prompt maps to exactly one LLM call.
func BuildRelationshipDetectionPrompt(sourceTable string, sourceColumns []DetectionColumn, targetTable string, targetColumns []DetectionColumn) (string, error) {
	sourceJSON, err := json.MarshalIndent(detectionTable{TableName: sourceTable, Columns: sourceColumns}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal source table: %w", err)
	}
	targetJSON, err := json.MarshalIndent(detectionTable{TableName: targetTable, Columns: targetColumns}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal target table: %w", err)
	}

	var b strings.Builder
	b.WriteString("Analyze the SOURCE table columns and find ALL meaningful relationships with the TARGET table.\n\n")
	b.WriteString("SOURCE TABLE:\n")
	b.Write(sourceJSON)
	b.WriteString("\n\nTARGET TABLE:\n")
	b.Write(targetJSON)
	b.WriteString(`

Find ANY meaningful relationships including:
- Foreign keys (referential integrity)
- Semantic relationships (same meaning/domain)
- Hierarchical relationships (parent-child)
- Temporal relationships (time-based)
- Lookup relationships (reference data)

For EACH relationship:
1. Assign main type: foreign_key, semantic, or name_based
2. Create a descriptive subtype (e.g., "one_to_many", "status_code", "exact_match")
3. Provide confidence >= 0.6
4. Explain reasoning clearly

Return VALID JSON with a relationships array.`)

	return b.String(), nil
}
