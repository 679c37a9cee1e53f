package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Relationship types produced by detection.
const (
	RelationshipTypeForeignKey = "foreign_key" // Explicit or implied FK join path
	RelationshipTypeSemantic   = "semantic"    // Same real-world concept, different naming
	RelationshipTypeNameBased  = "name_based"  // Naming convention match only
)

// ValidRelationshipType reports whether t is one of the recognized types.
func ValidRelationshipType(t string) bool {
	switch t {
	case RelationshipTypeForeignKey, RelationshipTypeSemantic, RelationshipTypeNameBased:
		return true
	}
	return false
}

// Namespace for deterministic relationship edge IDs. Re-detecting the same
// pair yields the same UUID, so upserts overwrite instead of duplicating.
var relationshipIDNamespace = uuid.MustParse("9f2c1b74-41d3-4a88-b6e0-7c5a9d3f1e22")

// RelationshipEdgeID derives the deterministic edge identity from the four
// column endpoints plus the relationship type. Subtype, confidence, and
// reasoning are content, not identity.
func RelationshipEdgeID(source TableKey, sourceColumn string, target TableKey, targetColumn, relType string) uuid.UUID {
	name := strings.Join([]string{
		source.String(), sourceColumn,
		target.String(), targetColumn,
		relType,
	}, "|")
	return uuid.NewSHA1(relationshipIDNamespace, []byte(name))
}

// RelationshipEdge is a detected join path between two columns.
type RelationshipEdge struct {
	ID           uuid.UUID `json:"id"`
	SourceTable  TableKey  `json:"source_table"`
	SourceColumn string    `json:"source_column"`
	TargetTable  TableKey  `json:"target_table"`
	TargetColumn string    `json:"target_column"`
	Type         string    `json:"relationship_type"`              // foreign_key, semantic, name_based
	Subtype      string    `json:"relationship_subtype,omitempty"` // Free-form refinement, e.g. direct_fk, same_concept
	Confidence   float64   `json:"confidence"`                     // 0.0 - 1.0
	Reasoning    string    `json:"reasoning,omitempty"`
	DetectedBy   string    `json:"detected_by,omitempty"` // Model identifier that produced the edge
	DetectedAt   time.Time `json:"detected_at,omitempty"`
}

// DedupKey identifies an edge by content: the four endpoints plus type.
// Edges sharing a key are duplicates regardless of subtype or confidence.
func (e *RelationshipEdge) DedupKey() string {
	return strings.Join([]string{
		e.SourceTable.String(), e.SourceColumn,
		e.TargetTable.String(), e.TargetColumn,
		e.Type,
	}, "|")
}

// Validate checks structural requirements before an edge is persisted.
func (e *RelationshipEdge) Validate() error {
	if e.SourceTable.IsZero() || e.TargetTable.IsZero() {
		return fmt.Errorf("relationship edge missing table endpoint")
	}
	if e.SourceColumn == "" || e.TargetColumn == "" {
		return fmt.Errorf("relationship edge missing column endpoint")
	}
	if !ValidRelationshipType(e.Type) {
		return fmt.Errorf("invalid relationship type %q", e.Type)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("confidence %.3f out of range [0,1]", e.Confidence)
	}
	return nil
}
