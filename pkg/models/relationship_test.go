package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelationshipEdgeID_Deterministic(t *testing.T) {
	source := TableKey{Catalog: "prod", Schema: "sales", Table: "orders"}
	target := TableKey{Catalog: "prod", Schema: "sales", Table: "customers"}

	id1 := RelationshipEdgeID(source, "customer_id", target, "id", RelationshipTypeForeignKey)
	id2 := RelationshipEdgeID(source, "customer_id", target, "id", RelationshipTypeForeignKey)
	assert.Equal(t, id1, id2, "same endpoints must produce the same ID")

	// Any endpoint or type change must produce a different identity.
	assert.NotEqual(t, id1, RelationshipEdgeID(source, "customer_id", target, "id", RelationshipTypeSemantic))
	assert.NotEqual(t, id1, RelationshipEdgeID(source, "store_id", target, "id", RelationshipTypeForeignKey))
	assert.NotEqual(t, id1, RelationshipEdgeID(target, "id", source, "customer_id", RelationshipTypeForeignKey),
		"direction is part of the identity")
}

func TestRelationshipEdge_DedupKey(t *testing.T) {
	a := &RelationshipEdge{
		SourceTable:  TableKey{Catalog: "c", Schema: "s", Table: "orders"},
		SourceColumn: "customer_id",
		TargetTable:  TableKey{Catalog: "c", Schema: "s", Table: "customers"},
		TargetColumn: "id",
		Type:         RelationshipTypeForeignKey,
		Subtype:      "direct_fk",
		Confidence:   0.9,
	}
	b := &RelationshipEdge{
		SourceTable:  a.SourceTable,
		SourceColumn: a.SourceColumn,
		TargetTable:  a.TargetTable,
		TargetColumn: a.TargetColumn,
		Type:         a.Type,
		Subtype:      "implied_fk", // Content differences do not change identity
		Confidence:   0.7,
	}
	assert.Equal(t, a.DedupKey(), b.DedupKey())

	b.Type = RelationshipTypeNameBased
	assert.NotEqual(t, a.DedupKey(), b.DedupKey())
}

func TestRelationshipEdge_Validate(t *testing.T) {
	valid := func() *RelationshipEdge {
		return &RelationshipEdge{
			SourceTable:  TableKey{Catalog: "c", Schema: "s", Table: "a"},
			SourceColumn: "x",
			TargetTable:  TableKey{Catalog: "c", Schema: "s", Table: "b"},
			TargetColumn: "y",
			Type:         RelationshipTypeSemantic,
			Confidence:   0.75,
		}
	}

	require.NoError(t, valid().Validate())

	e := valid()
	e.SourceTable = TableKey{}
	assert.Error(t, e.Validate())

	e = valid()
	e.TargetColumn = ""
	assert.Error(t, e.Validate())

	e = valid()
	e.Type = "correlated"
	assert.Error(t, e.Validate())

	e = valid()
	e.Confidence = 1.2
	assert.Error(t, e.Validate())

	e = valid()
	e.Confidence = -0.1
	assert.Error(t, e.Validate())
}

func TestValidRelationshipType(t *testing.T) {
	assert.True(t, ValidRelationshipType("foreign_key"))
	assert.True(t, ValidRelationshipType("semantic"))
	assert.True(t, ValidRelationshipType("name_based"))
	assert.False(t, ValidRelationshipType(""))
	assert.False(t, ValidRelationshipType("ForeignKey"))
}
