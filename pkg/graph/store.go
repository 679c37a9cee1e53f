// Package graph is the gateway to the catalog graph: table and column nodes
// with vector embeddings, plus relationship edges between columns.
package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/schemascope/schemascope-engine/pkg/models"
)

// StoreError wraps a graph operation failure with the operation name so
// callers can log which write or read failed without parsing messages.
// The gateway never retries; retry policy belongs to callers.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("graph store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// TableMatch is a table-level similarity search hit.
type TableMatch struct {
	Key        models.TableKey
	Similarity float64
}

// ColumnMatch is a column-level similarity search hit.
type ColumnMatch struct {
	Table      models.TableKey
	Column     string
	Similarity float64
}

// Store is the graph gateway. Implementations must order similarity results
// by descending score with node identity as tie-break, and must treat the
// threshold as inclusive.
type Store interface {
	// UpsertTable creates or fully replaces a table node.
	UpsertTable(ctx context.Context, table *models.TableNode) error

	// UpsertColumn creates or fully replaces a column node attached to its
	// parent table. The parent must already exist; columns never float free.
	UpsertColumn(ctx context.Context, column *models.ColumnNode) error

	// UpsertRelationship creates or replaces an edge by its deterministic ID.
	// Both endpoint tables must exist.
	UpsertRelationship(ctx context.Context, edge *models.RelationshipEdge) error

	// GetRelationship fetches an edge by ID. Returns apperrors.ErrNotFound
	// (wrapped in StoreError) when absent.
	GetRelationship(ctx context.Context, id uuid.UUID) (*models.RelationshipEdge, error)

	// GetTableWithColumns fetches a table node and all of its columns.
	GetTableWithColumns(ctx context.Context, key models.TableKey) (*models.TableNode, []*models.ColumnNode, error)

	// ListTableKeys returns the identity of every table node in the graph.
	ListTableKeys(ctx context.Context) ([]models.TableKey, error)

	// DeleteTable removes a table node, its columns, and every edge touching
	// those columns. Deleting an absent table is a no-op.
	DeleteTable(ctx context.Context, key models.TableKey) error

	// SimilarTables returns table nodes whose embedding similarity to vec is
	// >= threshold. Tables tagged with a different search mode than mode are
	// excluded; untagged tables always qualify. An empty mode disables the
	// tag filter.
	SimilarTables(ctx context.Context, vec []float32, threshold float64, mode models.SearchMode) ([]TableMatch, error)

	// SimilarColumns is SimilarTables over column nodes; the mode filter
	// applies to the owning table's tag.
	SimilarColumns(ctx context.Context, vec []float32, threshold float64, mode models.SearchMode) ([]ColumnMatch, error)

	// RelationshipsForTable returns every edge with either endpoint on the
	// given table.
	RelationshipsForTable(ctx context.Context, key models.TableKey) ([]*models.RelationshipEdge, error)

	// RelationshipsBetween returns edges whose BOTH endpoint tables are in
	// keys. Used to attach the relationship subgraph to search results.
	RelationshipsBetween(ctx context.Context, keys []models.TableKey) ([]*models.RelationshipEdge, error)

	// TableSearchModes returns the search-mode tag of every table node,
	// keyed by dotted table identity. Used by maintenance verification.
	TableSearchModes(ctx context.Context) (map[string]models.SearchMode, error)
}
