package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/schemascope/schemascope-engine/pkg/apperrors"
	"github.com/schemascope/schemascope-engine/pkg/database"
	"github.com/schemascope/schemascope-engine/pkg/models"
)

// PostgresStore implements Store on Postgres with the pgvector extension.
// Cosine similarity is computed in SQL as 1 - (embedding <=> query) and
// served by HNSW indexes.
type PostgresStore struct {
	db     *database.DB
	dims   int
	logger *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a graph store over an existing pool. dims must
// match the vector(N) columns created by the migrations.
func NewPostgresStore(db *database.DB, dims int, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		dims:   dims,
		logger: logger.Named("graph"),
	}
}

func (s *PostgresStore) checkDims(op string, vec []float32) error {
	if vec != nil && len(vec) != s.dims {
		return storeErr(op, fmt.Errorf("embedding has %d dimensions, store holds %d", len(vec), s.dims))
	}
	return nil
}

// UpsertTable implements Store.
func (s *PostgresStore) UpsertTable(ctx context.Context, table *models.TableNode) error {
	if table.Key.IsZero() {
		return storeErr("upsert_table", fmt.Errorf("incomplete table key %q", table.Key))
	}
	if err := s.checkDims("upsert_table", table.Embedding); err != nil {
		return err
	}

	var embedding any
	if table.Embedding != nil {
		embedding = pgvector.NewVector(table.Embedding)
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO graph_tables (
			table_key, catalog_name, schema_name, table_name,
			row_count, column_count, summary, custom_instructions,
			search_mode, embedding, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (table_key) DO UPDATE SET
			row_count = EXCLUDED.row_count,
			column_count = EXCLUDED.column_count,
			summary = EXCLUDED.summary,
			custom_instructions = EXCLUDED.custom_instructions,
			search_mode = EXCLUDED.search_mode,
			embedding = EXCLUDED.embedding,
			updated_at = now()`,
		table.Key.String(), table.Key.Catalog, table.Key.Schema, table.Key.Table,
		table.RowCount, table.ColumnCount, table.Summary, table.CustomInstructions,
		string(table.SearchMode), embedding)
	return storeErr("upsert_table", err)
}

// UpsertColumn implements Store. The FK to graph_tables enforces the
// parent-before-column invariant.
func (s *PostgresStore) UpsertColumn(ctx context.Context, column *models.ColumnNode) error {
	if err := s.checkDims("upsert_column", column.Embedding); err != nil {
		return err
	}

	aliases, err := json.Marshal(column.Aliases)
	if err != nil {
		return storeErr("upsert_column", err)
	}

	var embedding any
	if column.Embedding != nil {
		embedding = pgvector.NewVector(column.Embedding)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO graph_columns (
			table_key, column_name, data_type, column_type, semantic_type,
			description, aliases, cardinality, embedding
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (table_key, column_name) DO UPDATE SET
			data_type = EXCLUDED.data_type,
			column_type = EXCLUDED.column_type,
			semantic_type = EXCLUDED.semantic_type,
			description = EXCLUDED.description,
			aliases = EXCLUDED.aliases,
			cardinality = EXCLUDED.cardinality,
			embedding = EXCLUDED.embedding`,
		column.TableKey.String(), column.Name, column.DataType, column.ColumnType,
		column.SemanticType, column.Description, aliases, column.Cardinality, embedding)
	if err != nil {
		return storeErr("upsert_column", fmt.Errorf("column %s: %w", column.FullName(), err))
	}
	return nil
}

// UpsertRelationship implements Store.
func (s *PostgresStore) UpsertRelationship(ctx context.Context, edge *models.RelationshipEdge) error {
	if err := edge.Validate(); err != nil {
		return storeErr("upsert_relationship", err)
	}

	id := edge.ID
	if id == uuid.Nil {
		id = models.RelationshipEdgeID(edge.SourceTable, edge.SourceColumn, edge.TargetTable, edge.TargetColumn, edge.Type)
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO graph_relationships (
			id, source_table, source_column, target_table, target_column,
			relationship_type, relationship_subtype, confidence, reasoning,
			detected_by, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			relationship_subtype = EXCLUDED.relationship_subtype,
			confidence = EXCLUDED.confidence,
			reasoning = EXCLUDED.reasoning,
			detected_by = EXCLUDED.detected_by,
			detected_at = EXCLUDED.detected_at`,
		id, edge.SourceTable.String(), edge.SourceColumn,
		edge.TargetTable.String(), edge.TargetColumn,
		edge.Type, edge.Subtype, edge.Confidence, edge.Reasoning,
		edge.DetectedBy, edge.DetectedAt)
	return storeErr("upsert_relationship", err)
}

// GetRelationship implements Store.
func (s *PostgresStore) GetRelationship(ctx context.Context, id uuid.UUID) (*models.RelationshipEdge, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, source_table, source_column, target_table, target_column,
			relationship_type, relationship_subtype, confidence, reasoning,
			detected_by, detected_at
		FROM graph_relationships
		WHERE id = $1`, id)

	edge, err := scanEdge(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storeErr("get_relationship", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get_relationship", err)
	}
	return edge, nil
}

// GetTableWithColumns implements Store.
func (s *PostgresStore) GetTableWithColumns(ctx context.Context, key models.TableKey) (*models.TableNode, []*models.ColumnNode, error) {
	table := &models.TableNode{Key: key}
	var mode string
	err := s.db.QueryRow(ctx, `
		SELECT row_count, column_count, summary, custom_instructions, search_mode, updated_at
		FROM graph_tables
		WHERE table_key = $1`, key.String()).
		Scan(&table.RowCount, &table.ColumnCount, &table.Summary,
			&table.CustomInstructions, &mode, &table.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, storeErr("get_table", fmt.Errorf("table %s: %w", key, apperrors.ErrNotFound))
	}
	if err != nil {
		return nil, nil, storeErr("get_table", err)
	}
	table.SearchMode = models.SearchMode(mode)

	rows, err := s.db.Query(ctx, `
		SELECT column_name, data_type, column_type, semantic_type,
			description, aliases, cardinality
		FROM graph_columns
		WHERE table_key = $1
		ORDER BY column_name`, key.String())
	if err != nil {
		return nil, nil, storeErr("get_table", err)
	}
	defer rows.Close()

	var columns []*models.ColumnNode
	for rows.Next() {
		col := &models.ColumnNode{TableKey: key}
		var aliases []byte
		if err := rows.Scan(&col.Name, &col.DataType, &col.ColumnType,
			&col.SemanticType, &col.Description, &aliases, &col.Cardinality); err != nil {
			return nil, nil, storeErr("get_table", err)
		}
		if len(aliases) > 0 {
			if err := json.Unmarshal(aliases, &col.Aliases); err != nil {
				return nil, nil, storeErr("get_table", err)
			}
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, storeErr("get_table", err)
	}

	return table, columns, nil
}

// ListTableKeys implements Store.
func (s *PostgresStore) ListTableKeys(ctx context.Context) ([]models.TableKey, error) {
	rows, err := s.db.Query(ctx, `
		SELECT catalog_name, schema_name, table_name
		FROM graph_tables
		ORDER BY table_key`)
	if err != nil {
		return nil, storeErr("list_tables", err)
	}
	defer rows.Close()

	var keys []models.TableKey
	for rows.Next() {
		var k models.TableKey
		if err := rows.Scan(&k.Catalog, &k.Schema, &k.Table); err != nil {
			return nil, storeErr("list_tables", err)
		}
		keys = append(keys, k)
	}
	return keys, storeErr("list_tables", rows.Err())
}

// DeleteTable implements Store. Column and edge cleanup rides the FK
// cascades.
func (s *PostgresStore) DeleteTable(ctx context.Context, key models.TableKey) error {
	_, err := s.db.Exec(ctx, `DELETE FROM graph_tables WHERE table_key = $1`, key.String())
	return storeErr("delete_table", err)
}

// SimilarTables implements Store.
func (s *PostgresStore) SimilarTables(ctx context.Context, vec []float32, threshold float64, mode models.SearchMode) ([]TableMatch, error) {
	if err := s.checkDims("similar_tables", vec); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT catalog_name, schema_name, table_name,
			1 - (embedding <=> $1) AS similarity
		FROM graph_tables
		WHERE embedding IS NOT NULL
			AND 1 - (embedding <=> $1) >= $2
			AND ($3 = '' OR search_mode = '' OR search_mode = $3)
		ORDER BY similarity DESC, table_key`,
		pgvector.NewVector(vec), threshold, string(mode))
	if err != nil {
		return nil, storeErr("similar_tables", err)
	}
	defer rows.Close()

	var matches []TableMatch
	for rows.Next() {
		var m TableMatch
		if err := rows.Scan(&m.Key.Catalog, &m.Key.Schema, &m.Key.Table, &m.Similarity); err != nil {
			return nil, storeErr("similar_tables", err)
		}
		matches = append(matches, m)
	}
	return matches, storeErr("similar_tables", rows.Err())
}

// SimilarColumns implements Store. The mode filter applies to the owning
// table's tag.
func (s *PostgresStore) SimilarColumns(ctx context.Context, vec []float32, threshold float64, mode models.SearchMode) ([]ColumnMatch, error) {
	if err := s.checkDims("similar_columns", vec); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT t.catalog_name, t.schema_name, t.table_name, c.column_name,
			1 - (c.embedding <=> $1) AS similarity
		FROM graph_columns c
		JOIN graph_tables t ON t.table_key = c.table_key
		WHERE c.embedding IS NOT NULL
			AND 1 - (c.embedding <=> $1) >= $2
			AND ($3 = '' OR t.search_mode = '' OR t.search_mode = $3)
		ORDER BY similarity DESC, c.table_key, c.column_name`,
		pgvector.NewVector(vec), threshold, string(mode))
	if err != nil {
		return nil, storeErr("similar_columns", err)
	}
	defer rows.Close()

	var matches []ColumnMatch
	for rows.Next() {
		var m ColumnMatch
		if err := rows.Scan(&m.Table.Catalog, &m.Table.Schema, &m.Table.Table, &m.Column, &m.Similarity); err != nil {
			return nil, storeErr("similar_columns", err)
		}
		matches = append(matches, m)
	}
	return matches, storeErr("similar_columns", rows.Err())
}

// RelationshipsForTable implements Store.
func (s *PostgresStore) RelationshipsForTable(ctx context.Context, key models.TableKey) ([]*models.RelationshipEdge, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, source_table, source_column, target_table, target_column,
			relationship_type, relationship_subtype, confidence, reasoning,
			detected_by, detected_at
		FROM graph_relationships
		WHERE source_table = $1 OR target_table = $1
		ORDER BY source_table, source_column, target_table, target_column`,
		key.String())
	if err != nil {
		return nil, storeErr("relationships_for_table", err)
	}
	defer rows.Close()

	return collectEdges("relationships_for_table", rows)
}

// RelationshipsBetween implements Store.
func (s *PostgresStore) RelationshipsBetween(ctx context.Context, keys []models.TableKey) ([]*models.RelationshipEdge, error) {
	if len(keys) < 2 {
		return nil, nil
	}

	dotted := make([]string, len(keys))
	for i, k := range keys {
		dotted[i] = k.String()
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, source_table, source_column, target_table, target_column,
			relationship_type, relationship_subtype, confidence, reasoning,
			detected_by, detected_at
		FROM graph_relationships
		WHERE source_table = ANY($1) AND target_table = ANY($1)
		ORDER BY source_table, source_column, target_table, target_column`,
		dotted)
	if err != nil {
		return nil, storeErr("relationships_between", err)
	}
	defer rows.Close()

	return collectEdges("relationships_between", rows)
}

// TableSearchModes implements Store.
func (s *PostgresStore) TableSearchModes(ctx context.Context) (map[string]models.SearchMode, error) {
	rows, err := s.db.Query(ctx, `SELECT table_key, search_mode FROM graph_tables`)
	if err != nil {
		return nil, storeErr("table_search_modes", err)
	}
	defer rows.Close()

	modes := make(map[string]models.SearchMode)
	for rows.Next() {
		var key, mode string
		if err := rows.Scan(&key, &mode); err != nil {
			return nil, storeErr("table_search_modes", err)
		}
		modes[key] = models.SearchMode(mode)
	}
	return modes, storeErr("table_search_modes", rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEdge(row rowScanner) (*models.RelationshipEdge, error) {
	edge := &models.RelationshipEdge{}
	var sourceTable, targetTable string
	if err := row.Scan(&edge.ID, &sourceTable, &edge.SourceColumn,
		&targetTable, &edge.TargetColumn, &edge.Type, &edge.Subtype,
		&edge.Confidence, &edge.Reasoning, &edge.DetectedBy, &edge.DetectedAt); err != nil {
		return nil, err
	}

	var err error
	if edge.SourceTable, err = models.ParseTableKey(sourceTable); err != nil {
		return nil, err
	}
	if edge.TargetTable, err = models.ParseTableKey(targetTable); err != nil {
		return nil, err
	}
	return edge, nil
}

func collectEdges(op string, rows pgx.Rows) ([]*models.RelationshipEdge, error) {
	var edges []*models.RelationshipEdge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		edges = append(edges, edge)
	}
	return edges, storeErr(op, rows.Err())
}
