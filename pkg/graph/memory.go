package graph

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/schemascope/schemascope-engine/pkg/apperrors"
	"github.com/schemascope/schemascope-engine/pkg/models"
)

// MemoryStore is an in-memory Store for tests and single-node development.
// It enforces the same contract as the Postgres implementation: fixed
// embedding dimensions, parent-before-column ordering, and cascading
// deletes.
type MemoryStore struct {
	dims int

	mu      sync.RWMutex
	tables  map[string]*models.TableNode
	columns map[string]map[string]*models.ColumnNode // table key -> column name -> node
	edges   map[uuid.UUID]*models.RelationshipEdge
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store with the given embedding
// dimension.
func NewMemoryStore(dims int) *MemoryStore {
	return &MemoryStore{
		dims:    dims,
		tables:  make(map[string]*models.TableNode),
		columns: make(map[string]map[string]*models.ColumnNode),
		edges:   make(map[uuid.UUID]*models.RelationshipEdge),
	}
}

func (s *MemoryStore) checkDims(op string, vec []float32) error {
	if vec != nil && len(vec) != s.dims {
		return storeErr(op, fmt.Errorf("embedding has %d dimensions, store holds %d", len(vec), s.dims))
	}
	return nil
}

// UpsertTable implements Store.
func (s *MemoryStore) UpsertTable(ctx context.Context, table *models.TableNode) error {
	if table.Key.IsZero() {
		return storeErr("upsert_table", fmt.Errorf("incomplete table key %q", table.Key))
	}
	if err := s.checkDims("upsert_table", table.Embedding); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *table
	s.tables[table.Key.String()] = &cp
	if s.columns[table.Key.String()] == nil {
		s.columns[table.Key.String()] = make(map[string]*models.ColumnNode)
	}
	return nil
}

// UpsertColumn implements Store.
func (s *MemoryStore) UpsertColumn(ctx context.Context, column *models.ColumnNode) error {
	if err := s.checkDims("upsert_column", column.Embedding); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := column.TableKey.String()
	if _, ok := s.tables[key]; !ok {
		return storeErr("upsert_column", fmt.Errorf("parent table %s: %w", key, apperrors.ErrNotFound))
	}

	cp := *column
	s.columns[key][column.Name] = &cp
	return nil
}

// UpsertRelationship implements Store.
func (s *MemoryStore) UpsertRelationship(ctx context.Context, edge *models.RelationshipEdge) error {
	if err := edge.Validate(); err != nil {
		return storeErr("upsert_relationship", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range []models.TableKey{edge.SourceTable, edge.TargetTable} {
		if _, ok := s.tables[key.String()]; !ok {
			return storeErr("upsert_relationship", fmt.Errorf("endpoint table %s: %w", key, apperrors.ErrNotFound))
		}
	}

	cp := *edge
	if cp.ID == uuid.Nil {
		cp.ID = models.RelationshipEdgeID(cp.SourceTable, cp.SourceColumn, cp.TargetTable, cp.TargetColumn, cp.Type)
	}
	s.edges[cp.ID] = &cp
	return nil
}

// GetRelationship implements Store.
func (s *MemoryStore) GetRelationship(ctx context.Context, id uuid.UUID) (*models.RelationshipEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edge, ok := s.edges[id]
	if !ok {
		return nil, storeErr("get_relationship", apperrors.ErrNotFound)
	}
	cp := *edge
	return &cp, nil
}

// GetTableWithColumns implements Store.
func (s *MemoryStore) GetTableWithColumns(ctx context.Context, key models.TableKey) (*models.TableNode, []*models.ColumnNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table, ok := s.tables[key.String()]
	if !ok {
		return nil, nil, storeErr("get_table", fmt.Errorf("table %s: %w", key, apperrors.ErrNotFound))
	}

	tcp := *table
	cols := make([]*models.ColumnNode, 0, len(s.columns[key.String()]))
	for _, c := range s.columns[key.String()] {
		cp := *c
		cols = append(cols, &cp)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	return &tcp, cols, nil
}

// ListTableKeys implements Store.
func (s *MemoryStore) ListTableKeys(ctx context.Context) ([]models.TableKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]models.TableKey, 0, len(s.tables))
	for _, t := range s.tables {
		keys = append(keys, t.Key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

// DeleteTable implements Store.
func (s *MemoryStore) DeleteTable(ctx context.Context, key models.TableKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key.String()
	delete(s.tables, k)
	delete(s.columns, k)
	for id, e := range s.edges {
		if e.SourceTable.String() == k || e.TargetTable.String() == k {
			delete(s.edges, id)
		}
	}
	return nil
}

// modeVisible reports whether a table tagged with tag is visible to a
// search in mode. Untagged tables are visible everywhere; an empty mode
// disables filtering.
func modeVisible(tag, mode models.SearchMode) bool {
	return mode == models.SearchModeAny || tag == models.SearchModeAny || tag == mode
}

// SimilarTables implements Store.
func (s *MemoryStore) SimilarTables(ctx context.Context, vec []float32, threshold float64, mode models.SearchMode) ([]TableMatch, error) {
	if err := s.checkDims("similar_tables", vec); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []TableMatch
	for _, t := range s.tables {
		if t.Embedding == nil || !modeVisible(t.SearchMode, mode) {
			continue
		}
		sim := CosineSimilarity(vec, t.Embedding)
		if sim >= threshold {
			matches = append(matches, TableMatch{Key: t.Key, Similarity: sim})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Key.String() < matches[j].Key.String()
	})
	return matches, nil
}

// SimilarColumns implements Store.
func (s *MemoryStore) SimilarColumns(ctx context.Context, vec []float32, threshold float64, mode models.SearchMode) ([]ColumnMatch, error) {
	if err := s.checkDims("similar_columns", vec); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []ColumnMatch
	for tableKey, cols := range s.columns {
		table := s.tables[tableKey]
		if table == nil || !modeVisible(table.SearchMode, mode) {
			continue
		}
		for _, c := range cols {
			if c.Embedding == nil {
				continue
			}
			sim := CosineSimilarity(vec, c.Embedding)
			if sim >= threshold {
				matches = append(matches, ColumnMatch{Table: c.TableKey, Column: c.Name, Similarity: sim})
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		ki := matches[i].Table.String() + "." + matches[i].Column
		kj := matches[j].Table.String() + "." + matches[j].Column
		return ki < kj
	})
	return matches, nil
}

// RelationshipsForTable implements Store.
func (s *MemoryStore) RelationshipsForTable(ctx context.Context, key models.TableKey) ([]*models.RelationshipEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k := key.String()
	var edges []*models.RelationshipEdge
	for _, e := range s.edges {
		if e.SourceTable.String() == k || e.TargetTable.String() == k {
			cp := *e
			edges = append(edges, &cp)
		}
	}
	sortEdges(edges)
	return edges, nil
}

// RelationshipsBetween implements Store.
func (s *MemoryStore) RelationshipsBetween(ctx context.Context, keys []models.TableKey) ([]*models.RelationshipEdge, error) {
	inSet := make(map[string]bool, len(keys))
	for _, k := range keys {
		inSet[k.String()] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var edges []*models.RelationshipEdge
	for _, e := range s.edges {
		if inSet[e.SourceTable.String()] && inSet[e.TargetTable.String()] {
			cp := *e
			edges = append(edges, &cp)
		}
	}
	sortEdges(edges)
	return edges, nil
}

// TableSearchModes implements Store.
func (s *MemoryStore) TableSearchModes(ctx context.Context) (map[string]models.SearchMode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	modes := make(map[string]models.SearchMode, len(s.tables))
	for k, t := range s.tables {
		modes[k] = t.SearchMode
	}
	return modes, nil
}

func sortEdges(edges []*models.RelationshipEdge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].DedupKey() < edges[j].DedupKey() })
}

// CosineSimilarity computes cosine similarity between two equal-length
// vectors, in [-1, 1]. Zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
