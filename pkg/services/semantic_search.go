package services

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/schemascope/schemascope-engine/pkg/apperrors"
	"github.com/schemascope/schemascope-engine/pkg/embedding"
	"github.com/schemascope/schemascope-engine/pkg/graph"
	"github.com/schemascope/schemascope-engine/pkg/models"
	"github.com/schemascope/schemascope-engine/pkg/repositories"
)

// Analytics smart filtering: a table qualifies through its columns when at
// least 3 of them matched the query, or at least 2 did with average
// similarity >= 0.55. Direct table-level hits always qualify.
const (
	analyticsMinColumnMatches     = 3
	analyticsRelaxedColumnMatches = 2
	analyticsRelaxedAvgSimilarity = 0.55
)

// SemanticSearchService answers natural-language queries over the catalog.
type SemanticSearchService interface {
	Search(ctx context.Context, req models.SearchRequest) (*models.SearchResult, error)
}

type semanticSearchService struct {
	embedder embedding.Embedder
	store    graph.Store
	metadata repositories.MetadataRepository
	logger   *zap.Logger
}

var _ SemanticSearchService = (*semanticSearchService)(nil)

// NewSemanticSearchService creates the search engine.
func NewSemanticSearchService(
	embedder embedding.Embedder,
	store graph.Store,
	metadata repositories.MetadataRepository,
	logger *zap.Logger,
) SemanticSearchService {
	return &semanticSearchService{
		embedder: embedder,
		store:    store,
		metadata: metadata,
		logger:   logger.Named("semantic-search"),
	}
}

func (s *semanticSearchService) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	vec, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	tableMatches, err := s.store.SimilarTables(ctx, vec, req.Threshold, req.Mode)
	if err != nil {
		return nil, err
	}
	columnMatches, err := s.store.SimilarColumns(ctx, vec, req.Threshold, req.Mode)
	if err != nil {
		return nil, err
	}

	if len(tableMatches) == 0 && len(columnMatches) == 0 {
		s.logger.Info("Query too vague, nothing above threshold",
			zap.String("mode", string(req.Mode)),
			zap.Float64("threshold", req.Threshold))
		result := models.NewSearchResult()
		result.QueryTooVague = true
		return result, nil
	}

	var result *models.SearchResult
	if req.Mode == models.SearchModeDataMining {
		result, err = s.dataMiningResult(ctx, tableMatches, columnMatches)
	} else {
		result, err = s.analyticsResult(ctx, tableMatches, columnMatches)
	}
	if err != nil {
		return nil, err
	}

	if req.IncludeRelationships {
		if err := s.attachRelationships(ctx, result); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Search completed",
		zap.String("mode", string(req.Mode)),
		zap.Int("tables", len(result.Metadata.Tables)),
		zap.Int("columns", len(result.Metadata.Columns)),
		zap.Int("relationships", len(result.Relationships)))

	return result, nil
}

// analyticsResult applies smart filtering and returns every column of each
// qualifying table, so a consumer sees whole tables it can query.
func (s *semanticSearchService) analyticsResult(ctx context.Context, tableMatches []graph.TableMatch, columnMatches []graph.ColumnMatch) (*models.SearchResult, error) {
	type tableAgg struct {
		directSim  float64 // The table's own similarity, when it matched directly
		direct     bool
		columnMax  float64 // Best matched-column similarity
		matchedSim map[string]float64
	}

	aggs := make(map[string]*tableAgg)
	agg := func(key models.TableKey) *tableAgg {
		a, ok := aggs[key.String()]
		if !ok {
			a = &tableAgg{matchedSim: make(map[string]float64)}
			aggs[key.String()] = a
		}
		return a
	}

	for _, m := range tableMatches {
		a := agg(m.Key)
		a.direct = true
		a.directSim = max(a.directSim, m.Similarity)
	}
	for _, m := range columnMatches {
		a := agg(m.Table)
		if m.Similarity > a.matchedSim[m.Column] {
			a.matchedSim[m.Column] = m.Similarity
		}
		a.columnMax = max(a.columnMax, m.Similarity)
	}

	result := models.NewSearchResult()
	for dotted, a := range aggs {
		if !a.direct && !analyticsQualifies(a.matchedSim) {
			continue
		}
		key, err := models.ParseTableKey(dotted)
		if err != nil {
			return nil, err
		}

		table, columns, err := s.hydrateTable(ctx, key)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				s.logger.Warn("Matched table missing from metadata store", zap.String("table", dotted))
				continue
			}
			return nil, err
		}

		// A direct hit reports the table's own similarity; a table reached
		// only through columns reports its best matched column.
		sim := a.directSim
		if !a.direct {
			sim = a.columnMax
		}
		result.Metadata.Tables = append(result.Metadata.Tables, models.NewTableHit(table, sim))
		for _, col := range columns {
			colSim, matched := a.matchedSim[col.Name]
			result.Metadata.Columns = append(result.Metadata.Columns, models.NewColumnHit(col, colSim, matched))
		}
	}

	sortHits(result)
	return result, nil
}

// analyticsQualifies implements the column-count filter over a table's
// matched columns.
func analyticsQualifies(matchedSim map[string]float64) bool {
	n := len(matchedSim)
	if n >= analyticsMinColumnMatches {
		return true
	}
	if n < analyticsRelaxedColumnMatches {
		return false
	}
	var sum float64
	for _, sim := range matchedSim {
		sum += sim
	}
	return sum/float64(n) >= analyticsRelaxedAvgSimilarity
}

// dataMiningResult returns exactly the matched columns; tables appear only
// when they matched directly. No widening to full column sets.
func (s *semanticSearchService) dataMiningResult(ctx context.Context, tableMatches []graph.TableMatch, columnMatches []graph.ColumnMatch) (*models.SearchResult, error) {
	result := models.NewSearchResult()

	columnsByTable := make(map[string]map[string]*models.ColumnNode)
	loadColumns := func(key models.TableKey) (map[string]*models.ColumnNode, error) {
		if byName, ok := columnsByTable[key.String()]; ok {
			return byName, nil
		}
		cols, err := s.metadata.GetColumns(ctx, key)
		if err != nil {
			return nil, err
		}
		byName := make(map[string]*models.ColumnNode, len(cols))
		for _, c := range cols {
			byName[c.Name] = c
		}
		columnsByTable[key.String()] = byName
		return byName, nil
	}

	for _, m := range tableMatches {
		table, err := s.metadata.GetTable(ctx, m.Key)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				s.logger.Warn("Matched table missing from metadata store", zap.String("table", m.Key.String()))
				continue
			}
			return nil, err
		}
		result.Metadata.Tables = append(result.Metadata.Tables, models.NewTableHit(table, m.Similarity))
	}

	for _, m := range columnMatches {
		byName, err := loadColumns(m.Table)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return nil, err
		}
		col, ok := byName[m.Column]
		if !ok {
			s.logger.Warn("Matched column missing from metadata store",
				zap.String("table", m.Table.String()),
				zap.String("column", m.Column))
			continue
		}
		result.Metadata.Columns = append(result.Metadata.Columns, models.NewColumnHit(col, m.Similarity, true))
	}

	sortHits(result)
	return result, nil
}

// hydrateTable loads the full table and column documents from the metadata
// store, which carries the statistics the graph does not.
func (s *semanticSearchService) hydrateTable(ctx context.Context, key models.TableKey) (*models.TableNode, []*models.ColumnNode, error) {
	table, err := s.metadata.GetTable(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	columns, err := s.metadata.GetColumns(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	return table, columns, nil
}

// attachRelationships adds edges whose both endpoints are among the result
// tables. Edges leading outside the result set would not help a consumer
// join what they can actually see.
func (s *semanticSearchService) attachRelationships(ctx context.Context, result *models.SearchResult) error {
	seen := make(map[string]bool)
	var keys []models.TableKey
	addKey := func(key models.TableKey) {
		if !seen[key.String()] {
			seen[key.String()] = true
			keys = append(keys, key)
		}
	}
	for _, t := range result.Metadata.Tables {
		addKey(t.Key)
	}
	for _, c := range result.Metadata.Columns {
		addKey(c.TableKey)
	}

	if len(keys) < 2 {
		return nil
	}

	edges, err := s.store.RelationshipsBetween(ctx, keys)
	if err != nil {
		return err
	}
	if edges != nil {
		result.Relationships = edges
	}
	return nil
}

func sortHits(result *models.SearchResult) {
	tables := result.Metadata.Tables
	sort.Slice(tables, func(i, j int) bool {
		if tables[i].Similarity != tables[j].Similarity {
			return tables[i].Similarity > tables[j].Similarity
		}
		return tables[i].CatalogSchemaTable < tables[j].CatalogSchemaTable
	})
	columns := result.Metadata.Columns
	sort.Slice(columns, func(i, j int) bool {
		if columns[i].Similarity != columns[j].Similarity {
			return columns[i].Similarity > columns[j].Similarity
		}
		ki := columns[i].CatalogSchemaTable + "." + columns[i].ColumnName
		kj := columns[j].CatalogSchemaTable + "." + columns[j].ColumnName
		return ki < kj
	})
}
