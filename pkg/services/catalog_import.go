package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/schemascope/schemascope-engine/pkg/embedding"
	"github.com/schemascope/schemascope-engine/pkg/graph"
	"github.com/schemascope/schemascope-engine/pkg/models"
	"github.com/schemascope/schemascope-engine/pkg/repositories"
	"github.com/schemascope/schemascope-engine/pkg/retry"
)

// DetectionTrigger starts relationship detection for a table. Implemented by
// DetectionOrchestrator; an interface here keeps import testable without
// spinning real background runs.
type DetectionTrigger interface {
	Trigger(ctx context.Context, key models.TableKey) (bool, error)
}

// CatalogImportService ingests enrichment documents: it persists metadata,
// generates embeddings, writes graph nodes, and kicks off relationship
// detection.
type CatalogImportService interface {
	// ImportTable runs Phase 1 synchronously (metadata, embeddings, graph
	// nodes) and fires Phase 2 (detection) in the background.
	ImportTable(ctx context.Context, table *models.TableNode, columns []*models.ColumnNode) error

	// DeleteTable removes a table from the graph and the metadata store.
	DeleteTable(ctx context.Context, key models.TableKey) error
}

type catalogImportService struct {
	embedder  embedding.Embedder
	store     graph.Store
	metadata  repositories.MetadataRepository
	detection DetectionTrigger
	retryCfg  *retry.Config
	logger    *zap.Logger
}

var _ CatalogImportService = (*catalogImportService)(nil)

// NewCatalogImportService creates the import service. detection may be nil
// to disable the Phase 2 trigger (used by the seed tool's dry mode).
func NewCatalogImportService(
	embedder embedding.Embedder,
	store graph.Store,
	metadata repositories.MetadataRepository,
	detection DetectionTrigger,
	logger *zap.Logger,
) CatalogImportService {
	return &catalogImportService{
		embedder:  embedder,
		store:     store,
		metadata:  metadata,
		detection: detection,
		retryCfg:  retry.DefaultConfig(),
		logger:    logger.Named("catalog-import"),
	}
}

func (s *catalogImportService) ImportTable(ctx context.Context, table *models.TableNode, columns []*models.ColumnNode) error {
	if table.Key.IsZero() {
		return fmt.Errorf("incomplete table key %q", table.Key)
	}
	if table.ColumnCount == 0 {
		table.ColumnCount = len(columns)
	}
	for _, col := range columns {
		col.TableKey = table.Key
	}

	log := s.logger.With(zap.String("table", table.Key.String()))

	// Metadata first: the document store is the source of truth even when
	// embedding or graph writes fail and get retried later.
	if err := s.metadata.SaveTable(ctx, table); err != nil {
		return err
	}
	if err := s.metadata.SaveColumns(ctx, table.Key, columns); err != nil {
		return err
	}
	if err := s.metadata.SetImportStatus(ctx, table.Key, models.ImportStatusImporting); err != nil {
		return err
	}

	// Embed everything before touching the graph, so a provider outage
	// leaves no half-written node set.
	if err := s.embedAll(ctx, table, columns); err != nil {
		s.markImportFailed(ctx, table.Key, log)
		return err
	}

	if err := s.writeGraph(ctx, table, columns); err != nil {
		s.markImportFailed(ctx, table.Key, log)
		return err
	}

	if err := s.metadata.SetImportStatus(ctx, table.Key, models.ImportStatusImported); err != nil {
		return err
	}

	log.Info("Table imported",
		zap.Int("columns", len(columns)),
		zap.String("search_mode", string(table.SearchMode)))

	if s.detection != nil {
		started, err := s.detection.Trigger(ctx, table.Key)
		if err != nil {
			log.Warn("Failed to trigger relationship detection", zap.Error(err))
		} else if !started {
			log.Info("Relationship detection already in progress, skipping trigger")
		}
	}

	return nil
}

func (s *catalogImportService) embedAll(ctx context.Context, table *models.TableNode, columns []*models.ColumnNode) error {
	summary := BuildTableSummaryText(table, columns)
	vec, err := s.embedder.Embed(ctx, summary)
	if err != nil {
		return fmt.Errorf("embed table %s: %w", table.Key, err)
	}
	table.Embedding = vec

	for _, col := range columns {
		text := BuildColumnEmbeddingText(table.Key, col)
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("embed column %s: %w", col.FullName(), err)
		}
		col.Embedding = vec
	}
	return nil
}

// writeGraph upserts nodes with retries. The gateway itself never retries;
// transient store failures are the import path's problem.
func (s *catalogImportService) writeGraph(ctx context.Context, table *models.TableNode, columns []*models.ColumnNode) error {
	if err := retry.Do(ctx, s.retryCfg, func() error {
		return s.store.UpsertTable(ctx, table)
	}); err != nil {
		return err
	}

	for _, col := range columns {
		col := col
		if err := retry.Do(ctx, s.retryCfg, func() error {
			return s.store.UpsertColumn(ctx, col)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *catalogImportService) markImportFailed(ctx context.Context, key models.TableKey, log *zap.Logger) {
	if err := s.metadata.SetImportStatus(ctx, key, models.ImportStatusFailed); err != nil {
		log.Error("Failed to record import failure", zap.Error(err))
	}
}

func (s *catalogImportService) DeleteTable(ctx context.Context, key models.TableKey) error {
	if err := retry.Do(ctx, s.retryCfg, func() error {
		return s.store.DeleteTable(ctx, key)
	}); err != nil {
		return err
	}
	if err := s.metadata.DeleteTable(ctx, key); err != nil {
		return err
	}
	s.logger.Info("Table deleted", zap.String("table", key.String()))
	return nil
}
