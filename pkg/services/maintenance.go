package services

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/schemascope/schemascope-engine/pkg/graph"
	"github.com/schemascope/schemascope-engine/pkg/models"
	"github.com/schemascope/schemascope-engine/pkg/repositories"
)

// TagMismatch is a table whose search-mode tag differs between the metadata
// store and the graph.
type TagMismatch struct {
	Table        string            `json:"table"`
	MetadataMode models.SearchMode `json:"metadata_mode"`
	GraphMode    models.SearchMode `json:"graph_mode"`
}

// TagVerificationReport is the outcome of a search-mode consistency pass.
type TagVerificationReport struct {
	Checked          int           `json:"checked"`
	Mismatches       []TagMismatch `json:"mismatches"`
	MissingFromGraph []string      `json:"missing_from_graph"`
}

// CleanupReport lists graph tables deleted because the metadata store no
// longer considers them imported.
type CleanupReport struct {
	Deleted []string `json:"deleted"`
}

// MaintenanceService reconciles the graph against the metadata store. The
// two can drift when imports fail halfway or operators edit metadata
// directly.
type MaintenanceService interface {
	// VerifySearchModes diffs search-mode tags between metadata and graph.
	VerifySearchModes(ctx context.Context) (*TagVerificationReport, error)

	// CleanupStaleNodes deletes graph tables that are no longer imported
	// according to the metadata store.
	CleanupStaleNodes(ctx context.Context) (*CleanupReport, error)
}

type maintenanceService struct {
	store    graph.Store
	metadata repositories.MetadataRepository
	logger   *zap.Logger
}

var _ MaintenanceService = (*maintenanceService)(nil)

// NewMaintenanceService creates the maintenance service.
func NewMaintenanceService(store graph.Store, metadata repositories.MetadataRepository, logger *zap.Logger) MaintenanceService {
	return &maintenanceService{
		store:    store,
		metadata: metadata,
		logger:   logger.Named("maintenance"),
	}
}

func (s *maintenanceService) VerifySearchModes(ctx context.Context) (*TagVerificationReport, error) {
	graphModes, err := s.store.TableSearchModes(ctx)
	if err != nil {
		return nil, err
	}

	keys, err := s.metadata.ListImportedTables(ctx)
	if err != nil {
		return nil, err
	}

	report := &TagVerificationReport{
		Mismatches:       []TagMismatch{},
		MissingFromGraph: []string{},
	}
	for _, key := range keys {
		table, err := s.metadata.GetTable(ctx, key)
		if err != nil {
			return nil, err
		}
		report.Checked++

		graphMode, inGraph := graphModes[key.String()]
		if !inGraph {
			report.MissingFromGraph = append(report.MissingFromGraph, key.String())
			continue
		}
		if graphMode != table.SearchMode {
			report.Mismatches = append(report.Mismatches, TagMismatch{
				Table:        key.String(),
				MetadataMode: table.SearchMode,
				GraphMode:    graphMode,
			})
		}
	}

	s.logger.Info("Search mode verification finished",
		zap.Int("checked", report.Checked),
		zap.Int("mismatches", len(report.Mismatches)),
		zap.Int("missing_from_graph", len(report.MissingFromGraph)))

	return report, nil
}

func (s *maintenanceService) CleanupStaleNodes(ctx context.Context) (*CleanupReport, error) {
	imported, err := s.metadata.ListImportedTables(ctx)
	if err != nil {
		return nil, err
	}
	importedSet := make(map[string]bool, len(imported))
	for _, key := range imported {
		importedSet[key.String()] = true
	}

	graphKeys, err := s.store.ListTableKeys(ctx)
	if err != nil {
		return nil, err
	}

	report := &CleanupReport{Deleted: []string{}}
	for _, key := range graphKeys {
		if importedSet[key.String()] {
			continue
		}
		if err := s.store.DeleteTable(ctx, key); err != nil {
			return report, err
		}
		report.Deleted = append(report.Deleted, key.String())
		s.logger.Info("Deleted stale graph table", zap.String("table", key.String()))
	}
	sort.Strings(report.Deleted)

	return report, nil
}
