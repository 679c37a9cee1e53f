// Package repositories holds Postgres-backed data access for the primary
// catalog metadata store. The graph keeps only what search needs; full
// enrichment documents (statistics, sample values) live here.
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/schemascope/schemascope-engine/pkg/apperrors"
	"github.com/schemascope/schemascope-engine/pkg/database"
	"github.com/schemascope/schemascope-engine/pkg/models"
)

// MetadataRepository persists enrichment documents and the per-table
// lifecycle state the detection orchestrator compare-and-sets.
type MetadataRepository interface {
	// SaveTable upserts a table document. Lifecycle columns are untouched on
	// update; new rows start not_imported / not_started.
	SaveTable(ctx context.Context, table *models.TableNode) error

	// GetTable fetches a table document. Returns apperrors.ErrNotFound when
	// absent.
	GetTable(ctx context.Context, key models.TableKey) (*models.TableNode, error)

	// ListTables returns every table key in the metadata store.
	ListTables(ctx context.Context) ([]models.TableKey, error)

	// ListImportedTables returns keys whose graph import completed. These
	// are the detection candidates.
	ListImportedTables(ctx context.Context) ([]models.TableKey, error)

	// DeleteTable removes a table and its columns.
	DeleteTable(ctx context.Context, key models.TableKey) error

	// SaveColumns replaces the column document set for a table.
	SaveColumns(ctx context.Context, key models.TableKey, columns []*models.ColumnNode) error

	// GetColumns returns all column documents for a table.
	GetColumns(ctx context.Context, key models.TableKey) ([]*models.ColumnNode, error)

	// SetImportStatus records graph import progress.
	SetImportStatus(ctx context.Context, key models.TableKey, status string) error

	// GetDetectionStatus returns the detection status and last error message.
	GetDetectionStatus(ctx context.Context, key models.TableKey) (models.DetectionStatus, string, error)

	// TryStartDetection atomically moves detection to in_progress. Returns
	// false without error when a run is already in flight; that is the
	// at-most-one-per-table guarantee.
	TryStartDetection(ctx context.Context, key models.TableKey) (bool, error)

	// FinishDetection records the terminal state of a run.
	FinishDetection(ctx context.Context, key models.TableKey, status models.DetectionStatus, errMsg string) error

	// ResetAbandonedDetections fails every in_progress row. Called once at
	// startup: a run that was in flight when the previous process died can
	// never finish on its own, and would block triggers forever.
	ResetAbandonedDetections(ctx context.Context) (int64, error)
}

type metadataRepository struct {
	db *database.DB
}

var _ MetadataRepository = (*metadataRepository)(nil)

// NewMetadataRepository creates a Postgres-backed metadata repository.
func NewMetadataRepository(db *database.DB) MetadataRepository {
	return &metadataRepository{db: db}
}

func (r *metadataRepository) SaveTable(ctx context.Context, table *models.TableNode) error {
	if table.Key.IsZero() {
		return fmt.Errorf("incomplete table key %q", table.Key)
	}

	doc, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("marshal table document: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO catalog_tables (table_key, document, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (table_key) DO UPDATE SET
			document = EXCLUDED.document,
			updated_at = now()`,
		table.Key.String(), doc)
	if err != nil {
		return fmt.Errorf("save table %s: %w", table.Key, err)
	}
	return nil
}

func (r *metadataRepository) GetTable(ctx context.Context, key models.TableKey) (*models.TableNode, error) {
	var doc []byte
	err := r.db.QueryRow(ctx,
		`SELECT document FROM catalog_tables WHERE table_key = $1`,
		key.String()).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("table %s: %w", key, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get table %s: %w", key, err)
	}

	table := &models.TableNode{}
	if err := json.Unmarshal(doc, table); err != nil {
		return nil, fmt.Errorf("unmarshal table document %s: %w", key, err)
	}
	table.Key = key
	return table, nil
}

func (r *metadataRepository) ListTables(ctx context.Context) ([]models.TableKey, error) {
	return r.listKeys(ctx, `SELECT table_key FROM catalog_tables ORDER BY table_key`)
}

func (r *metadataRepository) ListImportedTables(ctx context.Context) ([]models.TableKey, error) {
	return r.listKeys(ctx, `
		SELECT table_key FROM catalog_tables
		WHERE import_status = 'imported'
		ORDER BY table_key`)
}

func (r *metadataRepository) listKeys(ctx context.Context, query string) ([]models.TableKey, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var keys []models.TableKey
	for rows.Next() {
		var dotted string
		if err := rows.Scan(&dotted); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		key, err := models.ParseTableKey(dotted)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *metadataRepository) DeleteTable(ctx context.Context, key models.TableKey) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM catalog_tables WHERE table_key = $1`, key.String())
	if err != nil {
		return fmt.Errorf("delete table %s: %w", key, err)
	}
	return nil
}

func (r *metadataRepository) SaveColumns(ctx context.Context, key models.TableKey, columns []*models.ColumnNode) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save columns %s: %w", key, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM catalog_columns WHERE table_key = $1`, key.String()); err != nil {
		return fmt.Errorf("save columns %s: %w", key, err)
	}

	for _, col := range columns {
		doc, err := json.Marshal(col)
		if err != nil {
			return fmt.Errorf("marshal column document %s: %w", col.FullName(), err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO catalog_columns (table_key, column_name, document, updated_at)
			VALUES ($1, $2, $3, now())`,
			key.String(), col.Name, doc); err != nil {
			return fmt.Errorf("save column %s: %w", col.FullName(), err)
		}
	}

	return tx.Commit(ctx)
}

func (r *metadataRepository) GetColumns(ctx context.Context, key models.TableKey) ([]*models.ColumnNode, error) {
	rows, err := r.db.Query(ctx, `
		SELECT document FROM catalog_columns
		WHERE table_key = $1
		ORDER BY column_name`, key.String())
	if err != nil {
		return nil, fmt.Errorf("get columns %s: %w", key, err)
	}
	defer rows.Close()

	var columns []*models.ColumnNode
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("get columns %s: %w", key, err)
		}
		col := &models.ColumnNode{}
		if err := json.Unmarshal(doc, col); err != nil {
			return nil, fmt.Errorf("unmarshal column document: %w", err)
		}
		col.TableKey = key
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (r *metadataRepository) SetImportStatus(ctx context.Context, key models.TableKey, status string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE catalog_tables SET import_status = $2, updated_at = now()
		WHERE table_key = $1`, key.String(), status)
	if err != nil {
		return fmt.Errorf("set import status %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("table %s: %w", key, apperrors.ErrNotFound)
	}
	return nil
}

func (r *metadataRepository) GetDetectionStatus(ctx context.Context, key models.TableKey) (models.DetectionStatus, string, error) {
	var status, errMsg string
	err := r.db.QueryRow(ctx, `
		SELECT detection_status, detection_error FROM catalog_tables
		WHERE table_key = $1`, key.String()).Scan(&status, &errMsg)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", fmt.Errorf("table %s: %w", key, apperrors.ErrNotFound)
	}
	if err != nil {
		return "", "", fmt.Errorf("get detection status %s: %w", key, err)
	}
	return models.DetectionStatus(status), errMsg, nil
}

// TryStartDetection is the compare-and-set behind at-most-one-in-flight.
// The row filter refuses the transition while a run is already in_progress,
// and RowsAffected tells us which side of the race we were on.
func (r *metadataRepository) TryStartDetection(ctx context.Context, key models.TableKey) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE catalog_tables
		SET detection_status = 'in_progress', detection_error = '', updated_at = now()
		WHERE table_key = $1 AND detection_status <> 'in_progress'`,
		key.String())
	if err != nil {
		return false, fmt.Errorf("start detection %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *metadataRepository) FinishDetection(ctx context.Context, key models.TableKey, status models.DetectionStatus, errMsg string) error {
	if status != models.DetectionCompleted && status != models.DetectionFailed {
		return fmt.Errorf("invalid terminal detection status %q", status)
	}
	_, err := r.db.Exec(ctx, `
		UPDATE catalog_tables
		SET detection_status = $2, detection_error = $3, updated_at = now()
		WHERE table_key = $1`, key.String(), string(status), errMsg)
	if err != nil {
		return fmt.Errorf("finish detection %s: %w", key, err)
	}
	return nil
}

func (r *metadataRepository) ResetAbandonedDetections(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE catalog_tables
		SET detection_status = 'failed',
		    detection_error = 'detection interrupted by restart',
		    updated_at = now()
		WHERE detection_status = 'in_progress'`)
	if err != nil {
		return 0, fmt.Errorf("reset abandoned detections: %w", err)
	}
	return tag.RowsAffected(), nil
}
