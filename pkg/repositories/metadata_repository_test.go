package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemascope/schemascope-engine/pkg/apperrors"
	"github.com/schemascope/schemascope-engine/pkg/models"
	"github.com/schemascope/schemascope-engine/pkg/testhelpers"
)

func key(table string) models.TableKey {
	return models.TableKey{Catalog: "prod", Schema: "sales", Table: table}
}

func newRepo(t *testing.T) MetadataRepository {
	t.Helper()
	tdb := testhelpers.GetTestDB(t)
	tdb.TruncateAll(t)
	return NewMetadataRepository(tdb.DB)
}

func saveTable(t *testing.T, repo MetadataRepository, table string) {
	t.Helper()
	require.NoError(t, repo.SaveTable(context.Background(), &models.TableNode{
		Key:      key(table),
		RowCount: 100,
	}))
}

func TestMetadataRepository_TableRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.SaveTable(ctx, &models.TableNode{
		Key:                key("orders"),
		RowCount:           120000,
		ColumnCount:        3,
		Summary:            "Customer purchase orders",
		CustomInstructions: "Prefer completed orders",
		SearchMode:         models.SearchModeAnalytics,
	}))

	got, err := repo.GetTable(ctx, key("orders"))
	require.NoError(t, err)
	assert.Equal(t, key("orders"), got.Key)
	assert.Equal(t, int64(120000), got.RowCount)
	assert.Equal(t, 3, got.ColumnCount)
	assert.Equal(t, "Customer purchase orders", got.Summary)
	assert.Equal(t, "Prefer completed orders", got.CustomInstructions)
	assert.Equal(t, models.SearchModeAnalytics, got.SearchMode)

	// Re-saving replaces the document but leaves lifecycle state alone.
	require.NoError(t, repo.SetImportStatus(ctx, key("orders"), models.ImportStatusImported))
	require.NoError(t, repo.SaveTable(ctx, &models.TableNode{
		Key:      key("orders"),
		RowCount: 125000,
	}))

	got, err = repo.GetTable(ctx, key("orders"))
	require.NoError(t, err)
	assert.Equal(t, int64(125000), got.RowCount)

	imported, err := repo.ListImportedTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.TableKey{key("orders")}, imported,
		"import status must survive a document update")
}

func TestMetadataRepository_GetTable_NotFound(t *testing.T) {
	repo := newRepo(t)

	_, err := repo.GetTable(context.Background(), key("missing"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMetadataRepository_ListImportedTables(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	saveTable(t, repo, "orders")
	saveTable(t, repo, "customers")
	saveTable(t, repo, "drafts")
	require.NoError(t, repo.SetImportStatus(ctx, key("orders"), models.ImportStatusImported))
	require.NoError(t, repo.SetImportStatus(ctx, key("customers"), models.ImportStatusImported))
	require.NoError(t, repo.SetImportStatus(ctx, key("drafts"), models.ImportStatusFailed))

	all, err := repo.ListTables(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	imported, err := repo.ListImportedTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.TableKey{key("customers"), key("orders")}, imported)
}

func TestMetadataRepository_SaveColumnsReplaces(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	saveTable(t, repo, "customers")

	nullPct := 12.5
	require.NoError(t, repo.SaveColumns(ctx, key("customers"), []*models.ColumnNode{
		{Name: "id", DataType: "bigint", ColumnType: models.ColumnTypeIdentifier, Cardinality: 48000},
		{
			Name:           "email",
			DataType:       "text",
			SemanticType:   "email",
			Aliases:        []string{"contact"},
			NullPercentage: &nullPct,
			SampleValues:   []string{"a@example.com"},
		},
	}))

	columns, err := repo.GetColumns(ctx, key("customers"))
	require.NoError(t, err)
	require.Len(t, columns, 2)
	assert.Equal(t, "email", columns[0].Name)
	assert.Equal(t, key("customers"), columns[0].TableKey)
	assert.Equal(t, []string{"contact"}, columns[0].Aliases)
	require.NotNil(t, columns[0].NullPercentage)
	assert.Equal(t, 12.5, *columns[0].NullPercentage)
	assert.Equal(t, []string{"a@example.com"}, columns[0].SampleValues)
	assert.Equal(t, "id", columns[1].Name)
	assert.Equal(t, int64(48000), columns[1].Cardinality)

	// A second save replaces the whole set, not merges.
	require.NoError(t, repo.SaveColumns(ctx, key("customers"), []*models.ColumnNode{
		{Name: "id", DataType: "bigint"},
	}))

	columns, err = repo.GetColumns(ctx, key("customers"))
	require.NoError(t, err)
	require.Len(t, columns, 1)
	assert.Equal(t, "id", columns[0].Name)
}

func TestMetadataRepository_SetImportStatus_NotFound(t *testing.T) {
	repo := newRepo(t)

	err := repo.SetImportStatus(context.Background(), key("missing"), models.ImportStatusImporting)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMetadataRepository_DetectionLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	saveTable(t, repo, "orders")

	status, errMsg, err := repo.GetDetectionStatus(ctx, key("orders"))
	require.NoError(t, err)
	assert.Equal(t, models.DetectionNotStarted, status)
	assert.Empty(t, errMsg)

	started, err := repo.TryStartDetection(ctx, key("orders"))
	require.NoError(t, err)
	assert.True(t, started)

	// A second start while in flight loses the compare-and-set.
	started, err = repo.TryStartDetection(ctx, key("orders"))
	require.NoError(t, err)
	assert.False(t, started)

	require.NoError(t, repo.FinishDetection(ctx, key("orders"), models.DetectionFailed, "llm unreachable"))

	status, errMsg, err = repo.GetDetectionStatus(ctx, key("orders"))
	require.NoError(t, err)
	assert.Equal(t, models.DetectionFailed, status)
	assert.Equal(t, "llm unreachable", errMsg)

	// Terminal states allow a fresh run; success clears the error.
	started, err = repo.TryStartDetection(ctx, key("orders"))
	require.NoError(t, err)
	assert.True(t, started)

	require.NoError(t, repo.FinishDetection(ctx, key("orders"), models.DetectionCompleted, ""))
	status, errMsg, err = repo.GetDetectionStatus(ctx, key("orders"))
	require.NoError(t, err)
	assert.Equal(t, models.DetectionCompleted, status)
	assert.Empty(t, errMsg)
}

func TestMetadataRepository_ResetAbandonedDetections(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	saveTable(t, repo, "orders")
	saveTable(t, repo, "customers")

	started, err := repo.TryStartDetection(ctx, key("orders"))
	require.NoError(t, err)
	require.True(t, started)
	require.NoError(t, repo.FinishDetection(ctx, key("customers"), models.DetectionCompleted, ""))

	// Only the in-flight row is swept; terminal rows are untouched.
	n, err := repo.ResetAbandonedDetections(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	status, errMsg, err := repo.GetDetectionStatus(ctx, key("orders"))
	require.NoError(t, err)
	assert.Equal(t, models.DetectionFailed, status)
	assert.Contains(t, errMsg, "interrupted")

	status, _, err = repo.GetDetectionStatus(ctx, key("customers"))
	require.NoError(t, err)
	assert.Equal(t, models.DetectionCompleted, status)

	// The swept table accepts a fresh run.
	started, err = repo.TryStartDetection(ctx, key("orders"))
	require.NoError(t, err)
	assert.True(t, started)
}

func TestMetadataRepository_FinishDetection_RejectsNonTerminal(t *testing.T) {
	repo := newRepo(t)
	saveTable(t, repo, "orders")

	err := repo.FinishDetection(context.Background(), key("orders"), models.DetectionInProgress, "")
	assert.Error(t, err)
}

func TestMetadataRepository_GetDetectionStatus_NotFound(t *testing.T) {
	repo := newRepo(t)

	_, _, err := repo.GetDetectionStatus(context.Background(), key("missing"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMetadataRepository_DeleteTableCascades(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	saveTable(t, repo, "orders")
	require.NoError(t, repo.SaveColumns(ctx, key("orders"), []*models.ColumnNode{
		{Name: "id", DataType: "bigint"},
	}))

	require.NoError(t, repo.DeleteTable(ctx, key("orders")))

	_, err := repo.GetTable(ctx, key("orders"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	columns, err := repo.GetColumns(ctx, key("orders"))
	require.NoError(t, err)
	assert.Empty(t, columns)

	// Deleting again is a no-op.
	assert.NoError(t, repo.DeleteTable(ctx, key("orders")))
}
