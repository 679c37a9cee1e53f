package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schemascope/schemascope-engine/pkg/graph"
	"github.com/schemascope/schemascope-engine/pkg/models"
)

func importFixture(embedder *fakeEmbedder, trigger DetectionTrigger) (CatalogImportService, *fakeMetadataRepository, *graph.MemoryStore) {
	metadata := newFakeMetadataRepository()
	store := graph.NewMemoryStore(4)
	svc := NewCatalogImportService(embedder, store, metadata, trigger, zap.NewNop())
	return svc, metadata, store
}

func orderTable() (*models.TableNode, []*models.ColumnNode) {
	return &models.TableNode{
			Key:        tkey("orders"),
			RowCount:   1000,
			Summary:    "customer orders",
			SearchMode: models.SearchModeAnalytics,
		}, []*models.ColumnNode{
			{Name: "order_id", DataType: "bigint", ColumnType: models.ColumnTypeIdentifier},
			{Name: "customer_id", DataType: "bigint", ColumnType: models.ColumnTypeIdentifier},
		}
}

func TestImportTable_Success(t *testing.T) {
	ctx := context.Background()
	trigger := &fakeTrigger{started: true}
	svc, metadata, store := importFixture(&fakeEmbedder{dims: 4}, trigger)

	table, columns := orderTable()
	require.NoError(t, svc.ImportTable(ctx, table, columns))

	// Metadata has the document and the lifecycle state.
	saved, err := metadata.GetTable(ctx, table.Key)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.ColumnCount)
	assert.Equal(t, models.ImportStatusImported, metadata.importStatus[table.Key.String()])

	// Graph has the nodes with store-dimension embeddings.
	node, cols, err := store.GetTableWithColumns(ctx, table.Key)
	require.NoError(t, err)
	assert.Len(t, node.Embedding, 4)
	require.Len(t, cols, 2)
	for _, c := range cols {
		assert.Len(t, c.Embedding, 4)
	}

	// Detection fired once for this table.
	require.Len(t, trigger.calls, 1)
	assert.Equal(t, table.Key, trigger.calls[0])
}

func TestImportTable_EmbedFailureLeavesGraphUntouched(t *testing.T) {
	ctx := context.Background()
	trigger := &fakeTrigger{}
	embedder := &fakeEmbedder{
		dims: 4,
		embed: func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("provider down")
		},
	}
	svc, metadata, store := importFixture(embedder, trigger)

	table, columns := orderTable()
	err := svc.ImportTable(ctx, table, columns)
	require.Error(t, err)

	// Metadata keeps the document but records the failure; the graph has
	// nothing to clean up.
	assert.Equal(t, models.ImportStatusFailed, metadata.importStatus[table.Key.String()])
	_, _, err = store.GetTableWithColumns(ctx, table.Key)
	assert.Error(t, err)
	assert.Empty(t, trigger.calls, "detection must not run for a failed import")
}

func TestImportTable_PartialEmbedFailure(t *testing.T) {
	ctx := context.Background()
	calls := 0
	embedder := &fakeEmbedder{
		dims: 4,
		embed: func(ctx context.Context, text string) ([]float32, error) {
			calls++
			if calls > 2 {
				return nil, errors.New("provider down")
			}
			return make([]float32, 4), nil
		},
	}
	svc, _, store := importFixture(embedder, &fakeTrigger{})

	table, columns := orderTable()
	require.Error(t, svc.ImportTable(ctx, table, columns))

	// All embeddings happen before any graph write, so a mid-run provider
	// failure leaves no half-written node set.
	_, _, err := store.GetTableWithColumns(ctx, table.Key)
	assert.Error(t, err)
}

func TestImportTable_GraphWriteFailure(t *testing.T) {
	ctx := context.Background()
	// Embedder emits more dimensions than the store holds, so every graph
	// upsert is rejected.
	embedder := &fakeEmbedder{dims: 4, embed: func(ctx context.Context, text string) ([]float32, error) {
		return make([]float32, 8), nil
	}}
	svc, metadata, _ := importFixture(embedder, &fakeTrigger{})

	table, columns := orderTable()
	require.Error(t, svc.ImportTable(ctx, table, columns))
	assert.Equal(t, models.ImportStatusFailed, metadata.importStatus[table.Key.String()])
}

func TestImportTable_TriggerFailureDoesNotFailImport(t *testing.T) {
	ctx := context.Background()
	trigger := &fakeTrigger{err: errors.New("orchestrator busy")}
	svc, metadata, _ := importFixture(&fakeEmbedder{dims: 4}, trigger)

	table, columns := orderTable()
	require.NoError(t, svc.ImportTable(ctx, table, columns))
	assert.Equal(t, models.ImportStatusImported, metadata.importStatus[table.Key.String()])
}

func TestImportTable_NilDetectionTrigger(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := importFixture(&fakeEmbedder{dims: 4}, nil)

	table, columns := orderTable()
	assert.NoError(t, svc.ImportTable(ctx, table, columns))
}

func TestImportTable_RejectsIncompleteKey(t *testing.T) {
	svc, _, _ := importFixture(&fakeEmbedder{dims: 4}, nil)

	err := svc.ImportTable(context.Background(), &models.TableNode{
		Key: models.TableKey{Catalog: "prod", Schema: "sales"},
	}, nil)
	assert.Error(t, err)
}

func TestDeleteTable_RemovesBothStores(t *testing.T) {
	ctx := context.Background()
	svc, metadata, store := importFixture(&fakeEmbedder{dims: 4}, &fakeTrigger{started: true})

	table, columns := orderTable()
	require.NoError(t, svc.ImportTable(ctx, table, columns))

	require.NoError(t, svc.DeleteTable(ctx, table.Key))

	_, err := metadata.GetTable(ctx, table.Key)
	assert.Error(t, err)
	_, _, err = store.GetTableWithColumns(ctx, table.Key)
	assert.Error(t, err)
}
