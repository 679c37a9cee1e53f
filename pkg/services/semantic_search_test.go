package services

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schemascope/schemascope-engine/pkg/graph"
	"github.com/schemascope/schemascope-engine/pkg/models"
)

const searchDims = 4

type searchFixture struct {
	metadata *fakeMetadataRepository
	store    *graph.MemoryStore
	search   SemanticSearchService
}

func newSearchFixture(t *testing.T) *searchFixture {
	t.Helper()

	f := &searchFixture{
		metadata: newFakeMetadataRepository(),
		store:    graph.NewMemoryStore(searchDims),
	}
	embedder := &fakeEmbedder{
		dims: searchDims,
		embed: func(ctx context.Context, text string) ([]float32, error) {
			return queryVec(), nil
		},
	}
	f.search = NewSemanticSearchService(embedder, f.store, f.metadata, zap.NewNop())
	return f
}

// queryVec is the fixed unit vector every test query embeds to.
func queryVec() []float32 {
	return []float32{1, 0, 0, 0}
}

// simVec builds a unit vector whose cosine similarity to queryVec is s.
func simVec(s float64) []float32 {
	return []float32{float32(s), float32(math.Sqrt(1 - s*s)), 0, 0}
}

type seedCol struct {
	name string
	sim  float64 // Similarity to the query; NaN-free, <0 means no embedding
}

// seed registers a table with the given tag, table-level similarity, and
// columns in both stores. A negative sim stores no embedding for that node.
func (f *searchFixture) seed(t *testing.T, table string, mode models.SearchMode, tableSim float64, cols ...seedCol) {
	t.Helper()
	ctx := context.Background()

	node := &models.TableNode{
		Key:         tkey(table),
		RowCount:    100,
		ColumnCount: len(cols),
		Summary:     "seeded table",
		SearchMode:  mode,
	}
	if tableSim >= 0 {
		node.Embedding = simVec(tableSim)
	}

	var columns []*models.ColumnNode
	for _, c := range cols {
		col := &models.ColumnNode{
			TableKey: node.Key,
			Name:     c.name,
			DataType: "text",
		}
		columns = append(columns, col)
	}
	f.metadata.markImported(node, columns)

	require.NoError(t, f.store.UpsertTable(ctx, node))
	for i, c := range cols {
		graphCol := *columns[i]
		if c.sim >= 0 {
			graphCol.Embedding = simVec(c.sim)
		}
		require.NoError(t, f.store.UpsertColumn(ctx, &graphCol))
	}
}

func analyticsRequest(threshold float64) models.SearchRequest {
	return models.SearchRequest{Query: "orders", Mode: models.SearchModeAnalytics, Threshold: threshold}
}

func TestSearch_QueryTooVague(t *testing.T) {
	f := newSearchFixture(t)
	f.seed(t, "orders", models.SearchModeAny, 0.3, seedCol{"id", 0.2})

	result, err := f.search.Search(context.Background(), analyticsRequest(0.6))
	require.NoError(t, err)
	assert.True(t, result.QueryTooVague)
	assert.NotNil(t, result.Relationships, "lists stay empty arrays, never null")
	assert.Empty(t, result.Relationships)
	assert.NotNil(t, result.Metadata.Tables)
	assert.Empty(t, result.Metadata.Tables)
	assert.NotNil(t, result.Metadata.Columns)
	assert.Empty(t, result.Metadata.Columns)
}

func TestSearch_InvalidRequest(t *testing.T) {
	f := newSearchFixture(t)

	_, err := f.search.Search(context.Background(), models.SearchRequest{
		Query: "orders", Mode: "everything", Threshold: 0.5,
	})
	assert.Error(t, err)
}

func TestSearch_Analytics_DirectTableHitReturnsAllColumns(t *testing.T) {
	f := newSearchFixture(t)
	f.seed(t, "orders", models.SearchModeAny, 0.9,
		seedCol{"order_id", 0.8},
		seedCol{"status", -1}, // No embedding match
	)

	result, err := f.search.Search(context.Background(), analyticsRequest(0.6))
	require.NoError(t, err)
	assert.False(t, result.QueryTooVague)
	require.Len(t, result.Metadata.Tables, 1)
	assert.InDelta(t, 0.9, result.Metadata.Tables[0].Similarity, 1e-6)

	// A qualifying table brings every column, matched or not.
	require.Len(t, result.Metadata.Columns, 2)
	byName := map[string]models.ColumnHit{}
	for _, c := range result.Metadata.Columns {
		byName[c.ColumnName] = c
	}
	assert.True(t, byName["order_id"].MatchedQuery)
	assert.InDelta(t, 0.8, byName["order_id"].Similarity, 1e-6)
	assert.False(t, byName["status"].MatchedQuery)
	assert.Zero(t, byName["status"].Similarity)
}

func TestSearch_Analytics_DirectHitKeepsTableSimilarity(t *testing.T) {
	f := newSearchFixture(t)
	f.seed(t, "orders", models.SearchModeAny, 0.7,
		seedCol{"order_id", 0.9},
		seedCol{"customer_id", 0.85},
		seedCol{"status", 0.8},
	)

	result, err := f.search.Search(context.Background(), analyticsRequest(0.6))
	require.NoError(t, err)
	require.Len(t, result.Metadata.Tables, 1)

	// The table matched directly, so its score is its own similarity, not
	// the best column's.
	assert.InDelta(t, 0.7, result.Metadata.Tables[0].Similarity, 1e-6)
}

func TestSearch_Analytics_ColumnQualifiedTableScoredByBestColumn(t *testing.T) {
	f := newSearchFixture(t)
	f.seed(t, "orders", models.SearchModeAny, -1,
		seedCol{"order_id", 0.9},
		seedCol{"customer_id", 0.85},
		seedCol{"status", 0.8},
	)

	result, err := f.search.Search(context.Background(), analyticsRequest(0.6))
	require.NoError(t, err)
	require.Len(t, result.Metadata.Tables, 1)
	assert.InDelta(t, 0.9, result.Metadata.Tables[0].Similarity, 1e-6)
}

func TestSearch_Analytics_ColumnCountQualification(t *testing.T) {
	tests := []struct {
		name      string
		cols      []seedCol
		qualifies bool
	}{
		{
			name:      "three matched columns qualify",
			cols:      []seedCol{{"a", 0.65}, {"b", 0.62}, {"c", 0.61}, {"d", -1}},
			qualifies: true,
		},
		{
			name:      "two matched with high average qualify",
			cols:      []seedCol{{"a", 0.70}, {"b", 0.62}},
			qualifies: true,
		},
		{
			name:      "two matched with low average do not",
			cols:      []seedCol{{"a", 0.62}, {"b", 0.41}},
			qualifies: false,
		},
		{
			name:      "single matched column does not",
			cols:      []seedCol{{"a", 0.94}},
			qualifies: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSearchFixture(t)
			// No table-level embedding, so only columns can qualify it.
			f.seed(t, "orders", models.SearchModeAny, -1, tt.cols...)

			result, err := f.search.Search(context.Background(), analyticsRequest(0.4))
			require.NoError(t, err)
			if tt.qualifies {
				require.Len(t, result.Metadata.Tables, 1, "table should qualify through columns")
				assert.Len(t, result.Metadata.Columns, len(tt.cols))
			} else {
				assert.Empty(t, result.Metadata.Tables)
				assert.Empty(t, result.Metadata.Columns)
				assert.False(t, result.QueryTooVague, "matches existed, the filter just rejected them")
			}
		})
	}
}

func TestSearch_DataMining_NoWidening(t *testing.T) {
	f := newSearchFixture(t)
	f.seed(t, "readings", models.SearchModeAny, -1,
		seedCol{"sensor_id", 0.8},
		seedCol{"raw_value", -1},
	)

	result, err := f.search.Search(context.Background(), models.SearchRequest{
		Query: "sensor", Mode: models.SearchModeDataMining, Threshold: 0.4,
	})
	require.NoError(t, err)

	// No direct table match means no table entries, and only the matched
	// column comes back.
	assert.Empty(t, result.Metadata.Tables)
	require.Len(t, result.Metadata.Columns, 1)
	assert.Equal(t, "sensor_id", result.Metadata.Columns[0].ColumnName)
	assert.True(t, result.Metadata.Columns[0].MatchedQuery)
}

func TestSearch_DataMining_DirectTableHit(t *testing.T) {
	f := newSearchFixture(t)
	f.seed(t, "readings", models.SearchModeAny, 0.7, seedCol{"sensor_id", 0.8})

	result, err := f.search.Search(context.Background(), models.SearchRequest{
		Query: "sensor", Mode: models.SearchModeDataMining, Threshold: 0.4,
	})
	require.NoError(t, err)
	require.Len(t, result.Metadata.Tables, 1)
	assert.Equal(t, "prod.sales.readings", result.Metadata.Tables[0].CatalogSchemaTable)
	require.Len(t, result.Metadata.Columns, 1)
}

func TestSearch_ModeTagFiltering(t *testing.T) {
	f := newSearchFixture(t)
	f.seed(t, "mining_only", models.SearchModeDataMining, 0.9, seedCol{"a", 0.9})
	f.seed(t, "untagged", models.SearchModeAny, 0.9, seedCol{"b", 0.9})

	result, err := f.search.Search(context.Background(), analyticsRequest(0.6))
	require.NoError(t, err)
	require.Len(t, result.Metadata.Tables, 1, "a datamining-tagged table is invisible to analytics")
	assert.Equal(t, "prod.sales.untagged", result.Metadata.Tables[0].CatalogSchemaTable)
}

func TestSearch_IncludeRelationships(t *testing.T) {
	f := newSearchFixture(t)
	ctx := context.Background()

	f.seed(t, "orders", models.SearchModeAny, 0.9, seedCol{"customer_id", 0.8})
	f.seed(t, "customers", models.SearchModeAny, 0.85, seedCol{"id", 0.7})
	f.seed(t, "warehouses", models.SearchModeAny, 0.1, seedCol{"id", 0.1})

	addEdge := func(src, srcCol, dst, dstCol string) {
		require.NoError(t, f.store.UpsertRelationship(ctx, &models.RelationshipEdge{
			SourceTable:  tkey(src),
			SourceColumn: srcCol,
			TargetTable:  tkey(dst),
			TargetColumn: dstCol,
			Type:         models.RelationshipTypeForeignKey,
			Confidence:   0.9,
		}))
	}
	addEdge("orders", "customer_id", "customers", "id")
	addEdge("orders", "warehouse_id", "warehouses", "id") // Endpoint outside the result set

	req := analyticsRequest(0.6)
	req.IncludeRelationships = true
	result, err := f.search.Search(ctx, req)
	require.NoError(t, err)
	require.Len(t, result.Metadata.Tables, 2)
	require.Len(t, result.Relationships, 1)
	assert.Equal(t, "customer_id", result.Relationships[0].SourceColumn)

	// Without the flag, no relationship lookup happens.
	req.IncludeRelationships = false
	result, err = f.search.Search(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, result.Relationships)
}

func TestSearch_ResultsSortedBySimilarity(t *testing.T) {
	f := newSearchFixture(t)
	f.seed(t, "low", models.SearchModeAny, 0.7, seedCol{"a", 0.65})
	f.seed(t, "high", models.SearchModeAny, 0.9, seedCol{"b", 0.8})

	result, err := f.search.Search(context.Background(), analyticsRequest(0.6))
	require.NoError(t, err)
	require.Len(t, result.Metadata.Tables, 2)
	assert.Equal(t, "prod.sales.high", result.Metadata.Tables[0].CatalogSchemaTable)
	assert.Equal(t, "prod.sales.low", result.Metadata.Tables[1].CatalogSchemaTable)
}

func TestAnalyticsQualifies_RelaxedAverageBoundary(t *testing.T) {
	assert.True(t, analyticsQualifies(map[string]float64{"a": 0.55, "b": 0.55}),
		"two columns at exactly the average cutoff qualify")
	assert.False(t, analyticsQualifies(map[string]float64{"a": 0.54, "b": 0.54}),
		"two columns just under the average cutoff do not")
}
