package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/schemascope/schemascope-engine/pkg/apperrors"
	"github.com/schemascope/schemascope-engine/pkg/graph"
	"github.com/schemascope/schemascope-engine/pkg/llm"
	"github.com/schemascope/schemascope-engine/pkg/models"
	"github.com/schemascope/schemascope-engine/pkg/prompts"
	"github.com/schemascope/schemascope-engine/pkg/repositories"
)

const (
	// DefaultSourceBatchSize is how many source columns go into one LLM
	// call. One call covers one (target table, source batch) pair.
	DefaultSourceBatchSize = 20

	// DefaultConfidenceThreshold drops candidates the model itself is
	// unsure about.
	DefaultConfidenceThreshold = 0.6

	detectionTemperature = 0.1
)

// DetectionResult summarizes one detection run for logs and status payloads.
type DetectionResult struct {
	Table           models.TableKey
	TargetsCompared int
	PairsAttempted  int
	PairsFailed     int
	CandidatesFound int
	EdgesPersisted  int
}

// RelationshipDetector finds join paths between a table and the rest of the
// imported catalog using LLM analysis of column metadata.
type RelationshipDetector interface {
	DetectForTable(ctx context.Context, key models.TableKey) (*DetectionResult, error)
}

type relationshipDetector struct {
	store     graph.Store
	metadata  repositories.MetadataRepository
	chat      llm.LLMClient
	pool      *llm.WorkerPool
	batchSize int
	threshold float64
	logger    *zap.Logger
}

var _ RelationshipDetector = (*relationshipDetector)(nil)

// NewRelationshipDetector creates a detector. batchSize and threshold fall
// back to defaults when zero.
func NewRelationshipDetector(
	store graph.Store,
	metadata repositories.MetadataRepository,
	chat llm.LLMClient,
	pool *llm.WorkerPool,
	batchSize int,
	threshold float64,
	logger *zap.Logger,
) RelationshipDetector {
	if batchSize <= 0 {
		batchSize = DefaultSourceBatchSize
	}
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &relationshipDetector{
		store:     store,
		metadata:  metadata,
		chat:      chat,
		pool:      pool,
		batchSize: batchSize,
		threshold: threshold,
		logger:    logger.Named("relationship-detector"),
	}
}

// detectionResponse is the JSON contract the system prompt demands.
type detectionResponse struct {
	Relationships []rawRelationship `json:"relationships"`
}

type rawRelationship struct {
	SourceTable         string  `json:"source_table"`
	SourceColumn        string  `json:"source_column"`
	TargetTable         string  `json:"target_table"`
	TargetColumn        string  `json:"target_column"`
	RelationshipType    string  `json:"relationship_type"`
	RelationshipSubtype string  `json:"relationship_subtype"`
	Confidence          float64 `json:"confidence"`
	Reasoning           string  `json:"reasoning"`
}

// comparison is one (source batch, target table) unit of work.
type comparison struct {
	target     models.TableKey
	sourceCols []*models.ColumnNode
	targetCols []*models.ColumnNode
}

func (d *relationshipDetector) DetectForTable(ctx context.Context, key models.TableKey) (*DetectionResult, error) {
	log := d.logger.With(zap.String("table", key.String()))
	result := &DetectionResult{Table: key}

	sourceCols, err := d.metadata.GetColumns(ctx, key)
	if err != nil {
		return result, err
	}
	sourceCols = filterJoinRelevant(sourceCols)
	if len(sourceCols) == 0 {
		log.Info("No join-relevant columns, nothing to detect")
		return result, nil
	}

	targets, err := d.metadata.ListImportedTables(ctx)
	if err != nil {
		return result, err
	}

	var comparisons []comparison
	for _, target := range targets {
		if target == key {
			continue
		}
		targetCols, err := d.metadata.GetColumns(ctx, target)
		if err != nil {
			return result, err
		}
		targetCols = filterJoinRelevant(targetCols)
		if len(targetCols) == 0 {
			continue
		}
		result.TargetsCompared++
		for start := 0; start < len(sourceCols); start += d.batchSize {
			end := min(start+d.batchSize, len(sourceCols))
			comparisons = append(comparisons, comparison{
				target:     target,
				sourceCols: sourceCols[start:end],
				targetCols: targetCols,
			})
		}
	}

	if len(comparisons) == 0 {
		log.Info("No comparison targets, nothing to detect")
		return result, nil
	}

	log.Info("Starting relationship detection",
		zap.Int("source_columns", len(sourceCols)),
		zap.Int("targets", result.TargetsCompared),
		zap.Int("llm_calls", len(comparisons)))

	items := make([]llm.WorkItem[[]*models.RelationshipEdge], len(comparisons))
	for i, cmp := range comparisons {
		cmp := cmp
		items[i] = llm.WorkItem[[]*models.RelationshipEdge]{
			Key: fmt.Sprintf("%s->%s", key, cmp.target),
			Execute: func(ctx context.Context) ([]*models.RelationshipEdge, error) {
				return d.compareBatch(ctx, key, cmp)
			},
		}
	}

	var candidates []*models.RelationshipEdge
	for _, res := range llm.Process(ctx, d.pool, items) {
		result.PairsAttempted++
		if res.Err != nil {
			result.PairsFailed++
			log.Warn("Comparison failed, skipping pair",
				zap.String("pair", res.Key),
				zap.Error(res.Err))
			continue
		}
		candidates = append(candidates, res.Result...)
	}

	if result.PairsAttempted > 0 && result.PairsFailed == result.PairsAttempted {
		return result, fmt.Errorf("%w: all %d comparisons failed",
			apperrors.ErrDetectionRunFailed, result.PairsAttempted)
	}

	deduped := DedupRelationshipCandidates(candidates)
	result.CandidatesFound = len(deduped)

	now := time.Now().UTC()
	for _, edge := range deduped {
		edge.ID = models.RelationshipEdgeID(edge.SourceTable, edge.SourceColumn, edge.TargetTable, edge.TargetColumn, edge.Type)
		edge.DetectedBy = d.chat.GetModel()
		edge.DetectedAt = now
		if err := d.store.UpsertRelationship(ctx, edge); err != nil {
			return result, err
		}
		result.EdgesPersisted++
	}

	log.Info("Relationship detection finished",
		zap.Int("pairs_attempted", result.PairsAttempted),
		zap.Int("pairs_failed", result.PairsFailed),
		zap.Int("edges_persisted", result.EdgesPersisted))

	return result, nil
}

// compareBatch runs one LLM call for one source batch against one target
// table and converts validated candidates into edges.
func (d *relationshipDetector) compareBatch(ctx context.Context, source models.TableKey, cmp comparison) ([]*models.RelationshipEdge, error) {
	prompt, err := prompts.BuildRelationshipDetectionPrompt(
		source.String(), toDetectionColumns(cmp.sourceCols, cmp.target),
		cmp.target.String(), toDetectionColumns(cmp.targetCols, models.TableKey{}))
	if err != nil {
		return nil, err
	}

	resp, err := d.chat.GenerateResponse(ctx, prompt, prompts.RelationshipDetectionSystemPrompt(), detectionTemperature)
	if err != nil {
		return nil, err
	}

	parsed, err := llm.ParseJSONResponse[detectionResponse](resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parse detection response: %w", err)
	}

	sourceSet := columnNameSet(cmp.sourceCols)
	targetSet := columnNameSet(cmp.targetCols)

	var edges []*models.RelationshipEdge
	for _, raw := range parsed.Relationships {
		if !models.ValidRelationshipType(raw.RelationshipType) {
			d.logger.Debug("Dropping candidate with invalid type",
				zap.String("type", raw.RelationshipType))
			continue
		}
		if raw.Confidence < d.threshold || raw.Confidence > 1 {
			continue
		}
		// The model sometimes hallucinates column names or swaps table
		// identities; an edge may only reference columns that exist on the
		// compared pair.
		if !sourceSet[raw.SourceColumn] || !targetSet[raw.TargetColumn] {
			d.logger.Debug("Dropping candidate referencing unknown column",
				zap.String("source_column", raw.SourceColumn),
				zap.String("target_column", raw.TargetColumn))
			continue
		}

		edges = append(edges, &models.RelationshipEdge{
			SourceTable:  source,
			SourceColumn: raw.SourceColumn,
			TargetTable:  cmp.target,
			TargetColumn: raw.TargetColumn,
			Type:         raw.RelationshipType,
			Subtype:      raw.RelationshipSubtype,
			Confidence:   raw.Confidence,
			Reasoning:    raw.Reasoning,
		})
	}

	return edges, nil
}

// DedupRelationshipCandidates collapses candidates sharing the same four
// endpoints and type. Highest confidence wins; on equal confidence the
// first-seen candidate keeps its subtype and reasoning.
func DedupRelationshipCandidates(candidates []*models.RelationshipEdge) []*models.RelationshipEdge {
	index := make(map[string]int, len(candidates))
	var out []*models.RelationshipEdge

	for _, c := range candidates {
		key := c.DedupKey()
		if i, ok := index[key]; ok {
			if c.Confidence > out[i].Confidence {
				out[i] = c
			}
			continue
		}
		index[key] = len(out)
		out = append(out, c)
	}
	return out
}

func filterJoinRelevant(cols []*models.ColumnNode) []*models.ColumnNode {
	var out []*models.ColumnNode
	for _, c := range cols {
		if c.JoinRelevant() {
			out = append(out, c)
		}
	}
	return out
}

func columnNameSet(cols []*models.ColumnNode) map[string]bool {
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c.Name] = true
	}
	return set
}

// toDetectionColumns converts column nodes into the prompt payload. When a
// target is given, columns whose singularized name stem matches the target
// table's entity name get a likely-reference hint, e.g. customer_id against
// a customers table.
func toDetectionColumns(cols []*models.ColumnNode, target models.TableKey) []prompts.DetectionColumn {
	out := make([]prompts.DetectionColumn, len(cols))
	for i, c := range cols {
		dc := prompts.DetectionColumn{
			Name:         c.Name,
			DataType:     c.DataType,
			ColumnType:   c.ColumnType,
			SemanticType: c.SemanticType,
			Aliases:      strings.Join(c.Aliases, ", "),
			Description:  c.Description,
			Cardinality:  c.Cardinality,
		}
		if !target.IsZero() && likelyReferences(c.Name, target.Table) {
			dc.LikelyReference = target.Table
		}
		out[i] = dc
	}
	return out
}

// likelyReferences matches naming-convention FKs: order_id -> orders.
func likelyReferences(columnName, tableName string) bool {
	stem := strings.ToLower(columnName)
	for _, suffix := range []string{"_id", "_key", "_code"} {
		if s, ok := strings.CutSuffix(stem, suffix); ok {
			stem = s
			break
		}
	}
	if stem == "" {
		return false
	}
	return inflection.Singular(stem) == inflection.Singular(strings.ToLower(tableName))
}
