package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/schemascope/schemascope-engine/pkg/graph"
	"github.com/schemascope/schemascope-engine/pkg/models"
)

// RelationshipToolDeps contains dependencies for relationship tools.
type RelationshipToolDeps struct {
	Store  graph.Store
	Logger *zap.Logger
}

// RegisterRelationshipTools registers the relationship lookup MCP tool.
func RegisterRelationshipTools(r ToolRegistrar, deps *RelationshipToolDeps) {
	tool := mcp.NewTool(
		"get_table_relationships",
		mcp.WithDescription(
			"Return the detected join relationships for one table, in both directions. "+
				"Each edge names the source and target columns, the relationship type "+
				"(foreign_key, semantic or name_based) and the detection confidence. "+
				"Use this to find out how a table joins to the rest of the catalog. "+
				"Example: get_table_relationships(table='prod.sales.orders').",
		),
		mcp.WithString(
			"table",
			mcp.Required(),
			mcp.Description("Fully qualified table name: catalog.schema.table"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	r.RegisterTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dotted, err := req.RequireString("table")
		if err != nil {
			return nil, err
		}
		key, err := models.ParseTableKey(dotted)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		edges, err := deps.Store.RelationshipsForTable(ctx, key)
		if err != nil {
			deps.Logger.Warn("Relationship lookup failed",
				zap.String("table", key.String()),
				zap.Error(err))
			return nil, err
		}
		if edges == nil {
			edges = []*models.RelationshipEdge{}
		}

		payload := struct {
			Table         string                     `json:"table"`
			Relationships []*models.RelationshipEdge `json:"relationships"`
		}{
			Table:         key.String(),
			Relationships: edges,
		}

		jsonResult, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}
