// Package tools provides the MCP tool implementations.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/schemascope/schemascope-engine/pkg/config"
	"github.com/schemascope/schemascope-engine/pkg/models"
	"github.com/schemascope/schemascope-engine/pkg/services"
)

// ToolRegistrar is the part of the MCP server tools register against.
type ToolRegistrar interface {
	RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc)
}

// SearchToolDeps contains dependencies for the semantic search tool.
type SearchToolDeps struct {
	Search services.SemanticSearchService
	Config *config.SearchConfig
	Logger *zap.Logger
}

// RegisterSearchTools registers the semantic search MCP tool.
func RegisterSearchTools(r ToolRegistrar, deps *SearchToolDeps) {
	tool := mcp.NewTool(
		"semantic_search",
		mcp.WithDescription(
			"Search the database catalog by meaning rather than name. "+
				"Embeds the query and returns tables and columns above a similarity threshold. "+
				"In analytics mode, qualifying tables come back with all their columns so you can "+
				"write a complete query; in datamining mode only the columns that matched are returned. "+
				"Example: semantic_search(query='customer churn signals', mode='analytics').",
		),
		mcp.WithString(
			"query",
			mcp.Required(),
			mcp.Description("Natural language description of the data you are looking for"),
		),
		mcp.WithString(
			"mode",
			mcp.Required(),
			mcp.Description("Search mode: 'analytics' (whole tables) or 'datamining' (individual columns)"),
		),
		mcp.WithNumber(
			"threshold",
			mcp.Description("Minimum cosine similarity in [-1, 0.95]; defaults per mode when omitted"),
		),
		mcp.WithBoolean(
			"include_relationships",
			mcp.Description("Include join relationships between the returned tables"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	r.RegisterTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return nil, err
		}
		query = strings.TrimSpace(query)
		if query == "" {
			return mcp.NewToolResultError("query parameter cannot be empty"), nil
		}

		modeStr, err := req.RequireString("mode")
		if err != nil {
			return nil, err
		}
		mode, err := models.ParseSearchMode(modeStr)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		searchReq := models.SearchRequest{
			Query:     query,
			Mode:      mode,
			Threshold: deps.Config.DefaultThreshold(mode),
		}
		args, _ := req.Params.Arguments.(map[string]any)
		if v, ok := args["threshold"]; ok {
			if f, ok := v.(float64); ok {
				searchReq.Threshold = f
			}
		}
		if v, ok := args["include_relationships"]; ok {
			if b, ok := v.(bool); ok {
				searchReq.IncludeRelationships = b
			}
		}
		if err := searchReq.Validate(); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result, err := deps.Search.Search(ctx, searchReq)
		if err != nil {
			deps.Logger.Warn("Semantic search tool failed",
				zap.String("mode", string(mode)),
				zap.Error(err))
			return nil, err
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}
