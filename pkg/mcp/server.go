// Package mcp hosts the MCP server exposing catalog search to agents.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Server wraps the mcp-go MCPServer together with the logger tools use.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates the MCP server with tool capabilities enabled.
func NewServer(name, version string, logger *zap.Logger) *Server {
	return &Server{
		mcp: server.NewMCPServer(
			name,
			version,
			server.WithToolCapabilities(true),
		),
		logger: logger.Named("mcp"),
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates the stateless HTTP transport for this
// server. Routing to /mcp is the HTTP mux's job, so no endpoint path is
// configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterTool adds a tool and records the registration.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
	s.logger.Debug("Registered MCP tool", zap.String("tool", tool.Name))
}
