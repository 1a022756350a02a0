// Package mcp exposes the stateless clinical engine as Model Context Protocol
// tools over stdio.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/fertility-cds-server/internal/domain"
	"github.com/fertility-cds-server/internal/service"
)

// Server represents the clinical decision support MCP server
type Server struct {
	engine    *service.Engine
	mcpServer *mcp.Server
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance with every tool registered
func NewServer(engine *service.Engine, cfg domain.MCPConfig, logger *logrus.Logger) *Server {
	name, version := cfg.ServerName, cfg.ServerVersion
	if name == "" {
		name = "fertility-cds"
	}
	if version == "" {
		version = "1.0.0"
	}

	s := &Server{
		engine:    engine,
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		logger:    logger,
	}
	s.registerTools()

	return s
}

// Run serves MCP over stdin/stdout until ctx is cancelled or the client leaves.
func (s *Server) Run(ctx context.Context) error {
	s.logger.WithField("protocol", s.engine.Protocol).Info("Starting MCP server on stdio")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// registerTools registers the engine tools with the MCP SDK
func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolClassifyObservation,
		Description: "Classify a fertility work-up observation (hormones, semen analysis, structural findings) into clinical findings with severities.",
	}, s.classifyObservation)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolComputeBMI,
		Description: "Compute body mass index from weight in kg and height in cm and report its band.",
	}, s.computeBMI)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolRecommend,
		Description: "List recommended medicines for a protocol recommendation key or for a set of finding codes.",
	}, s.recommend)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolSearchCatalog,
		Description: "Search the medicine catalog by trade or scientific name, case-insensitively.",
	}, s.searchCatalog)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolEvaluateRule,
		Description: "Evaluate a single classification rule against an observation.",
	}, s.evaluateRule)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolGetProtocolNode,
		Description: "Fetch one node of the diagnostic decision tree; an empty id returns the start node.",
	}, s.getProtocolNode)

	s.logger.WithField("tool_count", len(ToolNames)).Info("Registered MCP tools")
}
