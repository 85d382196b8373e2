// Package mcp exposes the response pipeline as Model Context Protocol tools,
// so MCP clients can talk to Farum the same way the HTTP API does.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/PabloGalante/farum-companion/internal/app/protocol"
	"github.com/PabloGalante/farum-companion/internal/domain"
)

// Pipeline is the part of the orchestrator the MCP tools use.
type Pipeline interface {
	Respond(ctx context.Context, msg domain.IncomingMessage, pre *domain.Context) domain.Response
	Trends(userID domain.UserID) domain.EmotionalTrends
	Protocols() *protocol.Registry
}

// Server wraps the MCP server around the pipeline.
type Server struct {
	mcpServer *mcpserver.MCPServer
	pipeline  Pipeline
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all tools.
func New(pipeline Pipeline, logger *slog.Logger, version string) *Server {
	s := &Server{
		pipeline: pipeline,
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"farum",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ServeStdio serves the tools over stdin/stdout until the client goes away.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcpServer)
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("encoding result: " + err.Error())
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
