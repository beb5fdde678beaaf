package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/notifd/notifd/pkg/manager"
	"github.com/notifd/notifd/pkg/protocol/schema"
)

// Server wraps the MCP server with notifd's display control tools
type Server struct {
	mcpServer *server.MCPServer
	mgr       *manager.Manager
	validator *schema.Validator
}

// NewServer creates a new MCP server for display control
func NewServer(mgr *manager.Manager, validator *schema.Validator) *Server {
	s := &Server{
		mgr:       mgr,
		validator: validator,
	}

	s.mcpServer = server.NewMCPServer(
		"notifd",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// ServeStdio starts the MCP server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
