// Package mcp exposes the read-only copilot tools over the Model Context
// Protocol so agent IDEs can search tenant documentation and list
// occurrences. The process runs under one fixed identity supplied at
// startup; the permission matrix still applies to every call.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/lifelink/copilot/internal/backend"
	"github.com/lifelink/copilot/internal/permissions"
	"github.com/lifelink/copilot/internal/rag"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Identity is the fixed caller the MCP process acts as.
type Identity struct {
	TenantID string
	UserID   string
	Role     permissions.Role
}

// Retriever is the slice of the retrieval pipeline the server needs.
type Retriever interface {
	Retrieve(ctx context.Context, tenantID, query string, opts rag.RetrieveOptions) (*rag.RetrievalResult, error)
}

// OccurrenceLister is the slice of the backend client the server needs.
type OccurrenceLister interface {
	ListOccurrences(ctx context.Context, id backend.Identity, q backend.OccurrenceQuery) (*backend.OccurrenceList, error)
}

// Server wraps an MCP server exposing documentation search and occurrence
// listing.
type Server struct {
	identity Identity
	docs     Retriever
	backend  OccurrenceLister
	mcp      *server.MCPServer
}

// NewServer creates a new MCP server acting as the given identity.
func NewServer(identity Identity, docs Retriever, occurrences OccurrenceLister) *Server {
	s := &Server{
		identity: identity,
		docs:     docs,
		backend:  occurrences,
	}

	s.mcp = server.NewMCPServer(
		"lifelink-copilot",
		Version,
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(searchDocumentationTool, s.handleSearchDocumentation)
	s.mcp.AddTool(listOccurrencesTool, s.handleListOccurrences)

	return s
}

// Serve starts the MCP server on stdio. Stdout carries MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
