package mcp

import "github.com/mark3labs/mcp-go/mcp"

// searchDocumentationTool defines the search_documentation MCP tool.
var searchDocumentationTool = mcp.NewTool("search_documentation",
	mcp.WithDescription("Search the tenant's operational documentation (protocols, manuals, policies) semantically."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of passages to return (default 5)"),
	),
	mcp.WithString("doc_type",
		mcp.Description("Filter results by document type"),
		mcp.Enum("protocol", "manual", "policy", "guide"),
	),
)

// listOccurrencesTool defines the list_occurrences MCP tool.
var listOccurrencesTool = mcp.NewTool("list_occurrences",
	mcp.WithDescription("List organ procurement occurrences for the tenant, optionally filtered by status."),
	mcp.WithString("status",
		mcp.Description("Filter by occurrence status"),
		mcp.Enum("open", "in_progress", "completed", "cancelled"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of occurrences to return (default 20, max 100)"),
	),
)
