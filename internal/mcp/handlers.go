package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lifelink/copilot/internal/backend"
	"github.com/lifelink/copilot/internal/permissions"
	"github.com/lifelink/copilot/internal/rag"
)

// handleSearchDocumentation runs a tenant-scoped semantic search.
func (s *Server) handleSearchDocumentation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := permissions.Check(s.identity.Role, "search_documentation"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	opts := rag.RetrieveOptions{
		TopK:    request.GetInt("limit", 0),
		DocType: request.GetString("doc_type", ""),
	}

	res, err := s.docs.Retrieve(ctx, s.identity.TenantID, query, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if res.Degraded {
		return mcp.NewToolResultError("documentation search is temporarily unavailable"), nil
	}
	if len(res.Passages) == 0 {
		return mcp.NewToolResultText("No documents found for your search. Try rephrasing the question."), nil
	}

	return mcp.NewToolResultText(formatPassages(res.Passages)), nil
}

// handleListOccurrences lists occurrences through the operational backend.
func (s *Server) handleListOccurrences(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := permissions.Check(s.identity.Role, "list_occurrences"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	q := backend.OccurrenceQuery{
		Status: request.GetString("status", ""),
		Limit:  request.GetInt("limit", 0),
	}

	list, err := s.backend.ListOccurrences(ctx, backend.Identity{
		TenantID: s.identity.TenantID,
		UserID:   s.identity.UserID,
	}, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing occurrences failed: %v", err)), nil
	}
	if len(list.Occurrences) == 0 {
		return mcp.NewToolResultText("No occurrences found."), nil
	}

	return mcp.NewToolResultText(formatOccurrences(list)), nil
}

func formatPassages(passages []rag.Passage) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d passage(s):\n", len(passages))
	for i, p := range passages {
		fmt.Fprintf(&sb, "\n--- Passage %d ---\n", i+1)
		fmt.Fprintf(&sb, "Source: %s (%s)\n", p.SourcePath, p.DocType)
		fmt.Fprintf(&sb, "Similarity: %.1f%%\n\n", p.Similarity*100)
		sb.WriteString(p.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatOccurrences(list *backend.OccurrenceList) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Showing %d of %d occurrence(s):\n", len(list.Occurrences), list.Total)
	for _, occ := range list.Occurrences {
		fmt.Fprintf(&sb, "\n#%s [%s] %s\n", occ.ID, occ.Status, occ.HospitalName)
		if len(occ.Organs) > 0 {
			organs := make([]string, len(occ.Organs))
			for i, o := range occ.Organs {
				organs[i] = o.Type
			}
			fmt.Fprintf(&sb, "Organs: %s\n", strings.Join(organs, ", "))
		}
		if occ.Deadline != nil {
			fmt.Fprintf(&sb, "Deadline: %s\n", occ.Deadline.Format(time.RFC3339))
		}
	}
	return sb.String()
}
