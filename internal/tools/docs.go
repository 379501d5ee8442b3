package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/lifelink/copilot/internal/audit"
	"github.com/lifelink/copilot/internal/fault"
	"github.com/lifelink/copilot/internal/rag"
)

var validDocTypes = []string{rag.DocTypeProtocol, rag.DocTypeManual, rag.DocTypePolicy, rag.DocTypeGuide}

// SearchDocumentationTool answers questions from the tenant's indexed
// knowledge base through the retrieval pipeline.
type SearchDocumentationTool struct {
	pipeline *rag.Pipeline
}

// NewSearchDocumentationTool creates the tool.
func NewSearchDocumentationTool(pipeline *rag.Pipeline) *SearchDocumentationTool {
	return &SearchDocumentationTool{pipeline: pipeline}
}

func (t *SearchDocumentationTool) Name() string { return "search_documentation" }

func (t *SearchDocumentationTool) Description() string {
	return `Searches the knowledge base and documentation.

Parameters:
- query: question or search terms (required)
- doc_type: filter by document type (protocol, manual, policy, guide)
- limit: maximum number of results (default: 5)

Returns relevant documentation excerpts that answer the question. Use it for
questions about procedures, protocols and system usage.`
}

func (t *SearchDocumentationTool) RequiresConfirmation() bool { return false }
func (t *SearchDocumentationTool) Severity() audit.Severity   { return audit.SeverityInfo }

func (t *SearchDocumentationTool) Prompt(Invocation, Params) ConfirmationPrompt {
	return ConfirmationPrompt{}
}

func (t *SearchDocumentationTool) Execute(ctx context.Context, inv Invocation, params Params) (*Result, error) {
	query := strings.TrimSpace(params.String("query"))
	if query == "" {
		return nil, fault.New(fault.KindValidation, "query must not be empty")
	}

	docType := params.String("doc_type")
	if docType != "" && !contains(validDocTypes, docType) {
		return nil, fault.Newf(fault.KindValidation, "invalid doc type %q, valid types: %s",
			docType, strings.Join(validDocTypes, ", "))
	}

	res, err := t.pipeline.Retrieve(ctx, inv.TenantID, query, rag.RetrieveOptions{
		DocType: docType,
		TopK:    params.Int("limit", 5),
	})
	if err != nil {
		return nil, err
	}

	if res.Degraded {
		return nil, fault.New(fault.KindUnavailable, "documentation search is temporarily unavailable")
	}
	if len(res.Passages) == 0 {
		return &Result{
			Data:    map[string]any{"results": []any{}, "query": query},
			Message: "No documents found for your search. Try rephrasing the question.",
		}, nil
	}

	results := make([]map[string]any, len(res.Passages))
	for i, passage := range res.Passages {
		results[i] = map[string]any{
			"content": passage.Text,
			"score":   passage.Similarity,
			"metadata": map[string]any{
				"doc_type": passage.DocType,
				"source":   passage.SourcePath,
			},
		}
	}

	return &Result{
		Data: map[string]any{
			"results":       results,
			"query":         query,
			"total_results": len(results),
		},
		Message: fmt.Sprintf("Found %d relevant documents.", len(results)),
	}, nil
}
