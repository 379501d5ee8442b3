// Package rag implements the retrieval pipeline: documents go in through
// chunking and embedding, scoped passages come back out for prompt assembly.
// Every operation is tenant-scoped end to end.
package rag

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lifelink/copilot/internal/chunker"
	"github.com/lifelink/copilot/internal/fault"
	"github.com/lifelink/copilot/internal/vectordb"
)

// Retrieval defaults. Results scoring below the threshold are discarded
// rather than padding the prompt with weak matches.
const (
	DefaultTopK      = 5
	DefaultThreshold = 0.7
)

// Known document types. Unknown types are accepted but these are what the
// ingestion surfaces offer.
const (
	DocTypeProtocol = "protocol"
	DocTypeManual   = "manual"
	DocTypePolicy   = "policy"
	DocTypeGuide    = "guide"
)

// Pipeline ties chunking, the vector store and the document registry
// together.
type Pipeline struct {
	store     vectordb.VectorStore
	registry  *Registry
	log       *zap.Logger
	chunkSize int
	overlap   int
	topK      int
	threshold float32
}

// Options tunes a Pipeline. Zero values fall back to defaults.
type Options struct {
	ChunkSize int
	Overlap   int
	TopK      int
	Threshold float32
}

// NewPipeline creates a Pipeline.
func NewPipeline(store vectordb.VectorStore, registry *Registry, log *zap.Logger, opts Options) *Pipeline {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunker.DefaultChunkSize
	}
	if opts.Overlap < 0 {
		opts.Overlap = chunker.DefaultOverlap
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		store:     store,
		registry:  registry,
		log:       log,
		chunkSize: opts.ChunkSize,
		overlap:   opts.Overlap,
		topK:      opts.TopK,
		threshold: opts.Threshold,
	}
}

// IngestRequest describes one document to index.
type IngestRequest struct {
	TenantID   string            `json:"tenant_id"`
	SourcePath string            `json:"source_path"`
	DocType    string            `json:"doc_type"`
	Content    string            `json:"content"`
	Markdown   bool              `json:"markdown"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// IngestResult reports what a single ingestion produced.
type IngestResult struct {
	SourcePath string `json:"source_path"`
	ChunkCount int    `json:"chunk_count"`
	Replaced   bool   `json:"replaced"`
}

// Ingest chunks, embeds and stores one document, replacing any previous
// version of the same source path. Metadata is validated before any chunking
// work happens so a malformed request never leaves partial chunks behind.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if err := validateIngest(req); err != nil {
		return nil, err
	}

	content := req.Content
	if req.Markdown {
		content = markdownToText([]byte(content))
	}

	parts := chunker.Split(content, p.chunkSize, p.overlap)
	if len(parts) == 0 {
		return nil, fault.New(fault.KindValidation, "document has no content after normalization")
	}

	replaced := false
	if _, err := p.registry.Get(ctx, req.TenantID, req.SourcePath); err == nil {
		replaced = true
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check document record: %w", err)
	}

	// Drop the previous version first so a re-index never leaves stale
	// chunks alongside new ones.
	if err := p.store.DeleteBySource(ctx, req.TenantID, req.SourcePath); err != nil {
		return nil, fmt.Errorf("delete old chunks for %s: %w", req.SourcePath, err)
	}

	now := time.Now().UTC()
	chunks := make([]vectordb.Chunk, len(parts))
	for i, text := range parts {
		chunks[i] = vectordb.Chunk{
			ID:   chunkID(req.TenantID, req.SourcePath, i),
			Text: text,
			Metadata: vectordb.ChunkMetadata{
				TenantID:    req.TenantID,
				SourcePath:  req.SourcePath,
				DocType:     req.DocType,
				ChunkIndex:  i,
				TotalChunks: len(parts),
				IndexedAt:   now,
				Extra:       req.Extra,
			},
		}
	}

	if err := p.store.AddChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("store chunks for %s: %w", req.SourcePath, err)
	}

	if err := p.registry.Upsert(ctx, DocumentInfo{
		TenantID:   req.TenantID,
		SourcePath: req.SourcePath,
		DocType:    req.DocType,
		ChunkCount: len(chunks),
		IndexedAt:  now,
	}); err != nil {
		return nil, err
	}

	p.log.Info("document indexed",
		zap.String("tenant_id", req.TenantID),
		zap.String("source_path", req.SourcePath),
		zap.String("doc_type", req.DocType),
		zap.Int("chunks", len(chunks)),
	)

	return &IngestResult{
		SourcePath: req.SourcePath,
		ChunkCount: len(chunks),
		Replaced:   replaced,
	}, nil
}

// Passage is one retrieved chunk ready for prompt assembly.
type Passage struct {
	SourcePath string  `json:"source_path"`
	DocType    string  `json:"doc_type"`
	Text       string  `json:"text"`
	Similarity float32 `json:"similarity"`
}

// RetrievalResult is what Retrieve hands to the agent. Degraded marks a
// retrieval that failed at the store or embedding layer and came back empty
// so the conversation can continue without grounding context.
type RetrievalResult struct {
	Passages []Passage `json:"passages"`
	Degraded bool      `json:"degraded"`
}

// RetrieveOptions narrows a retrieval beyond the tenant.
type RetrieveOptions struct {
	DocType string
	TopK    int
}

// Retrieve searches the tenant's index for passages relevant to query.
// Infrastructure failures degrade instead of erroring: the caller gets an
// empty, flagged result and the turn proceeds without retrieved context.
// Tenant validation failures still error, isolation is not degradable.
func (p *Pipeline) Retrieve(ctx context.Context, tenantID, query string, opts RetrieveOptions) (*RetrievalResult, error) {
	if tenantID == "" {
		return nil, fault.New(fault.KindValidation, "tenant ID is required")
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = p.topK
	}

	results, err := p.store.Search(ctx, query, topK, vectordb.Filter{
		TenantID: tenantID,
		DocType:  opts.DocType,
	})
	if err != nil {
		if fault.IsKind(err, fault.KindValidation) || fault.IsKind(err, fault.KindPermission) {
			return nil, err
		}
		p.log.Warn("retrieval degraded, continuing without context",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return &RetrievalResult{Degraded: true}, nil
	}

	passages := make([]Passage, 0, len(results))
	for _, r := range results {
		if r.Similarity < p.threshold {
			continue
		}
		passages = append(passages, Passage{
			SourcePath: r.Chunk.Metadata.SourcePath,
			DocType:    r.Chunk.Metadata.DocType,
			Text:       r.Chunk.Text,
			Similarity: r.Similarity,
		})
	}

	return &RetrievalResult{Passages: passages}, nil
}

// FormatContext renders passages as a prompt section. Empty retrievals
// produce an empty string so the agent can omit the section entirely.
func FormatContext(res *RetrievalResult) string {
	if res == nil || len(res.Passages) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Relevant documentation:\n\n")
	for i, passage := range res.Passages {
		sb.WriteString(fmt.Sprintf("[%d] %s (%s)\n%s\n\n", i+1, passage.SourcePath, passage.DocType, passage.Text))
	}
	return sb.String()
}

// Reindex replaces a document's chunks with a freshly ingested version.
// The old chunks are removed first so stale passages never outlive an
// update. A document that was never indexed reindexes as a plain ingest.
func (p *Pipeline) Reindex(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if err := validateIngest(req); err != nil {
		return nil, err
	}
	if err := p.DeleteSource(ctx, req.TenantID, req.SourcePath); err != nil && fault.KindOf(err) != fault.KindNotFound {
		return nil, err
	}
	return p.Ingest(ctx, req)
}

// DeleteSource removes one document's chunks and its registry record.
func (p *Pipeline) DeleteSource(ctx context.Context, tenantID, sourcePath string) error {
	if tenantID == "" {
		return fault.New(fault.KindValidation, "tenant ID is required")
	}
	if sourcePath == "" {
		return fault.New(fault.KindValidation, "source path is required")
	}
	if _, err := p.registry.Get(ctx, tenantID, sourcePath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fault.Newf(fault.KindNotFound, "document %q is not indexed", sourcePath)
		}
		return fmt.Errorf("check document record: %w", err)
	}
	if err := p.store.DeleteBySource(ctx, tenantID, sourcePath); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", sourcePath, err)
	}
	return p.registry.Delete(ctx, tenantID, sourcePath)
}

// DeleteTenant removes everything a tenant has indexed. Used when a tenant
// is offboarded.
func (p *Pipeline) DeleteTenant(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return fault.New(fault.KindValidation, "tenant ID is required")
	}
	if err := p.store.DeleteByTenant(ctx, tenantID); err != nil {
		return fmt.Errorf("delete tenant chunks: %w", err)
	}
	return p.registry.DeleteTenant(ctx, tenantID)
}

// Documents lists a tenant's indexed documents.
func (p *Pipeline) Documents(ctx context.Context, tenantID string) ([]DocumentInfo, error) {
	if tenantID == "" {
		return nil, fault.New(fault.KindValidation, "tenant ID is required")
	}
	return p.registry.List(ctx, tenantID)
}

func validateIngest(req IngestRequest) error {
	var missing []string
	if req.TenantID == "" {
		missing = append(missing, "tenant_id")
	}
	if req.SourcePath == "" {
		missing = append(missing, "source_path")
	}
	if req.DocType == "" {
		missing = append(missing, "doc_type")
	}
	if len(missing) > 0 {
		return fault.Newf(fault.KindValidation, "missing required metadata: %s", strings.Join(missing, ", ")).
			WithDetails(map[string]any{"missing_fields": missing})
	}
	if strings.TrimSpace(req.Content) == "" {
		return fault.New(fault.KindValidation, "document content is empty")
	}
	return nil
}

func chunkID(tenantID, sourcePath string, idx int) string {
	return fmt.Sprintf("%s:%s#%d", tenantID, sourcePath, idx)
}
