package vectordb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/lifelink/copilot/internal/embeddings"
	"github.com/lifelink/copilot/internal/fault"
)

const collectionName = "knowledge"

// metadata keys stored alongside every chunk.
const (
	metaTenantID    = "tenant_id"
	metaSourcePath  = "source_path"
	metaDocType     = "doc_type"
	metaChunkIndex  = "chunk_index"
	metaTotalChunks = "total_chunks"
	metaIndexedAt   = "indexed_at"
)

// ChromemStore implements VectorStore using chromem-go. All tenants share one
// collection; isolation is enforced through a mandatory tenant_id metadata
// filter on every read and delete.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   embeddings.Embedder
	embedFunc  chromem.EmbeddingFunc
}

// NewChromemStore creates a new in-memory ChromemStore.
func NewChromemStore(embedder embeddings.Embedder) (*ChromemStore, error) {
	db := chromem.NewDB()
	ef := embeddings.ToChromemFunc(embedder)

	col, err := db.GetOrCreateCollection(collectionName, nil, ef)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &ChromemStore{
		db:         db,
		collection: col,
		embedder:   embedder,
		embedFunc:  ef,
	}, nil
}

func (s *ChromemStore) AddChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	chromDocs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		if c.Metadata.TenantID == "" {
			return fault.Newf(fault.KindValidation, "chunk %q has no tenant ID", c.ID)
		}
		chromDocs[i] = chromem.Document{
			ID:       c.ID,
			Content:  c.Text,
			Metadata: metadataToMap(c.Metadata),
		}
	}

	return s.collection.AddDocuments(ctx, chromDocs, 1)
}

func (s *ChromemStore) Search(ctx context.Context, query string, limit int, filter Filter) ([]SearchResult, error) {
	where, err := buildWhereClause(filter)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 10
	}

	// chromem-go requires nResults <= collection size.
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := s.collection.Query(ctx, query, limit, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			Chunk: Chunk{
				ID:       r.ID,
				Text:     r.Content,
				Metadata: mapToMetadata(r.Metadata),
			},
			Similarity: r.Similarity,
		}
	}

	return searchResults, nil
}

func (s *ChromemStore) ListBySource(ctx context.Context, tenantID, sourcePath string) ([]Chunk, error) {
	if tenantID == "" {
		return nil, fault.New(fault.KindValidation, "tenant ID is required")
	}
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}

	where := map[string]string{
		metaTenantID:   tenantID,
		metaSourcePath: sourcePath,
	}

	// Use sourcePath as the query text with count as limit to get every
	// matching chunk.
	results, err := s.collection.Query(ctx, sourcePath, count, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query by source path: %w", err)
	}

	chunks := make([]Chunk, len(results))
	for i, r := range results {
		chunks[i] = Chunk{
			ID:       r.ID,
			Text:     r.Content,
			Metadata: mapToMetadata(r.Metadata),
		}
	}

	return chunks, nil
}

func (s *ChromemStore) DeleteBySource(ctx context.Context, tenantID, sourcePath string) error {
	if tenantID == "" {
		return fault.New(fault.KindValidation, "tenant ID is required")
	}
	where := map[string]string{
		metaTenantID:   tenantID,
		metaSourcePath: sourcePath,
	}
	return s.collection.Delete(ctx, where, nil)
}

func (s *ChromemStore) DeleteByTenant(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return fault.New(fault.KindValidation, "tenant ID is required")
	}
	where := map[string]string{metaTenantID: tenantID}
	return s.collection.Delete(ctx, where, nil)
}

func (s *ChromemStore) Persist(ctx context.Context, dir string) error {
	return s.db.ExportToFile(dir+"/chromem.gob.gz", true, "")
}

func (s *ChromemStore) Load(ctx context.Context, dir string) error {
	err := s.db.ImportFromFile(dir+"/chromem.gob.gz", "")
	if err != nil {
		return fmt.Errorf("import from file: %w", err)
	}

	// Re-acquire collection reference after import.
	col := s.db.GetCollection(collectionName, s.embedFunc)
	if col == nil {
		return fmt.Errorf("collection %q not found after import", collectionName)
	}
	s.collection = col
	return nil
}

func (s *ChromemStore) Count() int {
	return s.collection.Count()
}

// metadataToMap converts ChunkMetadata to a flat map[string]string for chromem.
func metadataToMap(m ChunkMetadata) map[string]string {
	md := map[string]string{
		metaTenantID:    m.TenantID,
		metaSourcePath:  m.SourcePath,
		metaDocType:     m.DocType,
		metaChunkIndex:  strconv.Itoa(m.ChunkIndex),
		metaTotalChunks: strconv.Itoa(m.TotalChunks),
		metaIndexedAt:   m.IndexedAt.Format(time.RFC3339),
	}
	for k, v := range m.Extra {
		if _, reserved := md[k]; !reserved {
			md[k] = v
		}
	}
	return md
}

// mapToMetadata converts a flat map[string]string back to ChunkMetadata.
func mapToMetadata(m map[string]string) ChunkMetadata {
	chunkIndex, _ := strconv.Atoi(m[metaChunkIndex])
	totalChunks, _ := strconv.Atoi(m[metaTotalChunks])
	indexedAt, _ := time.Parse(time.RFC3339, m[metaIndexedAt])

	md := ChunkMetadata{
		TenantID:    m[metaTenantID],
		SourcePath:  m[metaSourcePath],
		DocType:     m[metaDocType],
		ChunkIndex:  chunkIndex,
		TotalChunks: totalChunks,
		IndexedAt:   indexedAt,
	}
	for k, v := range m {
		switch k {
		case metaTenantID, metaSourcePath, metaDocType, metaChunkIndex, metaTotalChunks, metaIndexedAt:
		default:
			if md.Extra == nil {
				md.Extra = make(map[string]string)
			}
			md.Extra[k] = v
		}
	}
	return md
}

// buildWhereClause converts a Filter to a chromem where clause. A missing
// tenant ID is rejected here so no caller can read across tenants by
// accident.
func buildWhereClause(filter Filter) (map[string]string, error) {
	if filter.TenantID == "" {
		return nil, fault.New(fault.KindValidation, "search filter must carry a tenant ID")
	}

	where := map[string]string{metaTenantID: filter.TenantID}
	if filter.SourcePath != "" {
		where[metaSourcePath] = filter.SourcePath
	}
	if filter.DocType != "" {
		where[metaDocType] = filter.DocType
	}
	return where, nil
}
