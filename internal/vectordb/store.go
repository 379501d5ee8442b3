package vectordb

import "context"

// VectorStore defines the interface for storing and searching document chunks
// by embeddings. Implementations enforce tenant isolation: Search, List and
// the delete operations require a Filter carrying a tenant ID and never
// return chunks belonging to another tenant.
type VectorStore interface {
	// AddChunks adds or updates chunks in the store.
	AddChunks(ctx context.Context, chunks []Chunk) error

	// Search performs a semantic search using the query text, scoped to the
	// filter's tenant.
	Search(ctx context.Context, query string, limit int, filter Filter) ([]SearchResult, error)

	// ListBySource retrieves all chunks for one source path within a tenant.
	ListBySource(ctx context.Context, tenantID, sourcePath string) ([]Chunk, error)

	// DeleteBySource removes all chunks for one source path within a tenant.
	DeleteBySource(ctx context.Context, tenantID, sourcePath string) error

	// DeleteByTenant removes every chunk belonging to the tenant.
	DeleteByTenant(ctx context.Context, tenantID string) error

	// Persist saves the store's data to the given directory.
	Persist(ctx context.Context, dir string) error

	// Load restores the store's data from the given directory.
	Load(ctx context.Context, dir string) error

	// Count returns the total number of chunks in the store.
	Count() int
}
