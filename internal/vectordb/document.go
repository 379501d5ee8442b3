package vectordb

import "time"

// Chunk is the unit stored in the vector index and returned by retrieval:
// one bounded slice of a source document plus the metadata needed for
// tenant filtering and re-indexing.
type Chunk struct {
	ID       string
	Text     string
	Metadata ChunkMetadata
}

// ChunkMetadata holds structured information about a chunk. TenantID is the
// partition key: every write attaches it and every read and delete must
// filter on it.
type ChunkMetadata struct {
	TenantID    string
	SourcePath  string
	DocType     string
	ChunkIndex  int
	TotalChunks int
	IndexedAt   time.Time
	Extra       map[string]string
}

// SearchResult pairs a chunk with its similarity score.
type SearchResult struct {
	Chunk      Chunk
	Similarity float32
}

// Filter narrows reads and deletes. TenantID is mandatory; SourcePath and
// DocType are optional refinements.
type Filter struct {
	TenantID   string
	SourcePath string
	DocType    string
}
