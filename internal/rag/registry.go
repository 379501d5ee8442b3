package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/lifelink/copilot/internal/db"
)

// DocumentInfo is one indexed source as recorded in the documents table. The
// table is the catalog of what the vector store holds, so listings and
// re-index decisions never need to scan the index itself.
type DocumentInfo struct {
	TenantID   string    `json:"tenant_id"`
	SourcePath string    `json:"source_path"`
	DocType    string    `json:"doc_type"`
	ChunkCount int       `json:"chunk_count"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// Registry tracks indexed documents per tenant in SQLite.
type Registry struct {
	db *db.DB
}

// NewRegistry creates a Registry backed by the given database.
func NewRegistry(database *db.DB) *Registry {
	return &Registry{db: database}
}

// Upsert records a document as indexed, replacing any previous entry for the
// same tenant and source path.
func (r *Registry) Upsert(ctx context.Context, info DocumentInfo) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (tenant_id, source_path, doc_type, chunk_count, indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, source_path) DO UPDATE SET
			doc_type = excluded.doc_type,
			chunk_count = excluded.chunk_count,
			indexed_at = excluded.indexed_at`,
		info.TenantID, info.SourcePath, info.DocType, info.ChunkCount,
		info.IndexedAt.UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("upsert document record: %w", err)
	}
	return nil
}

// List returns all indexed documents for a tenant, newest first.
func (r *Registry) List(ctx context.Context, tenantID string) ([]DocumentInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tenant_id, source_path, doc_type, chunk_count, indexed_at
		FROM documents
		WHERE tenant_id = ?
		ORDER BY indexed_at DESC, source_path`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentInfo
	for rows.Next() {
		var (
			info      DocumentInfo
			indexedAt string
		)
		if err := rows.Scan(&info.TenantID, &info.SourcePath, &info.DocType, &info.ChunkCount, &indexedAt); err != nil {
			return nil, fmt.Errorf("scan document record: %w", err)
		}
		info.IndexedAt = parseStoredTime(indexedAt)
		docs = append(docs, info)
	}
	return docs, rows.Err()
}

// Get returns the record for one source path within a tenant, or
// sql.ErrNoRows wrapped when absent.
func (r *Registry) Get(ctx context.Context, tenantID, sourcePath string) (DocumentInfo, error) {
	var (
		info      DocumentInfo
		indexedAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT tenant_id, source_path, doc_type, chunk_count, indexed_at
		FROM documents
		WHERE tenant_id = ? AND source_path = ?`,
		tenantID, sourcePath,
	).Scan(&info.TenantID, &info.SourcePath, &info.DocType, &info.ChunkCount, &indexedAt)
	if err != nil {
		return DocumentInfo{}, err
	}
	info.IndexedAt = parseStoredTime(indexedAt)
	return info, nil
}

// Delete removes the record for one source path. Missing records are not an
// error.
func (r *Registry) Delete(ctx context.Context, tenantID, sourcePath string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM documents WHERE tenant_id = ? AND source_path = ?`,
		tenantID, sourcePath,
	)
	return err
}

// DeleteTenant removes every record belonging to the tenant.
func (r *Registry) DeleteTenant(ctx context.Context, tenantID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM documents WHERE tenant_id = ?`, tenantID,
	)
	return err
}

func parseStoredTime(s string) time.Time {
	if t, err := time.Parse(time.DateTime, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
