package vectordb

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/lifelink/copilot/internal/fault"
)

// mockEmbedder returns deterministic embeddings based on text content.
// It produces a simple hash-based vector for reproducible tests.
type mockEmbedder struct {
	dims int
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dims: dims}
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = m.deterministicVector(text)
	}
	return results, nil
}

func (m *mockEmbedder) Dimensions() int { return m.dims }
func (m *mockEmbedder) Name() string    { return "mock" }

// deterministicVector produces a normalized vector from text. Similar texts
// produce similar vectors because shared characters contribute to the same
// positions.
func (m *mockEmbedder) deterministicVector(text string) []float32 {
	vec := make([]float32, m.dims)
	for i, ch := range text {
		idx := (int(ch) + i) % m.dims
		vec[idx] += 1.0
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(newMockEmbedder(64))
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	return store
}

func testChunk(id, tenantID, sourcePath, text string) Chunk {
	return Chunk{
		ID:   id,
		Text: text,
		Metadata: ChunkMetadata{
			TenantID:    tenantID,
			SourcePath:  sourcePath,
			DocType:     "protocol",
			ChunkIndex:  0,
			TotalChunks: 1,
			IndexedAt:   time.Now(),
		},
	}
}

func TestChromemStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	chunks := []Chunk{
		testChunk("c1", "tenant-a", "protocols/sepsis.md", "Sepsis protocol requires blood cultures before antibiotics"),
		testChunk("c2", "tenant-a", "protocols/triage.md", "Triage severity levels and escalation thresholds"),
		testChunk("c3", "tenant-a", "manuals/equipment.md", "Ventilator maintenance checklist and calibration steps"),
	}

	if err := store.AddChunks(ctx, chunks); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	if count := store.Count(); count != 3 {
		t.Errorf("Count: got %d, want 3", count)
	}

	results, err := store.Search(ctx, "sepsis antibiotics protocol", 2, Filter{TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Search returned no results")
	}
	if len(results) > 2 {
		t.Errorf("Search returned %d results, expected at most 2", len(results))
	}

	for _, r := range results {
		if r.Similarity == 0 {
			t.Error("result has zero similarity")
		}
	}
}

func TestChromemStore_SearchRequiresTenant(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.AddChunks(ctx, []Chunk{testChunk("c1", "tenant-a", "a.md", "some content")}); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	_, err := store.Search(ctx, "content", 5, Filter{})
	if !fault.IsKind(err, fault.KindValidation) {
		t.Fatalf("Search without tenant: got %v, want validation error", err)
	}

	if err := store.DeleteByTenant(ctx, ""); !fault.IsKind(err, fault.KindValidation) {
		t.Fatalf("DeleteByTenant without tenant: got %v, want validation error", err)
	}
	if err := store.DeleteBySource(ctx, "", "a.md"); !fault.IsKind(err, fault.KindValidation) {
		t.Fatalf("DeleteBySource without tenant: got %v, want validation error", err)
	}
}

func TestChromemStore_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	chunks := []Chunk{
		testChunk("a1", "tenant-a", "shared.md", "shared medication dosage reference"),
		testChunk("b1", "tenant-b", "shared.md", "shared medication dosage reference"),
	}
	if err := store.AddChunks(ctx, chunks); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	results, err := store.Search(ctx, "medication dosage", 10, Filter{TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if got := r.Chunk.Metadata.TenantID; got != "tenant-a" {
			t.Errorf("search leaked chunk from tenant %q", got)
		}
	}

	// Deleting tenant-a must leave tenant-b untouched.
	if err := store.DeleteByTenant(ctx, "tenant-a"); err != nil {
		t.Fatalf("DeleteByTenant: %v", err)
	}
	if count := store.Count(); count != 1 {
		t.Errorf("Count after tenant delete: got %d, want 1", count)
	}
	remaining, err := store.Search(ctx, "medication dosage", 10, Filter{TenantID: "tenant-b"})
	if err != nil {
		t.Fatalf("Search after delete: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("tenant-b results after tenant-a delete: got %d, want 1", len(remaining))
	}
}

func TestChromemStore_SearchWithDocTypeFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	c1 := testChunk("f1", "tenant-a", "p.md", "patient admission process step by step")
	c1.Metadata.DocType = "protocol"
	c2 := testChunk("f2", "tenant-a", "m.md", "patient admission process step by step")
	c2.Metadata.DocType = "manual"

	if err := store.AddChunks(ctx, []Chunk{c1, c2}); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	results, err := store.Search(ctx, "admission process", 10, Filter{TenantID: "tenant-a", DocType: "manual"})
	if err != nil {
		t.Fatalf("Search with filter: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Search with doc type filter returned no results")
	}
	for _, r := range results {
		if r.Chunk.Metadata.DocType != "manual" {
			t.Errorf("expected doc type manual, got %s", r.Chunk.Metadata.DocType)
		}
	}
}

func TestChromemStore_DeleteBySource(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	chunks := []Chunk{
		testChunk("d1", "tenant-a", "file_a.md", "first document content"),
		testChunk("d2", "tenant-a", "file_b.md", "second document content"),
	}
	if err := store.AddChunks(ctx, chunks); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	if err := store.DeleteBySource(ctx, "tenant-a", "file_a.md"); err != nil {
		t.Fatalf("DeleteBySource: %v", err)
	}

	if count := store.Count(); count != 1 {
		t.Errorf("Count after delete: got %d, want 1", count)
	}

	left, err := store.ListBySource(ctx, "tenant-a", "file_b.md")
	if err != nil {
		t.Fatalf("ListBySource: %v", err)
	}
	if len(left) != 1 || left[0].ID != "d2" {
		t.Errorf("ListBySource after delete: got %v", left)
	}
}

func TestChromemStore_RejectsChunkWithoutTenant(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.AddChunks(ctx, []Chunk{{ID: "x", Text: "orphan"}})
	if !fault.IsKind(err, fault.KindValidation) {
		t.Fatalf("AddChunks without tenant: got %v, want validation error", err)
	}
}

func TestChromemStore_PersistAndLoad(t *testing.T) {
	ctx := context.Background()
	embedder := newMockEmbedder(64)

	store, err := NewChromemStore(embedder)
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}

	now := time.Now().Truncate(time.Second)
	c1 := testChunk("persist1", "tenant-a", "protocols/sepsis.md", "sepsis escalation and antibiotics timing")
	c1.Metadata.ChunkIndex = 0
	c1.Metadata.TotalChunks = 2
	c1.Metadata.IndexedAt = now
	c2 := testChunk("persist2", "tenant-a", "protocols/sepsis.md", "sepsis fluid resuscitation targets")
	c2.Metadata.ChunkIndex = 1
	c2.Metadata.TotalChunks = 2
	c2.Metadata.IndexedAt = now

	if err := store.AddChunks(ctx, []Chunk{c1, c2}); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	tmpDir, err := os.MkdirTemp("", "chromem-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := store.Persist(ctx, tmpDir); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	store2, err := NewChromemStore(embedder)
	if err != nil {
		t.Fatalf("NewChromemStore for load: %v", err)
	}
	if err := store2.Load(ctx, tmpDir); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if count := store2.Count(); count != 2 {
		t.Errorf("Count after load: got %d, want 2", count)
	}

	results, err := store2.Search(ctx, "sepsis antibiotics", 2, Filter{TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Search after load: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search after load returned %d results, want 2", len(results))
	}

	for _, r := range results {
		md := r.Chunk.Metadata
		if md.SourcePath != "protocols/sepsis.md" {
			t.Errorf("source path after load: got %s", md.SourcePath)
		}
		if md.TotalChunks != 2 {
			t.Errorf("total chunks after load: got %d, want 2", md.TotalChunks)
		}
		if !md.IndexedAt.Equal(now) {
			t.Errorf("indexed at after load: got %v, want %v", md.IndexedAt, now)
		}
	}
}
