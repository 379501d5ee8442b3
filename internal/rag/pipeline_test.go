package rag

import (
	"context"
	"math"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/lifelink/copilot/internal/db"
	"github.com/lifelink/copilot/internal/fault"
	"github.com/lifelink/copilot/internal/vectordb"
)

type stubEmbedder struct{ dims int }

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, s.dims)
		for j, ch := range text {
			vec[(int(ch)+j)%s.dims] += 1.0
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v * v)
		}
		norm = math.Sqrt(norm)
		if norm > 0 {
			for j := range vec {
				vec[j] = float32(float64(vec[j]) / norm)
			}
		}
		out[i] = vec
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return s.dims }
func (s *stubEmbedder) Name() string    { return "stub" }

// failingStore simulates an unavailable vector backend for degradation tests.
type failingStore struct {
	vectordb.VectorStore
}

func (f *failingStore) Search(context.Context, string, int, vectordb.Filter) ([]vectordb.SearchResult, error) {
	return nil, fault.New(fault.KindUnavailable, "vector backend down")
}

func newTestPipeline(t *testing.T, opts Options) (*Pipeline, vectordb.VectorStore) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store, err := vectordb.NewChromemStore(&stubEmbedder{dims: 64})
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	return NewPipeline(store, NewRegistry(database), zap.NewNop(), opts), store
}

func TestIngestValidatesMetadataBeforeChunking(t *testing.T) {
	p, store := newTestPipeline(t, Options{})
	ctx := context.Background()

	cases := []IngestRequest{
		{SourcePath: "a.md", DocType: "protocol", Content: "text"},
		{TenantID: "t1", DocType: "protocol", Content: "text"},
		{TenantID: "t1", SourcePath: "a.md", Content: "text"},
		{TenantID: "t1", SourcePath: "a.md", DocType: "protocol", Content: "   "},
	}
	for i, req := range cases {
		if _, err := p.Ingest(ctx, req); !fault.IsKind(err, fault.KindValidation) {
			t.Errorf("case %d: got %v, want validation error", i, err)
		}
	}
	if store.Count() != 0 {
		t.Errorf("invalid requests left %d chunks in the store", store.Count())
	}
}

func TestIngestAndRetrieve(t *testing.T) {
	p, store := newTestPipeline(t, Options{Threshold: 0.01})
	ctx := context.Background()

	res, err := p.Ingest(ctx, IngestRequest{
		TenantID:   "t1",
		SourcePath: "protocols/sepsis.md",
		DocType:    DocTypeProtocol,
		Content:    "Draw blood cultures before starting antibiotics. Reassess lactate after fluids.",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.ChunkCount == 0 {
		t.Fatal("Ingest produced no chunks")
	}
	if res.Replaced {
		t.Error("first ingest reported Replaced")
	}
	if store.Count() != res.ChunkCount {
		t.Errorf("store has %d chunks, result says %d", store.Count(), res.ChunkCount)
	}

	out, err := p.Retrieve(ctx, "t1", "blood cultures antibiotics", RetrieveOptions{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if out.Degraded {
		t.Error("healthy retrieval reported degraded")
	}
	if len(out.Passages) == 0 {
		t.Fatal("Retrieve returned no passages")
	}
	if out.Passages[0].SourcePath != "protocols/sepsis.md" {
		t.Errorf("passage source = %s", out.Passages[0].SourcePath)
	}
}

func TestReingestReplacesOldChunks(t *testing.T) {
	p, store := newTestPipeline(t, Options{ChunkSize: 40, Overlap: 5})
	ctx := context.Background()

	long := strings.Repeat("First version sentence. ", 10)
	if _, err := p.Ingest(ctx, IngestRequest{
		TenantID: "t1", SourcePath: "doc.md", DocType: DocTypeManual, Content: long,
	}); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}

	res, err := p.Ingest(ctx, IngestRequest{
		TenantID: "t1", SourcePath: "doc.md", DocType: DocTypeManual, Content: "Short second version.",
	})
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if !res.Replaced {
		t.Error("re-ingest did not report Replaced")
	}
	if store.Count() != res.ChunkCount {
		t.Errorf("stale chunks left behind: store=%d result=%d", store.Count(), res.ChunkCount)
	}

	docs, err := p.Documents(ctx, "t1")
	if err != nil {
		t.Fatalf("Documents: %v", err)
	}
	if len(docs) != 1 || docs[0].ChunkCount != res.ChunkCount {
		t.Errorf("registry out of sync: %+v", docs)
	}
}

func TestIngestMarkdownStripped(t *testing.T) {
	p, store := newTestPipeline(t, Options{})
	ctx := context.Background()

	if _, err := p.Ingest(ctx, IngestRequest{
		TenantID:   "t1",
		SourcePath: "guide.md",
		DocType:    DocTypeGuide,
		Content:    "# Escalation\n\nCall the **on-call** physician via [paging](https://example.com).",
		Markdown:   true,
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	chunks, err := store.ListBySource(ctx, "t1", "guide.md")
	if err != nil {
		t.Fatalf("ListBySource: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("no chunks stored")
	}
	text := chunks[0].Text
	if strings.Contains(text, "**") || strings.Contains(text, "# ") {
		t.Errorf("markdown markup survived stripping: %q", text)
	}
	if !strings.Contains(text, "on-call") {
		t.Errorf("prose lost during stripping: %q", text)
	}
}

func TestRetrieveThresholdDiscardsWeakMatches(t *testing.T) {
	p, _ := newTestPipeline(t, Options{Threshold: 0.999})
	ctx := context.Background()

	if _, err := p.Ingest(ctx, IngestRequest{
		TenantID: "t1", SourcePath: "a.md", DocType: DocTypeProtocol,
		Content: "Completely unrelated maintenance text about elevators.",
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	out, err := p.Retrieve(ctx, "t1", "pediatric dosage chart", RetrieveOptions{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(out.Passages) != 0 {
		t.Errorf("weak matches survived threshold: %+v", out.Passages)
	}
	if out.Degraded {
		t.Error("threshold filtering must not report degraded")
	}
}

func TestRetrieveDegradesOnStoreFailure(t *testing.T) {
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer database.Close()

	p := NewPipeline(&failingStore{}, NewRegistry(database), zap.NewNop(), Options{})

	out, err := p.Retrieve(context.Background(), "t1", "anything", RetrieveOptions{})
	if err != nil {
		t.Fatalf("Retrieve must degrade, got error: %v", err)
	}
	if !out.Degraded {
		t.Error("store failure did not set Degraded")
	}
	if len(out.Passages) != 0 {
		t.Errorf("degraded retrieval returned passages: %+v", out.Passages)
	}
}

func TestRetrieveRequiresTenant(t *testing.T) {
	p, _ := newTestPipeline(t, Options{})
	if _, err := p.Retrieve(context.Background(), "", "query", RetrieveOptions{}); !fault.IsKind(err, fault.KindValidation) {
		t.Fatalf("got %v, want validation error", err)
	}
}

func TestDeleteSource(t *testing.T) {
	p, store := newTestPipeline(t, Options{})
	ctx := context.Background()

	if _, err := p.Ingest(ctx, IngestRequest{
		TenantID: "t1", SourcePath: "a.md", DocType: DocTypePolicy, Content: "visitor policy text",
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if err := p.DeleteSource(ctx, "t1", "a.md"); err != nil {
		t.Fatalf("DeleteSource: %v", err)
	}
	if store.Count() != 0 {
		t.Errorf("chunks left after delete: %d", store.Count())
	}

	if err := p.DeleteSource(ctx, "t1", "a.md"); !fault.IsKind(err, fault.KindNotFound) {
		t.Errorf("second delete: got %v, want not found", err)
	}
}

func TestDeleteTenant(t *testing.T) {
	p, store := newTestPipeline(t, Options{})
	ctx := context.Background()

	for _, tenantID := range []string{"t1", "t2"} {
		if _, err := p.Ingest(ctx, IngestRequest{
			TenantID: tenantID, SourcePath: "a.md", DocType: DocTypePolicy, Content: "shared policy text",
		}); err != nil {
			t.Fatalf("Ingest %s: %v", tenantID, err)
		}
	}

	if err := p.DeleteTenant(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTenant: %v", err)
	}

	t1docs, err := p.Documents(ctx, "t1")
	if err != nil {
		t.Fatalf("Documents t1: %v", err)
	}
	if len(t1docs) != 0 {
		t.Errorf("t1 registry not emptied: %+v", t1docs)
	}
	t2docs, err := p.Documents(ctx, "t2")
	if err != nil {
		t.Fatalf("Documents t2: %v", err)
	}
	if len(t2docs) != 1 {
		t.Errorf("t2 registry affected by t1 delete: %+v", t2docs)
	}
	if store.Count() != 1 {
		t.Errorf("store count after tenant delete: %d, want 1", store.Count())
	}
}

func TestFormatContext(t *testing.T) {
	if got := FormatContext(&RetrievalResult{}); got != "" {
		t.Errorf("empty result formatted to %q", got)
	}

	out := FormatContext(&RetrievalResult{Passages: []Passage{
		{SourcePath: "protocols/sepsis.md", DocType: "protocol", Text: "lactate reassessment"},
	}})
	if !strings.Contains(out, "protocols/sepsis.md") || !strings.Contains(out, "lactate reassessment") {
		t.Errorf("formatted context missing content: %q", out)
	}
}

func TestReindexWorksWithAndWithoutPriorIndex(t *testing.T) {
	p, store := newTestPipeline(t, Options{})
	ctx := context.Background()

	// Never indexed: acts as a plain ingest.
	res, err := p.Reindex(ctx, IngestRequest{
		TenantID: "t1", SourcePath: "fresh.md", DocType: DocTypeGuide, Content: "Brand new document.",
	})
	if err != nil {
		t.Fatalf("Reindex fresh: %v", err)
	}
	if res.ChunkCount == 0 {
		t.Error("fresh reindex produced no chunks")
	}

	res, err = p.Reindex(ctx, IngestRequest{
		TenantID: "t1", SourcePath: "fresh.md", DocType: DocTypeGuide, Content: "Updated content.",
	})
	if err != nil {
		t.Fatalf("Reindex update: %v", err)
	}
	if store.Count() != res.ChunkCount {
		t.Errorf("stale chunks after reindex: store=%d result=%d", store.Count(), res.ChunkCount)
	}
}
