package retrieval

import (
	"context"
	"testing"

	"github.com/sheetvec/sheetvec"
)

type fakeEmbedder struct {
	vector    []float32
	dimension int
	hasDim    bool
	err       error
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() (int, bool) { return f.dimension, f.hasDim }

type fakeStore struct {
	sheetvec.Store
	dimension int
	results   []sheetvec.SearchResult
	lastK     int
	lastOpts  sheetvec.QueryOptions
}

func (f *fakeStore) Dimension() int { return f.dimension }

func (f *fakeStore) Query(ctx context.Context, vector []float32, k int, opts sheetvec.QueryOptions) ([]sheetvec.SearchResult, error) {
	f.lastK = k
	f.lastOpts = opts
	return f.results, nil
}

func TestSearchWorkbookRAGHappyPath(t *testing.T) {
	store := &fakeStore{
		dimension: 2,
		results: []sheetvec.SearchResult{
			{ID: "a", Score: 0.9, Metadata: sheetvec.Metadata{WorkbookID: "wb1"}},
			{ID: "b", Score: 0.8, Metadata: sheetvec.Metadata{WorkbookID: "wb1"}},
		},
	}
	embedder := &fakeEmbedder{vector: []float32{1, 0}, dimension: 2, hasDim: true}
	orch := NewOrchestrator(store, embedder)

	results, err := orch.SearchWorkbookRAG(context.Background(), "revenue", "wb1", DefaultSearchOptions())
	if err != nil {
		t.Fatalf("SearchWorkbookRAG: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if store.lastOpts.WorkbookID != "wb1" {
		t.Fatalf("Query called with workbookId=%q, want wb1", store.lastOpts.WorkbookID)
	}
}

func TestSearchWorkbookRAGOversamplesWhenRerankOrDedupe(t *testing.T) {
	store := &fakeStore{dimension: 2}
	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	orch := NewOrchestrator(store, embedder)

	opts := SearchOptions{TopK: 5, Rerank: true, Dedupe: false}
	if _, err := orch.SearchWorkbookRAG(context.Background(), "q", "wb1", opts); err != nil {
		t.Fatalf("SearchWorkbookRAG: %v", err)
	}
	if store.lastK != 5*oversampleFactor {
		t.Fatalf("queryK = %d, want %d (topK * oversampleFactor)", store.lastK, 5*oversampleFactor)
	}

	opts2 := SearchOptions{TopK: 5, Rerank: false, Dedupe: false}
	if _, err := orch.SearchWorkbookRAG(context.Background(), "q", "wb1", opts2); err != nil {
		t.Fatalf("SearchWorkbookRAG: %v", err)
	}
	if store.lastK != 5 {
		t.Fatalf("queryK = %d, want 5 (no oversampling without rerank/dedupe)", store.lastK)
	}
}

func TestSearchWorkbookRAGFiltersMismatchedWorkbook(t *testing.T) {
	store := &fakeStore{
		dimension: 2,
		results: []sheetvec.SearchResult{
			{ID: "a", Score: 0.9, Metadata: sheetvec.Metadata{WorkbookID: "wb1"}},
			{ID: "leaked", Score: 0.95, Metadata: sheetvec.Metadata{WorkbookID: "wb2"}},
		},
	}
	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	orch := NewOrchestrator(store, embedder)
	orch.Reranker = nil
	orch.Deduper = nil

	results, err := orch.SearchWorkbookRAG(context.Background(), "q", "wb1", SearchOptions{TopK: 5})
	if err != nil {
		t.Fatalf("SearchWorkbookRAG: %v", err)
	}
	for _, r := range results {
		if r.Metadata.WorkbookID != "wb1" {
			t.Fatalf("result %+v leaked from another workbook", r)
		}
	}
}

func TestSearchWorkbookRAGEmptyQueryText(t *testing.T) {
	store := &fakeStore{dimension: 2}
	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	orch := NewOrchestrator(store, embedder)

	results, err := orch.SearchWorkbookRAG(context.Background(), "   ", "wb1", DefaultSearchOptions())
	if err != nil {
		t.Fatalf("SearchWorkbookRAG: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %v, want empty for blank query text", results)
	}
}

func TestSearchWorkbookRAGMissingWorkbookID(t *testing.T) {
	store := &fakeStore{dimension: 2}
	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	orch := NewOrchestrator(store, embedder)

	_, err := orch.SearchWorkbookRAG(context.Background(), "q", "", DefaultSearchOptions())
	if err == nil {
		t.Fatal("SearchWorkbookRAG with empty workbookId succeeded, want error")
	}
}

func TestSearchWorkbookRAGDimensionMismatch(t *testing.T) {
	store := &fakeStore{dimension: 3}
	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	orch := NewOrchestrator(store, embedder)

	_, err := orch.SearchWorkbookRAG(context.Background(), "q", "wb1", DefaultSearchOptions())
	if err == nil {
		t.Fatal("SearchWorkbookRAG with mismatched embedder output succeeded, want error")
	}
}

func TestSearchWorkbookRAGSlicesToTopK(t *testing.T) {
	store := &fakeStore{
		dimension: 2,
		results: []sheetvec.SearchResult{
			{ID: "a", Score: 0.9, Metadata: sheetvec.Metadata{WorkbookID: "wb1"}},
			{ID: "b", Score: 0.8, Metadata: sheetvec.Metadata{WorkbookID: "wb1"}},
			{ID: "c", Score: 0.7, Metadata: sheetvec.Metadata{WorkbookID: "wb1"}},
		},
	}
	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	orch := NewOrchestrator(store, embedder)
	orch.Reranker = nil
	orch.Deduper = nil

	results, err := orch.SearchWorkbookRAG(context.Background(), "q", "wb1", SearchOptions{TopK: 2})
	if err != nil {
		t.Fatalf("SearchWorkbookRAG: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2 (sliced to topK)", len(results))
	}
}
