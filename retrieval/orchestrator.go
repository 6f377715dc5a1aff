package retrieval

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sheetvec/sheetvec"
)

const defaultTopK = 8
const oversampleFactor = 4

// SearchOptions configures SearchWorkbookRAG.
type SearchOptions struct {
	// TopK is the number of results returned; 0 means 8, and a negative
	// value returns no results.
	TopK int
	// Rerank runs the configured Reranker over the candidate set before
	// slicing. DefaultSearchOptions sets it to true; the zero value is
	// false.
	Rerank bool
	// Dedupe runs the configured Deduper over the (possibly reranked)
	// candidate set before slicing. DefaultSearchOptions sets it to true;
	// the zero value is false.
	Dedupe bool
}

// DefaultSearchOptions returns {TopK: 8, Rerank: true, Dedupe: true}.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{TopK: defaultTopK, Rerank: true, Dedupe: true}
}

// Orchestrator wires an Embedder, a Store, a Reranker, and a Deduper
// into SearchWorkbookRAG.
type Orchestrator struct {
	Store    sheetvec.Store
	Embedder Embedder
	Reranker Reranker
	Deduper  Deduper
}

// NewOrchestrator builds an Orchestrator with the heuristic reranker
// and rectangle-overlap deduper as defaults.
func NewOrchestrator(store sheetvec.Store, embedder Embedder) *Orchestrator {
	return &Orchestrator{
		Store:    store,
		Embedder: embedder,
		Reranker: NewHeuristicReranker(DefaultRerankOptions()),
		Deduper:  NewRectOverlapDeduper(),
	}
}

// SearchWorkbookRAG embeds queryText, queries the store scoped to
// workbookID, optionally reranks and dedupes, and returns at most
// opts.TopK results.
func (o *Orchestrator) SearchWorkbookRAG(ctx context.Context, queryText string, workbookID string, opts SearchOptions) ([]sheetvec.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(queryText)
	if trimmed == "" {
		return []sheetvec.SearchResult{}, nil
	}

	topK := opts.TopK
	if topK == 0 {
		topK = defaultTopK
	}
	if topK <= 0 {
		return []sheetvec.SearchResult{}, nil
	}

	if workbookID == "" {
		return nil, fmt.Errorf("%w: workbookId is required", sheetvec.ErrInvalidArgument)
	}

	queryK := topK
	if opts.Rerank || opts.Dedupe {
		queryK = topK * oversampleFactor
	}

	vectors, err := o.Embedder.EmbedTexts(ctx, []string{trimmed})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for 1 text", sheetvec.ErrInvalidArgument, len(vectors))
	}
	queryVector := vectors[0]
	if !allFinite(queryVector) {
		return nil, fmt.Errorf("%w: embedder returned non-finite vector components", sheetvec.ErrInvalidArgument)
	}
	if storeDim := o.Store.Dimension(); storeDim != len(queryVector) {
		return nil, fmt.Errorf("%w: embedder returned vector of length %d, store dimension is %d", sheetvec.ErrDimensionMismatch, len(queryVector), storeDim)
	}

	results, err := o.Store.Query(ctx, queryVector, queryK, sheetvec.QueryOptions{WorkbookID: workbookID})
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []sheetvec.SearchResult{}
	}

	filtered := make([]sheetvec.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Metadata.WorkbookID != "" && r.Metadata.WorkbookID != workbookID {
			continue
		}
		filtered = append(filtered, r)
	}
	results = filtered

	if opts.Rerank && o.Reranker != nil {
		results, err = o.Reranker.Rerank(ctx, trimmed, results)
		if err != nil {
			return nil, err
		}
	}
	if opts.Dedupe && o.Deduper != nil {
		results, err = o.Deduper.Dedupe(ctx, results)
		if err != nil {
			return nil, err
		}
	}

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func allFinite(v []float32) bool {
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return false
		}
	}
	return true
}
