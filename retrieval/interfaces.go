// Package retrieval implements the thin orchestration layer that sits
// on top of a sheetvec.Store: embed a query, run the similarity search,
// rerank, dedupe, and slice to the caller's requested width. Everything
// outside the store itself — the embedder, the reranker heuristics, the
// dedupe policy — is a pluggable collaborator reached through an
// interface: Embedder in this file, Reranker and Deduper beside their
// default implementations.
package retrieval

import "context"

// Embedder turns text into vectors. Implementations are expected to
// batch texts in a single round trip where the underlying model
// supports it.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension reports the embedder's output width when known ahead of
	// time, so callers can validate against a store's configured
	// dimension before issuing a query. The second return is false when
	// the embedder can't say in advance.
	Dimension() (int, bool)
}
