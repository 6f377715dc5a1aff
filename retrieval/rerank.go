package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/sheetvec/sheetvec"
)

// Reranker applies additive score adjustments to a result set and
// returns it re-sorted.
type Reranker interface {
	Rerank(ctx context.Context, queryText string, results []sheetvec.SearchResult) ([]sheetvec.SearchResult, error)
}

// RerankerFunc adapts a plain function to the Reranker interface.
type RerankerFunc func(ctx context.Context, queryText string, results []sheetvec.SearchResult) ([]sheetvec.SearchResult, error)

func (f RerankerFunc) Rerank(ctx context.Context, queryText string, results []sheetvec.SearchResult) ([]sheetvec.SearchResult, error) {
	return f(ctx, queryText, results)
}

// RerankOptions tunes the heuristic reranker's additive adjustments.
type RerankOptions struct {
	// KindBoost adds to a result's score when its metadata kind matches
	// a key in this map.
	KindBoost map[string]float64
	// TitleTokenBoost is added once per query token found
	// case-insensitively in metadata.Title.
	TitleTokenBoost float64
	// SheetTokenBoost is added once per query token found
	// case-insensitively in metadata.SheetName.
	SheetTokenBoost float64
	// TokenPenaltyThreshold is the tokenCount above which the penalty
	// below kicks in.
	TokenPenaltyThreshold int
	// TokenPenaltyScale multiplies tokens-over-threshold into a score
	// deduction.
	TokenPenaltyScale float64
	// TokenPenaltyMax caps the deduction.
	TokenPenaltyMax float64
}

// DefaultRerankOptions returns the heuristic's default tuning.
func DefaultRerankOptions() RerankOptions {
	return RerankOptions{
		KindBoost:             map[string]float64{},
		TitleTokenBoost:       0.05,
		SheetTokenBoost:       0.03,
		TokenPenaltyThreshold: 512,
		TokenPenaltyScale:     0.0005,
		TokenPenaltyMax:       0.2,
	}
}

// HeuristicReranker implements the adjustment rules of the retrieval
// orchestrator's default reranking pass: kind boosts, title/sheet token
// matches, and a token-count penalty for oversized regions.
type HeuristicReranker struct {
	Options RerankOptions
}

// NewHeuristicReranker builds a reranker with opts as its tuning.
func NewHeuristicReranker(opts RerankOptions) *HeuristicReranker {
	return &HeuristicReranker{Options: opts}
}

type adjustedResult struct {
	result        sheetvec.SearchResult
	adjustedScore float64
	originalIndex int
}

// Rerank adds the configured score adjustments to each result and
// re-sorts by adjusted score descending, breaking ties first by
// original order then by id ascending.
func (r *HeuristicReranker) Rerank(ctx context.Context, queryText string, results []sheetvec.SearchResult) ([]sheetvec.SearchResult, error) {
	if len(results) == 0 {
		return results, nil
	}
	tokens := queryTokens(queryText)

	adjusted := make([]adjustedResult, len(results))
	for i, res := range results {
		score := res.Score
		if boost, ok := r.Options.KindBoost[res.Metadata.Kind]; ok {
			score += boost
		}
		score += float64(countTokenMatches(tokens, res.Metadata.Title)) * r.Options.TitleTokenBoost
		score += float64(countTokenMatches(tokens, res.Metadata.SheetName)) * r.Options.SheetTokenBoost

		if res.Metadata.TokenCount > r.Options.TokenPenaltyThreshold {
			over := float64(res.Metadata.TokenCount - r.Options.TokenPenaltyThreshold)
			penalty := over * r.Options.TokenPenaltyScale
			if penalty > r.Options.TokenPenaltyMax {
				penalty = r.Options.TokenPenaltyMax
			}
			score -= penalty
		}

		adjusted[i] = adjustedResult{result: res, adjustedScore: score, originalIndex: i}
	}

	sort.SliceStable(adjusted, func(i, j int) bool {
		if adjusted[i].adjustedScore != adjusted[j].adjustedScore {
			return adjusted[i].adjustedScore > adjusted[j].adjustedScore
		}
		if adjusted[i].originalIndex != adjusted[j].originalIndex {
			return adjusted[i].originalIndex < adjusted[j].originalIndex
		}
		return adjusted[i].result.ID < adjusted[j].result.ID
	})

	out := make([]sheetvec.SearchResult, len(adjusted))
	for i, a := range adjusted {
		out[i] = sheetvec.SearchResult{ID: a.result.ID, Score: a.adjustedScore, Metadata: a.result.Metadata}
	}
	return out, nil
}

func queryTokens(queryText string) []string {
	fields := strings.Fields(queryText)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, strings.ToLower(f))
	}
	return tokens
}

func countTokenMatches(tokens []string, field string) int {
	if field == "" {
		return 0
	}
	lower := strings.ToLower(field)
	count := 0
	for _, tok := range tokens {
		if tok != "" && strings.Contains(lower, tok) {
			count++
		}
	}
	return count
}
