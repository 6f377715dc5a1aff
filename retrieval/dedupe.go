package retrieval

import (
	"context"

	"github.com/sheetvec/sheetvec"
)

// Deduper suppresses near-duplicate results from a ranked list via
// rectangle-overlap suppression.
type Deduper interface {
	Dedupe(ctx context.Context, results []sheetvec.SearchResult) ([]sheetvec.SearchResult, error)
}

// DeduperFunc adapts a plain function to the Deduper interface.
type DeduperFunc func(ctx context.Context, results []sheetvec.SearchResult) ([]sheetvec.SearchResult, error)

func (f DeduperFunc) Dedupe(ctx context.Context, results []sheetvec.SearchResult) ([]sheetvec.SearchResult, error) {
	return f(ctx, results)
}

// RectOverlapDeduper drops a result whose rectangle is substantially
// covered by an already-kept result sharing the same workbook and
// sheet. Results are scanned in the order given, so callers should
// dedupe after reranking.
type RectOverlapDeduper struct {
	// OverlapRatio is the fraction of the smaller rectangle's area that
	// must be covered by the intersection for a result to be dropped.
	OverlapRatio float64
}

// NewRectOverlapDeduper returns a deduper using the default overlap
// threshold of 0.6.
func NewRectOverlapDeduper() *RectOverlapDeduper {
	return &RectOverlapDeduper{OverlapRatio: 0.6}
}

func (d *RectOverlapDeduper) Dedupe(ctx context.Context, results []sheetvec.SearchResult) ([]sheetvec.SearchResult, error) {
	if len(results) == 0 {
		return results, nil
	}
	ratio := d.OverlapRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	kept := make([]sheetvec.SearchResult, 0, len(results))
	for _, candidate := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		covered := false
		for _, keptResult := range kept {
			if coveredBy(candidate, keptResult, ratio) {
				covered = true
				break
			}
		}
		if !covered {
			kept = append(kept, candidate)
		}
	}
	return kept, nil
}

// coveredBy reports whether candidate overlaps by at the configured
// ratio with already-kept, restricted to matching workbook and sheet.
func coveredBy(candidate, alreadyKept sheetvec.SearchResult, ratio float64) bool {
	if candidate.Metadata.WorkbookID != alreadyKept.Metadata.WorkbookID {
		return false
	}
	if candidate.Metadata.SheetName != alreadyKept.Metadata.SheetName {
		return false
	}
	a, b := candidate.Metadata.Rect, alreadyKept.Metadata.Rect
	if a == nil || b == nil {
		return false
	}

	interArea := rectIntersectionArea(*a, *b)
	if interArea <= 0 {
		return false
	}
	smaller := rectArea(*a)
	if bArea := rectArea(*b); bArea < smaller {
		smaller = bArea
	}
	if smaller <= 0 {
		return false
	}
	return float64(interArea)/float64(smaller) >= ratio
}

func rectArea(r sheetvec.Rect) int {
	width := r.C1 - r.C0 + 1
	height := r.R1 - r.R0 + 1
	if width <= 0 || height <= 0 {
		return 0
	}
	return width * height
}

func rectIntersectionArea(a, b sheetvec.Rect) int {
	r0 := max(a.R0, b.R0)
	c0 := max(a.C0, b.C0)
	r1 := min(a.R1, b.R1)
	c1 := min(a.C1, b.C1)
	if r1 < r0 || c1 < c0 {
		return 0
	}
	return (r1 - r0 + 1) * (c1 - c0 + 1)
}
