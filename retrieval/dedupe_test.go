package retrieval

import (
	"context"
	"testing"

	"github.com/sheetvec/sheetvec"
)

func TestRectOverlapDeduperDropsCoveredRect(t *testing.T) {
	d := NewRectOverlapDeduper()
	results := []sheetvec.SearchResult{
		{ID: "big", Score: 0.9, Metadata: sheetvec.Metadata{
			WorkbookID: "wb1", SheetName: "Sheet1", Rect: &sheetvec.Rect{R0: 0, C0: 0, R1: 9, C1: 9},
		}},
		{ID: "nested", Score: 0.8, Metadata: sheetvec.Metadata{
			WorkbookID: "wb1", SheetName: "Sheet1", Rect: &sheetvec.Rect{R0: 1, C0: 1, R1: 3, C1: 3},
		}},
	}
	out, err := d.Dedupe(context.Background(), results)
	if err != nil {
		t.Fatalf("Dedupe: %v", err)
	}
	if len(out) != 1 || out[0].ID != "big" {
		t.Fatalf("Dedupe result = %+v, want only [big]", out)
	}
}

func TestRectOverlapDeduperKeepsDifferentSheets(t *testing.T) {
	d := NewRectOverlapDeduper()
	rect := &sheetvec.Rect{R0: 0, C0: 0, R1: 9, C1: 9}
	results := []sheetvec.SearchResult{
		{ID: "a", Score: 0.9, Metadata: sheetvec.Metadata{WorkbookID: "wb1", SheetName: "Sheet1", Rect: rect}},
		{ID: "b", Score: 0.8, Metadata: sheetvec.Metadata{WorkbookID: "wb1", SheetName: "Sheet2", Rect: rect}},
	}
	out, err := d.Dedupe(context.Background(), results)
	if err != nil {
		t.Fatalf("Dedupe: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("Dedupe result = %+v, want both kept (different sheets)", out)
	}
}

func TestRectOverlapDeduperBelowThresholdKept(t *testing.T) {
	d := NewRectOverlapDeduper()
	results := []sheetvec.SearchResult{
		{ID: "a", Score: 0.9, Metadata: sheetvec.Metadata{
			WorkbookID: "wb1", SheetName: "Sheet1", Rect: &sheetvec.Rect{R0: 0, C0: 0, R1: 9, C1: 9},
		}},
		{ID: "b", Score: 0.8, Metadata: sheetvec.Metadata{
			WorkbookID: "wb1", SheetName: "Sheet1", Rect: &sheetvec.Rect{R0: 8, C0: 8, R1: 12, C1: 12},
		}},
	}
	out, err := d.Dedupe(context.Background(), results)
	if err != nil {
		t.Fatalf("Dedupe: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("Dedupe result = %+v, want both kept (overlap below ratio)", out)
	}
}

func TestRectOverlapDeduperMissingRectNeverDropped(t *testing.T) {
	d := NewRectOverlapDeduper()
	results := []sheetvec.SearchResult{
		{ID: "a", Score: 0.9, Metadata: sheetvec.Metadata{WorkbookID: "wb1", SheetName: "Sheet1"}},
		{ID: "b", Score: 0.8, Metadata: sheetvec.Metadata{WorkbookID: "wb1", SheetName: "Sheet1"}},
	}
	out, err := d.Dedupe(context.Background(), results)
	if err != nil {
		t.Fatalf("Dedupe: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("Dedupe result = %+v, want both kept (no rect to compare)", out)
	}
}
