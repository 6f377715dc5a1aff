package sheetvec

import "context"

// Rect is a rectangular cell range within a worksheet. A nil *Rect on
// Metadata means the record has no associated range (e.g. a whole-sheet
// summary chunk).
type Rect struct {
	R0 int `json:"r0"`
	C0 int `json:"c0"`
	R1 int `json:"r1"`
	C1 int `json:"c1"`
}

// Metadata is a record's structured fields plus a free-form Extra map.
// Structured fields are stored as dedicated SQL columns; Extra is
// serialized to JSON and merged back on read. An empty string/zero
// int/nil *Rect means the field is absent.
type Metadata struct {
	WorkbookID   string         `json:"workbookId,omitempty"`
	SheetName    string         `json:"sheetName,omitempty"`
	Kind         string         `json:"kind,omitempty"`
	Title        string         `json:"title,omitempty"`
	Rect         *Rect          `json:"rect,omitempty"`
	ContentHash  string         `json:"contentHash,omitempty"`
	MetadataHash string         `json:"metadataHash,omitempty"`
	TokenCount   int            `json:"tokenCount,omitempty"`
	Text         string         `json:"text,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Flatten returns a single map combining the structured fields (using
// their spec-level JSON key names) with Extra, structured fields taking
// precedence. It is a convenience for callers that want one flat view
// (e.g. for their own JSON output or a caller-supplied Filter closure) and
// is not used anywhere inside this module.
func (m Metadata) Flatten() map[string]any {
	out := make(map[string]any, len(m.Extra)+8)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.WorkbookID != "" {
		out["workbookId"] = m.WorkbookID
	}
	if m.SheetName != "" {
		out["sheetName"] = m.SheetName
	}
	if m.Kind != "" {
		out["kind"] = m.Kind
	}
	if m.Title != "" {
		out["title"] = m.Title
	}
	if m.Rect != nil {
		out["rect"] = *m.Rect
	}
	if m.ContentHash != "" {
		out["contentHash"] = m.ContentHash
	}
	if m.MetadataHash != "" {
		out["metadataHash"] = m.MetadataHash
	}
	if m.TokenCount != 0 {
		out["tokenCount"] = m.TokenCount
	}
	if m.Text != "" {
		out["text"] = m.Text
	}
	return out
}

// Record is a vector plus its metadata, keyed by a caller-assigned id.
type Record struct {
	ID       string    `json:"id"`
	Vector   []float32 `json:"vector"`
	Metadata Metadata  `json:"metadata"`
}

// MetadataUpdate names the id whose metadata should be overwritten; the
// vector is left untouched.
type MetadataUpdate struct {
	ID       string   `json:"id"`
	Metadata Metadata `json:"metadata"`
}

// SearchResult is one ranked hit from Query. It never carries the
// vector itself, only the score and metadata needed to act on the hit.
type SearchResult struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// HashEntry is one row of the incremental-indexing hash catalog returned
// by ListContentHashes.
type HashEntry struct {
	ID           string `json:"id"`
	ContentHash  string `json:"contentHash,omitempty"`
	MetadataHash string `json:"metadataHash,omitempty"`
}

// ListOptions scopes List and ListContentHashes.
type ListOptions struct {
	// WorkbookID restricts results to one workbook; empty means all.
	WorkbookID string
	// SkipVector omits decoding/returning the vector for each Record,
	// cheaper when only metadata is needed. Has no effect on
	// ListContentHashes, which never returns vectors.
	SkipVector bool
	// Filter, when non-nil, is evaluated against each candidate's
	// Metadata; only matches are returned.
	Filter func(Metadata) bool
}

// QueryOptions scopes Query.
type QueryOptions struct {
	// WorkbookID restricts candidates to one workbook; empty means all.
	WorkbookID string
	// Filter, when non-nil, is evaluated against each candidate's
	// Metadata before it counts toward k.
	Filter func(Metadata) bool
}

// StoreStats summarizes the store's current contents.
type StoreStats struct {
	Count     int64 `json:"count"`
	Dimension int   `json:"dimension"`
	SizeBytes int64 `json:"sizeBytes"`
}

// Store is the full public surface of an open vector store.
type Store interface {
	Dimension() int
	Upsert(ctx context.Context, records []Record) error
	Delete(ctx context.Context, ids []string) error
	UpdateMetadata(ctx context.Context, updates []MetadataUpdate) error
	DeleteWorkbook(ctx context.Context, workbookID string) (int, error)
	Clear(ctx context.Context) error
	Compact(ctx context.Context) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, opts ListOptions) ([]Record, error)
	ListContentHashes(ctx context.Context, opts ListOptions) ([]HashEntry, error)
	ListWorkbooks(ctx context.Context) ([]string, error)
	Query(ctx context.Context, vector []float32, k int, opts QueryOptions) ([]SearchResult, error)
	Batch(ctx context.Context, fn func(ctx context.Context) error) error
	Stats(ctx context.Context) (StoreStats, error)
	Close(ctx context.Context) error
}
