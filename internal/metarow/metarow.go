// Package metarow splits a record's free-form metadata extras from the
// structured column names the store reserves for itself, and encodes and
// decodes the remaining extras as JSON. It knows nothing about the store's own
// Metadata type; the store converts to and from plain Go values at its
// boundary, which keeps this package import-free of the root package.
package metarow

import "encoding/json"

// reservedKeys are the field names the store keeps as dedicated SQL
// columns. Extras carrying one of these keys are stripped before
// encoding, so a structured column is always authoritative over a
// same-named extra.
var reservedKeys = map[string]struct{}{
	"workbookId":   {},
	"sheetName":    {},
	"kind":         {},
	"title":        {},
	"rect":         {},
	"r0":           {},
	"c0":           {},
	"r1":           {},
	"c1":           {},
	"contentHash":  {},
	"metadataHash": {},
	"tokenCount":   {},
	"text":         {},
}

// StripReserved returns a copy of extra with every reserved key removed.
// A nil input yields a nil output.
func StripReserved(extra map[string]any) map[string]any {
	if extra == nil {
		return nil
	}
	out := make(map[string]any, len(extra))
	for k, v := range extra {
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		out[k] = v
	}
	return out
}

// EncodeExtra marshals extra to its on-disk JSON form. An empty or nil
// map encodes as "{}" so metadata_json is always valid, non-null JSON.
func EncodeExtra(extra map[string]any) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeExtra parses a metadata_json column value back into a map. An
// empty string decodes to an empty, non-nil map.
func DecodeExtra(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}
