package sheetvec

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sheetvec/sheetvec/internal/codec"
)

const selectRecordColumns = `id, workbook_id, vector, sheet_name, kind, title, r0, c0, r1, c1, content_hash, metadata_hash, token_count, text, metadata_json`

// Get returns the record stored under id, or ErrNotFound.
func (s *dbStore) Get(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, wrapError("get", fmt.Errorf("%w: id is required", ErrInvalidArgument))
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, wrapError("get", ErrStoreClosed)
	}

	var gotID string
	var blob []byte
	var row vectorRow
	err := s.db.QueryRowContext(ctx, "SELECT "+selectRecordColumns+" FROM vectors WHERE id = ?", id).
		Scan(&gotID, &row.workbookID, &blob, &row.sheetName, &row.kind, &row.title,
			&row.r0, &row.c0, &row.r1, &row.c1, &row.contentHash, &row.metadataHash, &row.tokenCount, &row.text, &row.metadataJSON)
	if err == sql.ErrNoRows {
		return nil, wrapError("get", ErrNotFound)
	}
	if err != nil {
		return nil, wrapError("get", err)
	}

	vector, err := codec.Decode(blob)
	if err != nil {
		return nil, wrapError("get", &InvalidBlobLengthError{ID: id, Length: len(blob)})
	}
	if len(vector) != s.dimension {
		return nil, wrapError("get", &DimensionMismatchError{ID: id, RequestedDimension: s.dimension, ActualDimension: len(vector)})
	}
	md, err := row.toMetadata()
	if err != nil {
		return nil, wrapError("get", err)
	}
	return &Record{ID: gotID, Vector: vector, Metadata: md}, nil
}

// List returns every record matching opts, ordered by id.
func (s *dbStore) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, wrapError("list", ErrStoreClosed)
	}

	query := "SELECT " + selectRecordColumns + " FROM vectors"
	var args []any
	if opts.WorkbookID != "" {
		query += " WHERE workbook_id = ?"
		args = append(args, opts.WorkbookID)
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("list", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		if err := checkCancelled(ctx); err != nil {
			return nil, wrapError("list", err)
		}
		var id string
		var blob []byte
		var row vectorRow
		if err := rows.Scan(&id, &row.workbookID, &blob, &row.sheetName, &row.kind, &row.title,
			&row.r0, &row.c0, &row.r1, &row.c1, &row.contentHash, &row.metadataHash, &row.tokenCount, &row.text, &row.metadataJSON); err != nil {
			return nil, wrapError("list", err)
		}
		md, err := row.toMetadata()
		if err != nil {
			return nil, wrapError("list", err)
		}
		if opts.Filter != nil && !opts.Filter(md) {
			continue
		}
		rec := Record{ID: id, Metadata: md}
		if !opts.SkipVector {
			v, err := codec.Decode(blob)
			if err != nil {
				return nil, wrapError("list", &InvalidBlobLengthError{ID: id, Length: len(blob)})
			}
			if len(v) != s.dimension {
				return nil, wrapError("list", &DimensionMismatchError{ID: id, RequestedDimension: s.dimension, ActualDimension: len(v)})
			}
			rec.Vector = v
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("list", err)
	}
	return out, nil
}

// ListContentHashes returns the incremental-indexing hash catalog for
// opts: id, contentHash, metadataHash, without touching the vector or text
// payload columns. The scan reads id, the two hash columns and the
// structured metadata columns; since sheet_name, kind, title, the rect
// columns and token_count are not part of the covering index, it is not
// answered from that index alone, and stored vector lengths are not
// checked here. opts.Filter only ever sees structured columns (WorkbookID,
// SheetName, Kind, Title, Rect, ContentHash, MetadataHash, TokenCount);
// Extra and Text are always empty here, since metadata_json and text are
// never read.
func (s *dbStore) ListContentHashes(ctx context.Context, opts ListOptions) ([]HashEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, wrapError("listContentHashes", ErrStoreClosed)
	}

	query := "SELECT id, content_hash, metadata_hash, workbook_id, sheet_name, kind, title, r0, c0, r1, c1, token_count FROM vectors"
	var args []any
	if opts.WorkbookID != "" {
		query += " WHERE workbook_id = ?"
		args = append(args, opts.WorkbookID)
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("listContentHashes", err)
	}
	defer rows.Close()

	var out []HashEntry
	for rows.Next() {
		if err := checkCancelled(ctx); err != nil {
			return nil, wrapError("listContentHashes", err)
		}
		var id string
		var row vectorRow
		if err := rows.Scan(&id, &row.contentHash, &row.metadataHash, &row.workbookID, &row.sheetName, &row.kind, &row.title,
			&row.r0, &row.c0, &row.r1, &row.c1, &row.tokenCount); err != nil {
			return nil, wrapError("listContentHashes", err)
		}
		if opts.Filter != nil {
			md, err := row.toMetadata()
			if err != nil {
				return nil, wrapError("listContentHashes", err)
			}
			if !opts.Filter(md) {
				continue
			}
		}
		out = append(out, HashEntry{ID: id, ContentHash: row.contentHash.String, MetadataHash: row.metadataHash.String})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("listContentHashes", err)
	}
	return out, nil
}
