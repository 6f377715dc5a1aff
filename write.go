package sheetvec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sheetvec/sheetvec/internal/codec"
)

const upsertSQL = `
INSERT INTO vectors(id, workbook_id, vector, sheet_name, kind, title, r0, c0, r1, c1, content_hash, metadata_hash, token_count, text, metadata_json)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
	workbook_id = excluded.workbook_id,
	vector = excluded.vector,
	sheet_name = excluded.sheet_name,
	kind = excluded.kind,
	title = excluded.title,
	r0 = excluded.r0, c0 = excluded.c0, r1 = excluded.r1, c1 = excluded.c1,
	content_hash = excluded.content_hash,
	metadata_hash = excluded.metadata_hash,
	token_count = excluded.token_count,
	text = excluded.text,
	metadata_json = excluded.metadata_json
`

const updateMetadataSQL = `
UPDATE vectors SET
	workbook_id = ?,
	sheet_name = ?,
	kind = ?,
	title = ?,
	r0 = ?, c0 = ?, r1 = ?, c1 = ?,
	content_hash = ?,
	metadata_hash = ?,
	token_count = ?,
	text = ?,
	metadata_json = ?
WHERE id = ?
`

// withTx runs fn inside a transaction guarded by the store's write
// mutex, committing on success and rolling back on any error (including
// a closed store).
func (s *dbStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type preparedUpsert struct {
	id  string
	blob []byte
	row vectorRow
}

func prepareUpsertRows(records []Record, dimension int) ([]preparedUpsert, error) {
	out := make([]preparedUpsert, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: id is required", ErrInvalidArgument)
		}
		if len(r.Vector) != dimension {
			return nil, &DimensionMismatchError{ID: r.ID, RequestedDimension: dimension, ActualDimension: len(r.Vector)}
		}
		if !codec.AllFinite(r.Vector) {
			return nil, fmt.Errorf("%w: id=%q vector has non-finite components", ErrInvalidArgument, r.ID)
		}
		row, err := toVectorRow(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: id=%q: %v", ErrInvalidMetadata, r.ID, err)
		}
		normalized := codec.Normalize(r.Vector)
		out = append(out, preparedUpsert{id: r.ID, blob: codec.Encode(normalized), row: row})
	}
	return out, nil
}

// Upsert validates, L2-normalizes, and writes records atomically: either
// every record lands or none does.
func (s *dbStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	prepared, err := prepareUpsertRows(records, s.dimension)
	if err != nil {
		return wrapError("upsert", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range prepared {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, p.id, p.row.workbookID, p.blob, p.row.sheetName, p.row.kind, p.row.title,
				p.row.r0, p.row.c0, p.row.r1, p.row.c1, p.row.contentHash, p.row.metadataHash, p.row.tokenCount, p.row.text, p.row.metadataJSON); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapError("upsert", err)
	}
	s.markDirtyAndMaybePersist(ctx)
	return nil
}

// deleteChunkSize bounds how many ids go into one IN (...) clause,
// keeping well clear of SQLite's bound-parameter limit.
const deleteChunkSize = 500

// Delete removes records by id. Unknown ids are silently ignored.
func (s *dbStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if id == "" {
			return wrapError("delete", fmt.Errorf("%w: empty id", ErrInvalidArgument))
		}
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, chunk := range chunkStrings(ids, deleteChunkSize) {
			if err := ctx.Err(); err != nil {
				return err
			}
			query, args := inClauseQuery("DELETE FROM vectors WHERE id IN (%s)", chunk)
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapError("delete", err)
	}
	s.markDirtyAndMaybePersist(ctx)
	return nil
}

// UpdateMetadata overwrites metadata (not the vector) for each named id.
// Unknown ids are silently ignored.
func (s *dbStore) UpdateMetadata(ctx context.Context, updates []MetadataUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	type prepared struct {
		id  string
		row vectorRow
	}
	prep := make([]prepared, 0, len(updates))
	for _, u := range updates {
		if u.ID == "" {
			return wrapError("updateMetadata", fmt.Errorf("%w: id is required", ErrInvalidArgument))
		}
		row, err := toVectorRow(u.Metadata)
		if err != nil {
			return wrapError("updateMetadata", fmt.Errorf("%w: id=%q: %v", ErrInvalidMetadata, u.ID, err))
		}
		prep = append(prep, prepared{id: u.ID, row: row})
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, updateMetadataSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range prep {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, p.row.workbookID, p.row.sheetName, p.row.kind, p.row.title,
				p.row.r0, p.row.c0, p.row.r1, p.row.c1, p.row.contentHash, p.row.metadataHash, p.row.tokenCount, p.row.text, p.row.metadataJSON, p.id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapError("updateMetadata", err)
	}
	s.markDirtyAndMaybePersist(ctx)
	return nil
}

// DeleteWorkbook removes every record scoped to workbookID. If nothing
// matches, it returns (0, nil) without marking the store dirty.
func (s *dbStore) DeleteWorkbook(ctx context.Context, workbookID string) (int, error) {
	if workbookID == "" {
		return 0, wrapError("deleteWorkbook", fmt.Errorf("%w: workbookId is required", ErrInvalidArgument))
	}
	var count int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors WHERE workbook_id = ?`, workbookID).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE workbook_id = ?`, workbookID)
		return err
	})
	if err != nil {
		return 0, wrapError("deleteWorkbook", err)
	}
	if count > 0 {
		s.markDirtyAndMaybePersist(ctx)
	}
	return count, nil
}

// Clear removes every record in the store.
func (s *dbStore) Clear(ctx context.Context) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM vectors`)
		return err
	})
	if err != nil {
		return wrapError("clear", err)
	}
	s.markDirtyAndMaybePersist(ctx)
	return nil
}

// Compact runs SQLite's VACUUM to reclaim space freed by prior deletes,
// then unconditionally enqueues a fresh persist regardless of AutoSave.
// It waits for any already-queued persist to finish first, so VACUUM
// never runs concurrently with an export reading the same file.
func (s *dbStore) Compact(ctx context.Context) error {
	s.waitPersist()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return wrapError("compact", ErrStoreClosed)
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	if err != nil {
		s.mu.Unlock()
		return wrapError("compact", err)
	}
	s.dirty = true
	s.mu.Unlock()

	s.logger.Info("store compacted")
	s.enqueuePersist(ctx)
	return nil
}

func chunkStrings(items []string, size int) [][]string {
	var out [][]string
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

func inClauseQuery(template string, values []string) (string, []any) {
	placeholders := strings.TrimRight(strings.Repeat("?,", len(values)), ",")
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return fmt.Sprintf(template, placeholders), args
}
