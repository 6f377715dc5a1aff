package sheetvec

import (
	"context"
	"fmt"

	"github.com/sheetvec/sheetvec/internal/codec"
)

// oversampleFactorWithFilter and oversampleMinLimitWithFilter implement
// an oversample-then-filter strategy: a Filter can reject candidates after
// they're scored, so the engine is asked for more than k rows whenever a
// Filter is present, then the loop below doubles the ask until either k
// survivors are found or the engine has nothing left to give.
const (
	oversampleFactorWithFilter   = 4
	oversampleMinLimitWithFilter = 64
)

type scoredRow struct {
	id       string
	score    float64
	metadata Metadata
}

// Query returns up to k nearest neighbors to vector by the registered
// similarity function, highest score first (ties broken by id
// ascending), optionally scoped to a workbook and/or filtered.
func (s *dbStore) Query(ctx context.Context, vector []float32, k int, opts QueryOptions) ([]SearchResult, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, wrapError("query", err)
	}
	if k <= 0 {
		return []SearchResult{}, nil
	}
	if len(vector) != s.dimension {
		return nil, wrapError("query", &DimensionMismatchError{RequestedDimension: s.dimension, ActualDimension: len(vector)})
	}
	if !codec.AllFinite(vector) {
		return nil, wrapError("query", fmt.Errorf("%w: query vector has non-finite components", ErrInvalidArgument))
	}
	queryVector := codec.Normalize(vector)
	queryBlob := codec.Encode(queryVector)

	s.mu.RLock()
	closed := s.closed
	sqlFuncName := s.sqlFuncName
	s.mu.RUnlock()
	if closed {
		return nil, wrapError("query", ErrStoreClosed)
	}

	hasFilter := opts.Filter != nil
	limit := k
	minLimit := k
	if hasFilter {
		limit = k * oversampleFactorWithFilter
		minLimit = oversampleMinLimitWithFilter
	}
	if limit < minLimit {
		limit = minLimit
	}

	for {
		if err := checkCancelled(ctx); err != nil {
			return nil, wrapError("query", err)
		}

		rows, err := s.runScoredQuery(ctx, sqlFuncName, queryBlob, opts.WorkbookID, limit)
		if err != nil {
			if diagErr := s.diagnoseQueryError(ctx, opts.WorkbookID); diagErr != nil {
				return nil, wrapError("query", diagErr)
			}
			return nil, wrapError("query", fmt.Errorf("%w: %v", ErrStorageFailure, err))
		}

		matches := make([]SearchResult, 0, k)
		for _, r := range rows {
			if err := checkCancelled(ctx); err != nil {
				return nil, wrapError("query", err)
			}
			if opts.Filter != nil && !opts.Filter(r.metadata) {
				continue
			}
			matches = append(matches, SearchResult{ID: r.id, Score: r.score, Metadata: r.metadata})
			if len(matches) == k {
				break
			}
		}

		if len(matches) >= k || len(rows) < limit {
			return matches, nil
		}
		limit *= 2
	}
}

func (s *dbStore) runScoredQuery(ctx context.Context, sqlFuncName string, queryBlob []byte, workbookID string, limit int) ([]scoredRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf(`SELECT id, workbook_id, sheet_name, kind, title, r0, c0, r1, c1, content_hash, metadata_hash, token_count, text, metadata_json,
		%s(vector, ?) AS score
		FROM vectors`, sqlFuncName)
	args := []any{queryBlob}
	if workbookID != "" {
		query += " WHERE workbook_id = ?"
		args = append(args, workbookID)
	}
	query += " ORDER BY score DESC, id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scoredRow
	for rows.Next() {
		var id string
		var row vectorRow
		var score float64
		if err := rows.Scan(&id, &row.workbookID, &row.sheetName, &row.kind, &row.title,
			&row.r0, &row.c0, &row.r1, &row.c1, &row.contentHash, &row.metadataHash, &row.tokenCount, &row.text, &row.metadataJSON, &score); err != nil {
			return nil, err
		}
		md, err := row.toMetadata()
		if err != nil {
			return nil, err
		}
		out = append(out, scoredRow{id: id, score: score, metadata: md})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// diagnoseQueryError scans the vectors table for a row whose vector blob
// is malformed or mismatched against the store's dimension, trying to
// turn an opaque engine error (raised from inside the registered scalar
// function) into a precise InvalidBlobLengthError or
// DimensionMismatchError naming the offending row. If nothing is found
// it returns nil, so the caller falls back to the original error.
func (s *dbStore) diagnoseQueryError(ctx context.Context, workbookID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, length(vector) FROM vectors`
	var args []any
	if workbookID != "" {
		query += " WHERE workbook_id = ?"
		args = append(args, workbookID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var length int
		if err := rows.Scan(&id, &length); err != nil {
			continue
		}
		if length%4 != 0 {
			return &InvalidBlobLengthError{ID: id, Length: length}
		}
		if length != s.dimension*4 {
			return &DimensionMismatchError{ID: id, RequestedDimension: s.dimension, ActualDimension: length / 4}
		}
	}
	return nil
}
