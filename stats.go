package sheetvec

import "context"

// Stats reports row count, configured dimension, and approximate
// on-disk size via page_count * page_size from SQLite's pragma
// virtual tables.
func (s *dbStore) Stats(ctx context.Context) (StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return StoreStats{}, wrapError("stats", ErrStoreClosed)
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&count); err != nil {
		return StoreStats{}, wrapError("stats", err)
	}

	var size int64
	err := s.db.QueryRowContext(ctx, `SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`).Scan(&size)
	if err != nil {
		return StoreStats{}, wrapError("stats", err)
	}

	return StoreStats{Count: count, Dimension: s.dimension, SizeBytes: size}, nil
}

// ListWorkbooks returns every distinct non-empty workbookId currently
// stored.
func (s *dbStore) ListWorkbooks(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, wrapError("listWorkbooks", ErrStoreClosed)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT workbook_id FROM vectors WHERE workbook_id IS NOT NULL AND workbook_id <> '' ORDER BY workbook_id ASC`)
	if err != nil {
		return nil, wrapError("listWorkbooks", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		if err := checkCancelled(ctx); err != nil {
			return nil, wrapError("listWorkbooks", err)
		}
		var wb string
		if err := rows.Scan(&wb); err != nil {
			return nil, wrapError("listWorkbooks", err)
		}
		out = append(out, wb)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("listWorkbooks", err)
	}
	return out, nil
}
