package sheetvec

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/sheetvec/sheetvec/internal/metarow"
)

const currentSchemaVersion = 2

// createBaseTablesSQL is only a no-op against an existing (v1) database:
// CREATE TABLE IF NOT EXISTS never adds columns to a table that already
// exists. A brand-new store gets the full v2 layout in one shot; an
// existing v1 snapshot is patched up to v2 by ensureSchema below.
const createBaseTablesSQL = `
CREATE TABLE IF NOT EXISTS vector_store_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS vectors (
	id TEXT PRIMARY KEY,
	workbook_id TEXT,
	vector BLOB NOT NULL,
	sheet_name TEXT,
	kind TEXT,
	title TEXT,
	r0 INTEGER,
	c0 INTEGER,
	r1 INTEGER,
	c1 INTEGER,
	content_hash TEXT,
	metadata_hash TEXT,
	token_count INTEGER,
	text TEXT,
	metadata_json TEXT NOT NULL DEFAULT '{}'
);
`

type structuredColumn struct {
	sqlName string
	sqlType string
	jsonKey string
}

// structuredColumns are the v2 additions layered onto a v1 layout that
// only ever had id/workbook_id/vector/metadata_json. workbook_id is not
// here: it predates the v2 migration and is assumed present on any row
// this store ever wrote.
var structuredColumns = []structuredColumn{
	{"sheet_name", "TEXT", "sheetName"},
	{"kind", "TEXT", "kind"},
	{"title", "TEXT", "title"},
	{"content_hash", "TEXT", "contentHash"},
	{"metadata_hash", "TEXT", "metadataHash"},
	{"token_count", "INTEGER", "tokenCount"},
	{"text", "TEXT", "text"},
}

var rectColumns = []structuredColumn{
	{"r0", "INTEGER", ""},
	{"c0", "INTEGER", ""},
	{"r1", "INTEGER", ""},
	{"c1", "INTEGER", ""},
}

const coveringIndexName = "idx_vectors_covering"
const coveringIndexDef = "CREATE INDEX " + coveringIndexName + " ON vectors(workbook_id, id, content_hash, metadata_hash, length(vector))"

// ensureSchema brings db up to the current schema, whether it is a
// brand-new file, an untouched v1 snapshot, or a v2 snapshot that was
// interrupted mid-migration. It is always safe to call: a fully
// up-to-date store is left untouched.
func ensureSchema(ctx context.Context, db *sql.DB, logger Logger) error {
	if _, err := db.ExecContext(ctx, createBaseTablesSQL); err != nil {
		return fmt.Errorf("create base tables: %w", err)
	}

	cols, err := tableColumns(ctx, db, "vectors")
	if err != nil {
		return err
	}

	var missing []structuredColumn
	for _, c := range structuredColumns {
		if !cols[c.sqlName] {
			missing = append(missing, c)
		}
	}
	missingRect := !cols["r0"] || !cols["c0"] || !cols["r1"] || !cols["c1"]

	version, err := readSchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	if len(missing) > 0 || missingRect {
		if err := addMissingColumns(ctx, db, missing, missingRect); err != nil {
			return fmt.Errorf("add structured columns: %w", err)
		}
		logger.Info("schema migration: added structured columns", "count", len(missing))
	}

	if len(missing) > 0 || missingRect || version < currentSchemaVersion {
		if err := repairRows(ctx, db); err != nil {
			return fmt.Errorf("repair rows: %w", err)
		}
		if err := writeMeta(ctx, db, "schema_version", strconv.Itoa(currentSchemaVersion)); err != nil {
			return err
		}
		logger.Info("schema migration complete", "version", currentSchemaVersion)
	}

	return ensureCoveringIndex(ctx, db)
}

func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

func addMissingColumns(ctx context.Context, db *sql.DB, missing []structuredColumn, missingRect bool) error {
	for _, c := range missing {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE vectors ADD COLUMN %s %s", c.sqlName, c.sqlType)); err != nil {
			return err
		}
	}
	if missingRect {
		for _, c := range rectColumns {
			if _, err := db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE vectors ADD COLUMN %s %s", c.sqlName, c.sqlType)); err != nil {
				return err
			}
		}
	}
	return nil
}

// repairRows promotes values out of metadata_json into their structured
// columns wherever a column is still unset, and always strips those keys
// out of metadata_json once handled. An existing non-null column value
// always wins over a same-named legacy JSON value. Running this twice in
// a row is a no-op the second time: nothing remains to promote or strip.
func repairRows(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id, sheet_name, kind, title, r0, c0, r1, c1, content_hash, metadata_hash, token_count, text, metadata_json FROM vectors`)
	if err != nil {
		return err
	}

	type rowState struct {
		id                                             string
		sheetName, kind, title, contentHash, metaHash  sql.NullString
		text                                           sql.NullString
		r0, c0, r1, c1, tokenCount                      sql.NullInt64
		metadataJSON                                   string
	}
	var states []rowState
	for rows.Next() {
		var s rowState
		if err := rows.Scan(&s.id, &s.sheetName, &s.kind, &s.title, &s.r0, &s.c0, &s.r1, &s.c1,
			&s.contentHash, &s.metaHash, &s.tokenCount, &s.text, &s.metadataJSON); err != nil {
			rows.Close()
			return err
		}
		states = append(states, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, s := range states {
		extra, err := metarow.DecodeExtra(s.metadataJSON)
		if err != nil {
			extra = map[string]any{}
		}
		changed := false

		promote := func(col *sql.NullString, key string) {
			if _, present := extra[key]; present {
				if !col.Valid || col.String == "" {
					if v, ok := extra[key].(string); ok && v != "" {
						col.Valid = true
						col.String = v
					}
				}
				delete(extra, key)
				changed = true
			}
		}
		promote(&s.sheetName, "sheetName")
		promote(&s.kind, "kind")
		promote(&s.title, "title")
		promote(&s.contentHash, "contentHash")
		promote(&s.metaHash, "metadataHash")
		promote(&s.text, "text")

		if v, present := extra["tokenCount"]; present {
			if !s.tokenCount.Valid {
				if f, ok := v.(float64); ok {
					s.tokenCount = sql.NullInt64{Int64: int64(f), Valid: true}
				}
			}
			delete(extra, "tokenCount")
			changed = true
		}

		if v, present := extra["rect"]; present {
			if !s.r0.Valid {
				if rectMap, ok := v.(map[string]any); ok {
					s.r0 = toNullInt64(rectMap["r0"])
					s.c0 = toNullInt64(rectMap["c0"])
					s.r1 = toNullInt64(rectMap["r1"])
					s.c1 = toNullInt64(rectMap["c1"])
				}
			}
			delete(extra, "rect")
			changed = true
		}

		if !changed {
			continue
		}
		newJSON, err := metarow.EncodeExtra(extra)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE vectors SET sheet_name=?, kind=?, title=?, r0=?, c0=?, r1=?, c1=?,
			content_hash=?, metadata_hash=?, token_count=?, text=?, metadata_json=? WHERE id=?`,
			s.sheetName, s.kind, s.title, s.r0, s.c0, s.r1, s.c1,
			s.contentHash, s.metaHash, s.tokenCount, s.text, newJSON, s.id)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func toNullInt64(v any) sql.NullInt64 {
	f, ok := v.(float64)
	if !ok {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(f), Valid: true}
}

func ensureCoveringIndex(ctx context.Context, db *sql.DB) error {
	var existing sql.NullString
	err := db.QueryRowContext(ctx, `SELECT sql FROM sqlite_master WHERE type='index' AND name=?`, coveringIndexName).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if err == sql.ErrNoRows || !existing.Valid || existing.String != coveringIndexDef {
		if _, err := db.ExecContext(ctx, "DROP INDEX IF EXISTS "+coveringIndexName); err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, coveringIndexDef); err != nil {
			return err
		}
	}
	return nil
}

func readMeta(ctx context.Context, db *sql.DB, key string) (string, bool, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM vector_store_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func writeMeta(ctx context.Context, db *sql.DB, key, value string) error {
	_, err := db.ExecContext(ctx, `INSERT INTO vector_store_meta(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func readSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	raw, found, err := readMeta(ctx, db, "schema_version")
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, nil
	}
	return v, nil
}

// readStoredDimension returns the dimension recorded in
// vector_store_meta, or (0, false, nil) when nothing has been recorded
// yet. A present-but-unparseable or non-positive value is a corrupt
// store, not an absent one, and is reported as ErrInvalidMetadata rather
// than silently treated as "no dimension on file".
func readStoredDimension(ctx context.Context, db *sql.DB) (int, bool, error) {
	raw, found, err := readMeta(ctx, db, "dimension")
	if err != nil || !found {
		return 0, false, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, false, fmt.Errorf("%w: stored dimension %q is not a positive integer", ErrInvalidMetadata, raw)
	}
	return v, true, nil
}

func writeStoredDimension(ctx context.Context, db *sql.DB, dimension int) error {
	return writeMeta(ctx, db, "dimension", strconv.Itoa(dimension))
}
