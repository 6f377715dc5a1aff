package sheetvec

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "modernc.org/sqlite"
)

// openLegacyV1DB builds a bare v1 layout: id/workbook_id/vector/
// metadata_json only, with sheetName/kind/rect stuffed into
// metadata_json the way a pre-migration writer would have.
func openLegacyV1DB(t *testing.T) *sql.DB {
	t.Helper()
	path := t.TempDir() + "/legacy.db"
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open legacy db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		os.Remove(path)
	})

	_, err = db.Exec(`
		CREATE TABLE vector_store_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL);
		CREATE TABLE vectors (
			id TEXT PRIMARY KEY,
			workbook_id TEXT,
			vector BLOB NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}'
		);
	`)
	if err != nil {
		t.Fatalf("create legacy schema: %v", err)
	}

	_, err = db.Exec(`INSERT INTO vectors(id, workbook_id, vector, metadata_json) VALUES (?, ?, ?, ?)`,
		"a", "wb1", make([]byte, 12),
		`{"sheetName":"Sheet1","kind":"table","rect":{"r0":1,"c0":2,"r1":3,"c1":4},"tag":"keepme"}`)
	if err != nil {
		t.Fatalf("insert legacy row: %v", err)
	}
	return db
}

func TestSchemaMigrationPromotesLegacyFields(t *testing.T) {
	ctx := context.Background()
	db := openLegacyV1DB(t)

	if err := ensureSchema(ctx, db, NopLogger()); err != nil {
		t.Fatalf("ensureSchema: %v", err)
	}

	var sheetName, kind, metadataJSON string
	var r0, c0, r1, c1 int
	err := db.QueryRowContext(ctx,
		`SELECT sheet_name, kind, r0, c0, r1, c1, metadata_json FROM vectors WHERE id = ?`, "a").
		Scan(&sheetName, &kind, &r0, &c0, &r1, &c1, &metadataJSON)
	if err != nil {
		t.Fatalf("scan migrated row: %v", err)
	}
	if sheetName != "Sheet1" || kind != "table" {
		t.Fatalf("sheet_name/kind = %q/%q, want Sheet1/table", sheetName, kind)
	}
	if r0 != 1 || c0 != 2 || r1 != 3 || c1 != 4 {
		t.Fatalf("rect columns = (%d,%d,%d,%d), want (1,2,3,4)", r0, c0, r1, c1)
	}

	row := vectorRow{metadataJSON: metadataJSON}
	md, err := row.toMetadata()
	if err != nil {
		t.Fatalf("toMetadata: %v", err)
	}
	if md.Extra["tag"] != "keepme" {
		t.Fatalf("extra after migration = %v, want tag=keepme preserved", md.Extra)
	}
	if _, stillThere := md.Extra["sheetName"]; stillThere {
		t.Fatal("sheetName still present in extras after promotion, want stripped")
	}

	version, err := readSchemaVersion(ctx, db)
	if err != nil {
		t.Fatalf("readSchemaVersion: %v", err)
	}
	if version != currentSchemaVersion {
		t.Fatalf("schema_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestSchemaMigrationIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openLegacyV1DB(t)

	if err := ensureSchema(ctx, db, NopLogger()); err != nil {
		t.Fatalf("first ensureSchema: %v", err)
	}
	var firstJSON string
	if err := db.QueryRowContext(ctx, `SELECT metadata_json FROM vectors WHERE id = ?`, "a").Scan(&firstJSON); err != nil {
		t.Fatalf("scan after first migration: %v", err)
	}

	if err := ensureSchema(ctx, db, NopLogger()); err != nil {
		t.Fatalf("second ensureSchema: %v", err)
	}
	var secondJSON string
	var sheetName string
	if err := db.QueryRowContext(ctx, `SELECT metadata_json, sheet_name FROM vectors WHERE id = ?`, "a").Scan(&secondJSON, &sheetName); err != nil {
		t.Fatalf("scan after second migration: %v", err)
	}

	if firstJSON != secondJSON {
		t.Fatalf("metadata_json changed on a repeated migration: %q vs %q", firstJSON, secondJSON)
	}
	if sheetName != "Sheet1" {
		t.Fatalf("sheet_name after repeated migration = %q, want Sheet1 (unchanged)", sheetName)
	}
}

func TestSchemaMigrationStructuredColumnWins(t *testing.T) {
	ctx := context.Background()
	db := openLegacyV1DB(t)

	// A structured column set ahead of migration (e.g. by a partial
	// prior run) must not be clobbered by the legacy JSON value.
	if _, err := db.ExecContext(ctx, `ALTER TABLE vectors ADD COLUMN sheet_name TEXT`); err != nil {
		t.Fatalf("add sheet_name: %v", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE vectors SET sheet_name = 'AlreadySet' WHERE id = 'a'`); err != nil {
		t.Fatalf("seed sheet_name: %v", err)
	}

	if err := ensureSchema(ctx, db, NopLogger()); err != nil {
		t.Fatalf("ensureSchema: %v", err)
	}

	var sheetName string
	if err := db.QueryRowContext(ctx, `SELECT sheet_name FROM vectors WHERE id = ?`, "a").Scan(&sheetName); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if sheetName != "AlreadySet" {
		t.Fatalf("sheet_name = %q, want AlreadySet to win over the legacy JSON value", sheetName)
	}
}

func TestEnsureSchemaOnFreshDatabase(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/fresh.db"
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := ensureSchema(ctx, db, NopLogger()); err != nil {
		t.Fatalf("ensureSchema on fresh db: %v", err)
	}
	version, err := readSchemaVersion(ctx, db)
	if err != nil {
		t.Fatalf("readSchemaVersion: %v", err)
	}
	if version != currentSchemaVersion {
		t.Fatalf("schema_version on fresh db = %d, want %d", version, currentSchemaVersion)
	}
}
