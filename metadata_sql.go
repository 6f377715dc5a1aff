package sheetvec

import (
	"database/sql"

	"github.com/sheetvec/sheetvec/internal/metarow"
)

// vectorRow is the structured-column shape of one vectors table row,
// excluding id and vector: the Metadata Splitter's SQL-facing half.
// Metadata's typed fields map onto dedicated columns; everything else
// lives in metadataJSON as a residual JSON blob.
type vectorRow struct {
	workbookID   sql.NullString
	sheetName    sql.NullString
	kind         sql.NullString
	title        sql.NullString
	r0, c0, r1, c1 sql.NullInt64
	contentHash  sql.NullString
	metadataHash sql.NullString
	tokenCount   sql.NullInt64
	text         sql.NullString
	metadataJSON string
}

func toVectorRow(md Metadata) (vectorRow, error) {
	json, err := metarow.EncodeExtra(metarow.StripReserved(md.Extra))
	if err != nil {
		return vectorRow{}, err
	}
	row := vectorRow{
		workbookID:   nullString(md.WorkbookID),
		sheetName:    nullString(md.SheetName),
		kind:         nullString(md.Kind),
		title:        nullString(md.Title),
		contentHash:  nullString(md.ContentHash),
		metadataHash: nullString(md.MetadataHash),
		tokenCount:   nullInt(md.TokenCount),
		text:         nullString(md.Text),
		metadataJSON: json,
	}
	if md.Rect != nil {
		row.r0 = sql.NullInt64{Int64: int64(md.Rect.R0), Valid: true}
		row.c0 = sql.NullInt64{Int64: int64(md.Rect.C0), Valid: true}
		row.r1 = sql.NullInt64{Int64: int64(md.Rect.R1), Valid: true}
		row.c1 = sql.NullInt64{Int64: int64(md.Rect.C1), Valid: true}
	}
	return row, nil
}

func (r vectorRow) toMetadata() (Metadata, error) {
	extra, err := metarow.DecodeExtra(r.metadataJSON)
	if err != nil {
		return Metadata{}, err
	}
	md := Metadata{
		WorkbookID:   r.workbookID.String,
		SheetName:    r.sheetName.String,
		Kind:         r.kind.String,
		Title:        r.title.String,
		ContentHash:  r.contentHash.String,
		MetadataHash: r.metadataHash.String,
		TokenCount:   int(r.tokenCount.Int64),
		Text:         r.text.String,
		Extra:        extra,
	}
	if r.r0.Valid && r.c0.Valid && r.r1.Valid && r.c1.Valid {
		md.Rect = &Rect{R0: int(r.r0.Int64), C0: int(r.c0.Int64), R1: int(r.r1.Int64), C1: int(r.c1.Int64)}
	}
	return md, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(i int) sql.NullInt64 {
	if i == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(i), Valid: true}
}
