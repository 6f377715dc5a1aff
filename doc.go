// Package sheetvec is a persistent, embedded vector store for
// retrieval-augmented search over spreadsheet-derived chunks.
//
// It maps stable string ids to fixed-dimension vectors plus structured
// metadata, backed by an in-process SQLite engine (modernc.org/sqlite)
// whose on-disk image is durably persisted through a pluggable byte-array
// storage.Backend. Reads and writes go through Store; retrieval
// orchestration (embed, query, rerank, dedupe) lives in the sibling
// retrieval package.
//
// # Quick start
//
//	opts := sheetvec.DefaultOpenOptions(384)
//	opts.Storage = storage.NewFileBackend("workbook.svdb")
//	store, err := sheetvec.Open(ctx, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close(ctx)
//
//	err = store.Upsert(ctx, []sheetvec.Record{{
//	    ID:     "wb1!Sheet1!A1:B2",
//	    Vector: embedding,
//	    Metadata: sheetvec.Metadata{WorkbookID: "wb1", SheetName: "Sheet1"},
//	}})
//
//	results, err := store.Query(ctx, queryVector, 10, sheetvec.QueryOptions{})
package sheetvec
