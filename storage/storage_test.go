package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func testBackends(t *testing.T) map[string]Backend {
	t.Helper()
	dir := t.TempDir()
	return map[string]Backend{
		"memory":  NewMemoryBackend(),
		"file":    NewFileBackend(filepath.Join(dir, "snapshot.db")),
		"chunked": NewChunkedBackend(NewMemoryKVStore(), "wb"),
	}
}

func TestBackendLoadEmptyFindsNothing(t *testing.T) {
	ctx := context.Background()
	for name, b := range testBackends(t) {
		_, found, err := b.Load(ctx)
		if err != nil {
			t.Fatalf("%s: Load: %v", name, err)
		}
		if found {
			t.Fatalf("%s: expected found=false on a fresh backend", name)
		}
	}
}

func TestBackendSaveThenLoadRoundTrips(t *testing.T) {
	ctx := context.Background()
	payload := bytes.Repeat([]byte("sheetvec-snapshot-bytes"), 65536) // exercise multi-chunk path
	for name, b := range testBackends(t) {
		if err := b.Save(ctx, payload); err != nil {
			t.Fatalf("%s: Save: %v", name, err)
		}
		got, found, err := b.Load(ctx)
		if err != nil {
			t.Fatalf("%s: Load: %v", name, err)
		}
		if !found {
			t.Fatalf("%s: expected found=true after Save", name)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("%s: round-tripped bytes differ", name)
		}
	}
}

func TestBackendSaveOverwritesPrevious(t *testing.T) {
	ctx := context.Background()
	for name, b := range testBackends(t) {
		if err := b.Save(ctx, []byte("first")); err != nil {
			t.Fatalf("%s: Save 1: %v", name, err)
		}
		if err := b.Save(ctx, []byte("second, longer payload")); err != nil {
			t.Fatalf("%s: Save 2: %v", name, err)
		}
		got, _, err := b.Load(ctx)
		if err != nil {
			t.Fatalf("%s: Load: %v", name, err)
		}
		if string(got) != "second, longer payload" {
			t.Fatalf("%s: got %q, want overwritten payload", name, got)
		}
	}
}

func TestBackendRemove(t *testing.T) {
	ctx := context.Background()
	for name, b := range testBackends(t) {
		if err := b.Save(ctx, []byte("data")); err != nil {
			t.Fatalf("%s: Save: %v", name, err)
		}
		if err := b.Remove(ctx); err != nil {
			t.Fatalf("%s: Remove: %v", name, err)
		}
		_, found, err := b.Load(ctx)
		if err != nil {
			t.Fatalf("%s: Load after Remove: %v", name, err)
		}
		if found {
			t.Fatalf("%s: expected found=false after Remove", name)
		}
	}
}

func TestFileBackendMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	b := NewFileBackend(filepath.Join(dir, "does-not-exist.db"))
	_, found, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Fatal("expected found=false for a missing file")
	}
}

func TestFileBackendLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	b := NewFileBackend(filepath.Join(dir, "snapshot.db"))
	if err := b.Save(context.Background(), []byte("data")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 file in %s, got %d", dir, len(entries))
	}
}

func TestChunkedBackendCleansUpPreviousGeneration(t *testing.T) {
	kv := NewMemoryKVStore()
	b := NewChunkedBackend(kv, "wb")
	ctx := context.Background()
	if err := b.Save(ctx, bytes.Repeat([]byte("a"), defaultChunkSize+10)); err != nil {
		t.Fatalf("Save 1: %v", err)
	}
	if err := b.Save(ctx, []byte("short")); err != nil {
		t.Fatalf("Save 2: %v", err)
	}
	kv.mu.Lock()
	keyCount := len(kv.data)
	kv.mu.Unlock()
	// one manifest key + exactly one chunk key for the "short" generation
	if keyCount != 2 {
		t.Fatalf("expected stale chunks to be cleaned up, found %d keys left", keyCount)
	}
}
