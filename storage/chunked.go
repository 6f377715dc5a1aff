package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// KVStore is the minimal key-value contract ChunkedBackend needs. It is
// deliberately narrow so any key-value system (an embedded KV, a cache,
// a remote object store with per-key size limits) can back it.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryKVStore is an in-process KVStore, used by tests.
type MemoryKVStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryKVStore returns an empty MemoryKVStore.
func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{data: make(map[string][]byte)}
}

func (s *MemoryKVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (s *MemoryKVStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = cp
	return nil
}

func (s *MemoryKVStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

const defaultChunkSize = 1 << 20 // 1 MiB per chunk key

type chunkManifest struct {
	Generation string `json:"generation"`
	Length     int    `json:"length"`
	ChunkCount int    `json:"chunkCount"`
}

// ChunkedBackend splits a snapshot into fixed-size chunks addressed
// under a per-save generation id (minted with github.com/google/uuid),
// so a Save in progress never corrupts the chunks a concurrent Load is
// reading. A manifest key records the current generation, length, and
// chunk count; Save swaps the manifest to the new generation only after
// every chunk has landed, then best-effort deletes the previous
// generation's chunks.
type ChunkedBackend struct {
	kv        KVStore
	namespace string
	chunkSize int
}

// NewChunkedBackend returns a ChunkedBackend storing under namespace
// with the default 1 MiB chunk size.
func NewChunkedBackend(kv KVStore, namespace string) *ChunkedBackend {
	return &ChunkedBackend{kv: kv, namespace: namespace, chunkSize: defaultChunkSize}
}

func (c *ChunkedBackend) manifestKey() string {
	return c.namespace + "/manifest"
}

func (c *ChunkedBackend) chunkKey(generation string, index int) string {
	return fmt.Sprintf("%s/chunk/%s/%d", c.namespace, generation, index)
}

func (c *ChunkedBackend) Load(ctx context.Context) ([]byte, bool, error) {
	raw, found, err := c.kv.Get(ctx, c.manifestKey())
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	var m chunkManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false, fmt.Errorf("storage: corrupt manifest: %w", err)
	}
	buf := make([]byte, 0, m.Length)
	for i := 0; i < m.ChunkCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		chunk, found, err := c.kv.Get(ctx, c.chunkKey(m.Generation, i))
		if err != nil {
			return nil, false, err
		}
		if !found {
			return nil, false, fmt.Errorf("storage: missing chunk %d of generation %s", i, m.Generation)
		}
		buf = append(buf, chunk...)
	}
	return buf, true, nil
}

func (c *ChunkedBackend) Save(ctx context.Context, data []byte) error {
	prevGeneration, prevCount, havePrev, err := c.readManifest(ctx)
	if err != nil {
		return err
	}

	generation := uuid.NewString()
	chunkCount := 0
	for offset := 0; offset < len(data) || (len(data) == 0 && offset == 0); offset += c.chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := offset + c.chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := c.kv.Put(ctx, c.chunkKey(generation, chunkCount), data[offset:end]); err != nil {
			return fmt.Errorf("storage: put chunk %d: %w", chunkCount, err)
		}
		chunkCount++
		if len(data) == 0 {
			break
		}
	}

	m := chunkManifest{Generation: generation, Length: len(data), ChunkCount: chunkCount}
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("storage: marshal manifest: %w", err)
	}
	if err := c.kv.Put(ctx, c.manifestKey(), raw); err != nil {
		return fmt.Errorf("storage: put manifest: %w", err)
	}

	if havePrev {
		for i := 0; i < prevCount; i++ {
			_ = c.kv.Delete(ctx, c.chunkKey(prevGeneration, i))
		}
	}
	return nil
}

func (c *ChunkedBackend) Remove(ctx context.Context) error {
	generation, count, found, err := c.readManifest(ctx)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	for i := 0; i < count; i++ {
		_ = c.kv.Delete(ctx, c.chunkKey(generation, i))
	}
	return c.kv.Delete(ctx, c.manifestKey())
}

func (c *ChunkedBackend) readManifest(ctx context.Context) (generation string, count int, found bool, err error) {
	raw, found, err := c.kv.Get(ctx, c.manifestKey())
	if err != nil || !found {
		return "", 0, found, err
	}
	var m chunkManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", 0, false, fmt.Errorf("storage: corrupt manifest: %w", err)
	}
	return m.Generation, m.ChunkCount, true, nil
}
