package storage

import (
	"context"
	"sync"
)

// MemoryBackend keeps the snapshot in a process-local byte slice. It is
// not durable across process restarts; it exists for tests and for
// callers that only need an in-memory store (e.g. a scratch workbook
// session that is never persisted to disk).
type MemoryBackend struct {
	mu   sync.Mutex
	data []byte
	set  bool
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// NewMemoryBackendWithData returns a MemoryBackend pre-seeded with data,
// as if a prior Save had already run. Useful for tests that want to open
// a store against a known snapshot.
func NewMemoryBackendWithData(data []byte) *MemoryBackend {
	cp := make([]byte, len(data))
	copy(cp, data)
	return &MemoryBackend{data: cp, set: true}
}

func (m *MemoryBackend) Load(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return nil, false, nil
	}
	cp := make([]byte, len(m.data))
	copy(cp, m.data)
	return cp, true, nil
}

func (m *MemoryBackend) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = cp
	m.set = true
	return nil
}

func (m *MemoryBackend) Remove(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	m.set = false
	return nil
}
