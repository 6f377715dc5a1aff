package sheetvec

import (
	"context"
	"fmt"
	"os"
)

// enqueuePersist appends a persist onto the end of the FIFO chain: it
// waits for whatever was previously queued to finish before running, so
// persists always land on the backend in the order their triggering
// writes happened, even though each runs on its own goroutine.
func (s *dbStore) enqueuePersist(ctx context.Context) {
	s.persistMu.Lock()
	prev := s.persistTail
	done := make(chan struct{})
	s.persistTail = done
	s.persistMu.Unlock()

	go func() {
		if prev != nil {
			<-prev
		}
		if err := s.runPersist(ctx); err != nil {
			s.logger.Error("persist failed", "err", err)
		}
		close(done)
	}()
}

// waitPersist blocks until every persist enqueued so far has finished.
func (s *dbStore) waitPersist() {
	s.persistMu.Lock()
	tail := s.persistTail
	s.persistMu.Unlock()
	if tail != nil {
		<-tail
	}
}

// runPersist exports the current database image and saves it through
// the backend. A no-op if nothing has changed since the last persist.
// On failure the dirty flag is restored so a later write (or Close)
// retries.
func (s *dbStore) runPersist(ctx context.Context) error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	s.dirty = false
	s.mu.Unlock()

	data, exportErr := s.exportSnapshot(ctx)

	// The host engine may drop user-registered scalar functions as a
	// side effect of exporting a snapshot; re-register defensively
	// regardless of whether the export itself succeeded.
	if regErr := registerSimilarityFunction(s.sqlFuncName, s.similarityFunc); regErr != nil {
		s.logger.Error("similarity function re-registration failed", "err", regErr)
	}

	if exportErr != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return fmt.Errorf("%w: export: %v", ErrStorageFailure, exportErr)
	}

	if err := s.backend.Save(ctx, data); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return fmt.Errorf("%w: save: %v", ErrStorageFailure, err)
	}
	return nil
}

// exportSnapshot produces the engine-specific snapshot bytes for the
// current database image via VACUUM INTO.
func (s *dbStore) exportSnapshot(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tmp, err := os.CreateTemp("", "sheetvec-export-*.db")
	if err != nil {
		return nil, err
	}
	path := tmp.Name()
	tmp.Close()
	os.Remove(path) // VACUUM INTO refuses to write over an existing file
	defer os.Remove(path)

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", path)); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// markDirtyAndMaybePersist flags the store dirty and, when AutoSave is
// on and no Batch is in progress, enqueues a persist.
func (s *dbStore) markDirtyAndMaybePersist(ctx context.Context) {
	s.mu.Lock()
	s.dirty = true
	auto := s.autoSave
	inBatch := s.batchDepth > 0
	s.mu.Unlock()
	if auto && !inBatch {
		s.enqueuePersist(ctx)
	}
}

// Batch runs fn with persistence suppressed until it returns; if fn
// leaves the store dirty and returns without error and AutoSave is on,
// exactly one persist is enqueued for the whole batch rather than one per
// write inside it.
// Nested Batch calls only trigger a persist when the outermost one
// completes.
func (s *dbStore) Batch(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return wrapError("batch", ErrStoreClosed)
	}
	s.batchDepth++
	s.mu.Unlock()

	fnErr := fn(ctx)

	s.mu.Lock()
	s.batchDepth--
	outer := s.batchDepth == 0
	dirty := s.dirty
	autoSave := s.autoSave
	s.mu.Unlock()

	if outer && fnErr == nil && dirty && autoSave {
		s.enqueuePersist(ctx)
	}
	if fnErr != nil {
		return wrapError("batch", fnErr)
	}
	return nil
}
