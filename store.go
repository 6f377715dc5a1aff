package sheetvec

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/sheetvec/sheetvec/storage"
)

// dbStore is the SQLite-backed implementation of Store. The on-disk
// image is a real SQLite file living in a process-private temp
// directory; Storage.Load/Save only ever see its exported bytes
// (VACUUM INTO), never the temp path itself.
type dbStore struct {
	mu sync.RWMutex

	db        *sql.DB
	dimension int
	backend   storage.Backend
	autoSave  bool
	logger    Logger

	similarityKind string
	similarityFunc SimilarityFunc
	sqlFuncName    string

	tempPath string
	closed   bool

	dirty      bool
	batchDepth int

	persistMu   sync.Mutex
	persistTail chan struct{}
}

var _ Store = (*dbStore)(nil)

// Open loads (or creates) a store from opts.Storage and migrates its
// schema if necessary. The returned Store owns a private on-disk SQLite
// file for the duration it is open; Close tears that file down after a
// final persist.
func Open(ctx context.Context, opts OpenOptions) (Store, error) {
	if opts.Dimension <= 0 {
		return nil, wrapError("open", fmt.Errorf("%w: dimension must be positive", ErrInvalidArgument))
	}
	if opts.Storage == nil {
		return nil, wrapError("open", fmt.Errorf("%w: storage backend is required", ErrInvalidArgument))
	}
	logger := opts.Logger
	if logger == nil {
		logger = NopLogger()
	}
	similarityKind := opts.SimilarityName
	if similarityKind == "" {
		similarityKind = "dot"
	}
	fn, ok := similarityFuncs[similarityKind]
	if !ok {
		return nil, wrapError("open", fmt.Errorf("%w: unknown similarity name %q", ErrInvalidArgument, similarityKind))
	}

	data, found, err := opts.Storage.Load(ctx)
	if err != nil {
		return nil, wrapError("open", fmt.Errorf("%w: %v", ErrStorageFailure, err))
	}

	tempFile, err := os.CreateTemp("", "sheetvec-*.db")
	if err != nil {
		return nil, wrapError("open", err)
	}
	tempPath := tempFile.Name()
	tempFile.Close()

	if found && len(data) > 0 {
		if err := os.WriteFile(tempPath, data, 0o600); err != nil {
			os.Remove(tempPath)
			return nil, wrapError("open", err)
		}
	}

	db, err := openSQLite(tempPath)
	if err != nil {
		os.Remove(tempPath)
		return nil, wrapError("open", err)
	}

	if pingErr := db.PingContext(ctx); pingErr != nil {
		db.Close()
		if !opts.ResetOnCorrupt {
			os.Remove(tempPath)
			return nil, wrapError("open", fmt.Errorf("%w: %v", ErrStorageFailure, pingErr))
		}
		logger.Warn("snapshot failed to open, resetting", "err", pingErr)
		os.Remove(tempPath)
		db, err = openSQLite(tempPath)
		if err != nil {
			os.Remove(tempPath)
			return nil, wrapError("open", err)
		}
		found = false
	}

	if err := ensureSchema(ctx, db, logger); err != nil {
		db.Close()
		os.Remove(tempPath)
		return nil, wrapError("open", err)
	}

	storedDim, hasStoredDim, err := readStoredDimension(ctx, db)
	if err != nil {
		db.Close()
		os.Remove(tempPath)
		return nil, wrapError("open", err)
	}
	if hasStoredDim && storedDim != opts.Dimension {
		if !opts.ResetOnDimensionMismatch {
			db.Close()
			os.Remove(tempPath)
			return nil, wrapError("open", &DimensionMismatchError{RequestedDimension: opts.Dimension, ActualDimension: storedDim})
		}
		logger.Warn("stored dimension mismatch, resetting", "stored", storedDim, "requested", opts.Dimension)
		db.Close()
		os.Remove(tempPath)
		if db, err = openSQLite(tempPath); err != nil {
			os.Remove(tempPath)
			return nil, wrapError("open", err)
		}
		if err := ensureSchema(ctx, db, logger); err != nil {
			db.Close()
			os.Remove(tempPath)
			return nil, wrapError("open", err)
		}
		found = false
	}
	if !hasStoredDim || (hasStoredDim && storedDim != opts.Dimension) {
		if err := writeStoredDimension(ctx, db, opts.Dimension); err != nil {
			db.Close()
			os.Remove(tempPath)
			return nil, wrapError("open", err)
		}
	}

	sqlFuncName := "sheetvec_sim_" + uuidSuffix()
	if err := registerSimilarityFunction(sqlFuncName, fn); err != nil {
		db.Close()
		os.Remove(tempPath)
		return nil, wrapError("open", err)
	}

	s := &dbStore{
		db:             db,
		dimension:      opts.Dimension,
		backend:        opts.Storage,
		autoSave:       opts.AutoSave,
		logger:         logger,
		similarityKind: similarityKind,
		similarityFunc: fn,
		sqlFuncName:    sqlFuncName,
		tempPath:       tempPath,
	}
	logger.Info("store opened", "dimension", opts.Dimension, "loadedExistingSnapshot", found)
	return s, nil
}

func openSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-2000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(10)
	return db, nil
}

func uuidSuffix() string {
	id := uuid.New().String()
	out := make([]byte, 0, len(id))
	for _, c := range []byte(id) {
		if c != '-' {
			out = append(out, c)
		}
	}
	return string(out)
}

func (s *dbStore) Dimension() int {
	return s.dimension
}

// Close waits for any in-flight persist, flushes one final snapshot if
// the store is still dirty, then releases the underlying SQLite file.
func (s *dbStore) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.waitPersist()

	s.mu.RLock()
	dirty := s.dirty
	s.mu.RUnlock()

	var persistErr error
	if dirty {
		persistErr = s.runPersist(ctx)
	}

	s.mu.Lock()
	closeErr := s.db.Close()
	s.mu.Unlock()

	os.Remove(s.tempPath)

	if persistErr != nil {
		return wrapError("close", persistErr)
	}
	if closeErr != nil {
		return wrapError("close", closeErr)
	}
	return nil
}
