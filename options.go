package sheetvec

import "github.com/sheetvec/sheetvec/storage"

// OpenOptions configures Open via a struct-of-options, defaulted by
// DefaultOpenOptions.
type OpenOptions struct {
	// Dimension is the fixed vector length this store accepts. Required.
	Dimension int

	// Storage is the byte-array backend the snapshot is loaded from and
	// persisted to. Required; storage.NewMemoryBackend() is the
	// simplest choice for a non-durable store.
	Storage storage.Backend

	// AutoSave enqueues a persist after every write that leaves the
	// store dirty, outside of an active Batch. Defaults to true.
	AutoSave bool

	// ResetOnCorrupt discards a snapshot that fails to open as a valid
	// SQLite database and starts fresh instead of failing Open. Defaults
	// to true.
	ResetOnCorrupt bool

	// ResetOnDimensionMismatch discards a snapshot whose stored
	// dimension does not match Dimension and starts fresh instead of
	// failing Open. Defaults to true.
	ResetOnDimensionMismatch bool

	// Logger receives structured lifecycle events. Defaults to
	// NopLogger().
	Logger Logger

	// SimilarityName is the SQL scalar function name registered for
	// ORDER BY scoring. Defaults to "dot": vectors are L2-normalized
	// exactly once at write time and the query vector is normalized
	// before querying, so dot product and cosine similarity coincide.
	SimilarityName string
}

// DefaultOpenOptions returns an OpenOptions with AutoSave on, both
// ResetOnCorrupt and ResetOnDimensionMismatch on, a NopLogger, and
// SimilarityName "dot". Storage is left nil; callers must set it before
// calling Open.
func DefaultOpenOptions(dimension int) OpenOptions {
	return OpenOptions{
		Dimension:                dimension,
		AutoSave:                 true,
		ResetOnCorrupt:           true,
		ResetOnDimensionMismatch: true,
		Logger:                   NopLogger(),
		SimilarityName:           "dot",
	}
}
