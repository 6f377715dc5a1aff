// Package storage defines the pluggable byte-array backend a Store
// persists its SQLite snapshot through, plus the in-memory, single-file,
// and chunked key-value implementations shipped with sheetvec.
package storage

import "context"

// Backend loads and saves an opaque byte blob: the store's entire
// exported SQLite image. It knows nothing about vectors, schemas, or
// SQL; it is purely a place to put bytes.
type Backend interface {
	// Load returns the last saved snapshot. found is false when nothing
	// has ever been saved (a fresh store).
	Load(ctx context.Context) (data []byte, found bool, err error)
	// Save durably persists data, replacing whatever was saved before.
	Save(ctx context.Context, data []byte) error
	// Remove deletes any saved snapshot. Backends that cannot remove
	// selectively may implement this as Save(ctx, nil).
	Remove(ctx context.Context) error
}
