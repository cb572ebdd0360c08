// Package store provides read access to the file-record index of a source
// image and the hit artifacts produced by upstream analysis.
package store

import (
	"context"
	"errors"

	"github.com/agentic-research/harvest/api"
)

// ErrNotFound is wrapped by every lookup of an id the store does not hold.
var ErrNotFound = errors.New("file record not found")

// Store is the record index consumed by the materializer.
// This allows swapping the backend (Memory -> SQLite) without touching callers.
type Store interface {
	// GetFileRecord returns the record with the given id, or an error
	// wrapping ErrNotFound.
	GetFileRecord(ctx context.Context, id int64) (api.FileRecord, error)
	// ListChildren returns the records whose parent is parentID. A record
	// is never listed as its own child. Order is stable for a given store.
	ListChildren(ctx context.Context, parentID int64) ([]api.FileRecord, error)
	// HitsOfType returns all artifacts of the given type in store order.
	HitsOfType(ctx context.Context, t api.ArtifactType) ([]api.Hit, error)
}
