package ingest

import (
	"context"

	"github.com/agentic-research/harvest/api"
)

// RecordWriter receives file records and their content while an index is built.
// *store.SQLiteWriter satisfies it.
type RecordWriter interface {
	AddFile(rec api.FileRecord, content []byte) error
}

// HitWriter receives flagged artifacts.
type HitWriter interface {
	AddHit(t api.ArtifactType, subjectID int64, attrs ...api.Attribute) (int64, error)
}

// RecordSource enumerates every record of an index in ascending id order.
// Both *store.SQLiteStore and *store.MemoryStore satisfy it.
type RecordSource interface {
	EachRecord(ctx context.Context, fn func(api.FileRecord) error) error
}
