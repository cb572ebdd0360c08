package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/agentic-research/harvest/api"
)

// MemoryStore is an in-memory Store that also serves file content.
// Children are indexed per parent with roaring bitmaps, so ListChildren
// yields ascending file ids regardless of insertion order.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[int64]api.FileRecord
	content   map[int64][]byte
	children  map[int64]*roaring64.Bitmap // parent id → child ids
	artifacts []api.Hit
	types     []api.ArtifactType // parallel to artifacts
	nextArtID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[int64]api.FileRecord),
		content:   make(map[int64][]byte),
		children:  make(map[int64]*roaring64.Bitmap),
		nextArtID: 1,
	}
}

// AddFile registers a record and, for regular files, its content.
// Re-adding an id replaces the previous record.
func (s *MemoryStore) AddFile(rec api.FileRecord, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.records[rec.ID]; ok {
		if bm := s.children[old.ParentID]; bm != nil {
			bm.Remove(uint64(old.ID))
		}
	}
	if rec.Type == api.MetaFile && rec.Size == 0 {
		rec.Size = int64(len(data))
	}
	s.records[rec.ID] = rec
	if data != nil {
		s.content[rec.ID] = data
	}

	// The image root may name itself as parent; it is nobody's child.
	if rec.ParentID == rec.ID {
		return
	}
	bm, ok := s.children[rec.ParentID]
	if !ok {
		bm = roaring64.New()
		s.children[rec.ParentID] = bm
	}
	bm.Add(uint64(rec.ID))
}

// AddHit records an artifact of type t about subjectID and returns its id.
func (s *MemoryStore) AddHit(t api.ArtifactType, subjectID int64, attrs ...api.Attribute) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextArtID
	s.nextArtID++
	s.artifacts = append(s.artifacts, api.Hit{
		ArtifactID: id,
		SubjectID:  subjectID,
		Attributes: append([]api.Attribute(nil), attrs...),
	})
	s.types = append(s.types, t)
	return id
}

// GetFileRecord implements Store.
func (s *MemoryStore) GetFileRecord(_ context.Context, id int64) (api.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return api.FileRecord{}, fmt.Errorf("file %d: %w", id, ErrNotFound)
	}
	return rec, nil
}

// ListChildren implements Store.
func (s *MemoryStore) ListChildren(_ context.Context, parentID int64) ([]api.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bm, ok := s.children[parentID]
	if !ok {
		return nil, nil
	}
	out := make([]api.FileRecord, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, s.records[int64(it.Next())])
	}
	return out, nil
}

// HitsOfType implements Store.
func (s *MemoryStore) HitsOfType(_ context.Context, t api.ArtifactType) ([]api.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []api.Hit
	for i, h := range s.artifacts {
		if s.types[i] == t {
			hits = append(hits, h)
		}
	}
	return hits, nil
}

// EachRecord calls fn for every record in ascending id order.
func (s *MemoryStore) EachRecord(_ context.Context, fn func(api.FileRecord) error) error {
	s.mu.RLock()
	ids := roaring64.New()
	for id := range s.records {
		ids.Add(uint64(id))
	}
	recs := make([]api.FileRecord, 0, len(s.records))
	it := ids.Iterator()
	for it.HasNext() {
		recs = append(recs, s.records[int64(it.Next())])
	}
	s.mu.RUnlock()

	for _, rec := range recs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Open returns the content of a file record. Records without stored
// content read as empty.
func (s *MemoryStore) Open(_ context.Context, id int64) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("file %d: %w", id, ErrNotFound)
	}
	if rec.IsDir() {
		return nil, fmt.Errorf("file %d is a directory", id)
	}
	return io.NopCloser(bytes.NewReader(s.content[id])), nil
}

var _ Store = (*MemoryStore)(nil)
