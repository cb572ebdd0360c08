package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/agentic-research/harvest/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTestIndex writes a small image index:
//
//	1 (root)
//	├── 2 docs/
//	│   ├── 4 a.txt
//	│   └── 5 sub/
//	│       └── 6 b.txt
//	└── 3 top.bin
func buildTestIndex(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "image.db")

	w, err := NewSQLiteWriter(dbPath)
	require.NoError(t, err)

	require.NoError(t, w.AddFile(api.FileRecord{ID: 1, ParentID: 1, Name: "", Type: api.MetaDirectory}, nil))
	require.NoError(t, w.AddFile(api.FileRecord{ID: 2, ParentID: 1, Name: "docs", Type: api.MetaDirectory}, nil))
	require.NoError(t, w.AddFile(api.FileRecord{ID: 3, ParentID: 1, Name: "top.bin", Type: api.MetaFile, MIME: "application/octet-stream"}, []byte{0, 1, 2}))
	require.NoError(t, w.AddFile(api.FileRecord{ID: 4, ParentID: 2, Name: "a.txt", Type: api.MetaFile}, []byte("alpha")))
	require.NoError(t, w.AddFile(api.FileRecord{ID: 5, ParentID: 2, Name: "sub", Type: api.MetaDirectory}, nil))
	require.NoError(t, w.AddFile(api.FileRecord{ID: 6, ParentID: 5, Name: "b.txt", Type: api.MetaFile}, nil))

	_, err = w.AddHit(api.ArtifactInterestingFileHit, 4,
		api.Attribute{Type: api.AttrSetName, Value: "Docs"},
		api.Attribute{Type: api.AttrComment, Value: "text"},
	)
	require.NoError(t, err)
	_, err = w.AddHit(api.ArtifactType(7), 3)
	require.NoError(t, err)
	_, err = w.AddHit(api.ArtifactInterestingFileHit, 2)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	return dbPath
}

func TestSQLiteStore_GetFileRecord(t *testing.T) {
	s, err := OpenSQLiteStore(buildTestIndex(t))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	rec, err := s.GetFileRecord(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, api.FileRecord{
		ID: 3, ParentID: 1, Name: "top.bin", Type: api.MetaFile,
		Size: 3, MIME: "application/octet-stream",
	}, rec)

	_, err = s.GetFileRecord(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListChildren(t *testing.T) {
	s, err := OpenSQLiteStore(buildTestIndex(t))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	t.Run("root excludes itself", func(t *testing.T) {
		children, err := s.ListChildren(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, children, 2)
		assert.Equal(t, "docs", children[0].Name)
		assert.True(t, children[0].IsDir())
		assert.Equal(t, "top.bin", children[1].Name)
	})

	t.Run("nested", func(t *testing.T) {
		children, err := s.ListChildren(context.Background(), 2)
		require.NoError(t, err)
		require.Len(t, children, 2)
		assert.Equal(t, int64(4), children[0].ID)
		assert.Equal(t, int64(5), children[1].ID)
	})

	t.Run("leaf", func(t *testing.T) {
		children, err := s.ListChildren(context.Background(), 6)
		require.NoError(t, err)
		assert.Empty(t, children)
	})
}

func TestSQLiteStore_HitsOfType(t *testing.T) {
	s, err := OpenSQLiteStore(buildTestIndex(t))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	hits, err := s.HitsOfType(context.Background(), api.ArtifactInterestingFileHit)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, int64(4), hits[0].SubjectID)
	assert.Equal(t, []string{"Docs"}, hits[0].SetNames())
	require.Len(t, hits[0].Attributes, 2)
	assert.Equal(t, api.AttrComment, hits[0].Attributes[1].Type)

	// An artifact without attributes still comes back as a hit.
	assert.Equal(t, int64(2), hits[1].SubjectID)
	assert.Empty(t, hits[1].Attributes)
}

func TestSQLiteStore_Open(t *testing.T) {
	s, err := OpenSQLiteStore(buildTestIndex(t))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	rc, err := s.Open(context.Background(), 4)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	_ = rc.Close()
	assert.Equal(t, "alpha", string(data))

	rc, err = s.Open(context.Background(), 6)
	require.NoError(t, err)
	data, _ = io.ReadAll(rc)
	assert.Empty(t, data, "file without a blob reads as empty")

	_, err = s.Open(context.Background(), 2)
	assert.Error(t, err, "directories have no content")

	_, err = s.Open(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_EachRecord(t *testing.T) {
	s, err := OpenSQLiteStore(buildTestIndex(t))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	var ids []int64
	require.NoError(t, s.EachRecord(context.Background(), func(r api.FileRecord) error {
		ids = append(ids, r.ID)
		return nil
	}))
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, ids)
}

func TestOpenSQLiteStore_RejectsForeignDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "other.db")
	require.NoError(t, os.WriteFile(dbPath, nil, 0o644))

	_, err := OpenSQLiteStore(dbPath)
	assert.Error(t, err)
}

func TestSQLiteWriter_ReopenAppendsHits(t *testing.T) {
	dbPath := buildTestIndex(t)

	w, err := NewSQLiteWriter(dbPath)
	require.NoError(t, err)
	_, err = w.AddHit(api.ArtifactInterestingFileHit, 6, api.Attribute{Type: api.AttrSetName, Value: "Late"})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	s, err := OpenSQLiteStore(dbPath)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	hits, err := s.HitsOfType(context.Background(), api.ArtifactInterestingFileHit)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, []string{"Late"}, hits[2].SetNames())
}

func TestSQLiteURI_EscapesPath(t *testing.T) {
	dsn, err := sqliteURI(filepath.Join(string(filepath.Separator), "cases", "a?b#c%d", "image.db"), "mode=ro")
	require.NoError(t, err)
	assert.Contains(t, dsn, "a%3Fb%23c%25d")
	assert.True(t, strings.HasPrefix(dsn, "file:"))
	assert.True(t, strings.HasSuffix(dsn, "/image.db?mode=ro"))
}

func TestSQLiteStore_PathWithURISyntax(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("'?' is not a legal file name character")
	}
	dir := filepath.Join(t.TempDir(), "case?7#evidence")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	dbPath := filepath.Join(dir, "image.db")

	w, err := NewSQLiteWriter(dbPath)
	require.NoError(t, err)
	require.NoError(t, w.AddFile(api.FileRecord{ID: 1, ParentID: 1, Name: "root", Type: api.MetaDirectory}, nil))
	require.NoError(t, w.Close())

	_, err = os.Stat(dbPath)
	require.NoError(t, err, "database must be created at the literal path")

	s, err := OpenSQLiteStore(dbPath)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	rec, err := s.GetFileRecord(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "root", rec.Name)
}
