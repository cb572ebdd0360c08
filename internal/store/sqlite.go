package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/agentic-research/harvest/api"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store by querying an image index directly.
// The index is opened read-only; nothing on the save path writes to it.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// OpenSQLiteStore opens the index at dbPath read-only.
func OpenSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn, err := sqliteURI(dbPath, "mode=ro")
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(4)

	// sql.Open is lazy; fail here on a missing or foreign database.
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'files'`).Scan(&n); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("check %s: %w", dbPath, err)
	}
	if n == 0 {
		_ = db.Close()
		return nil, fmt.Errorf("%s is not an image index (no files table)", dbPath)
	}
	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file the store reads.
func (s *SQLiteStore) Path() string { return s.dbPath }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const recordColumns = `file_id, par_file_id, name, meta_type, size, COALESCE(mime, '')`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (api.FileRecord, error) {
	var rec api.FileRecord
	var metaType int
	if err := row.Scan(&rec.ID, &rec.ParentID, &rec.Name, &metaType, &rec.Size, &rec.MIME); err != nil {
		return api.FileRecord{}, err
	}
	rec.Type = api.MetaType(metaType)
	return rec, nil
}

// GetFileRecord implements Store.
func (s *SQLiteStore) GetFileRecord(ctx context.Context, id int64) (api.FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM files WHERE file_id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return api.FileRecord{}, fmt.Errorf("file %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return api.FileRecord{}, fmt.Errorf("query file %d: %w", id, err)
	}
	return rec, nil
}

// ListChildren implements Store. Rows come back in file_id order.
func (s *SQLiteStore) ListChildren(ctx context.Context, parentID int64) ([]api.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM files WHERE par_file_id = ? AND file_id != par_file_id ORDER BY file_id`,
		parentID)
	if err != nil {
		return nil, fmt.Errorf("query children of %d: %w", parentID, err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	var out []api.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child of %d: %w", parentID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// HitsOfType implements Store. Hits are ordered by artifact id and their
// attributes by insertion sequence.
func (s *SQLiteStore) HitsOfType(ctx context.Context, t api.ArtifactType) ([]api.Hit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.artifact_id, a.obj_id, b.attribute_type_id, b.value_text
		FROM artifacts a
		LEFT JOIN attributes b ON b.artifact_id = a.artifact_id
		WHERE a.artifact_type_id = ?
		ORDER BY a.artifact_id, b.seq
	`, int(t))
	if err != nil {
		return nil, fmt.Errorf("query hits of type %d: %w", t, err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	var hits []api.Hit
	for rows.Next() {
		var (
			artID, objID int64
			attrType     sql.NullInt64
			value        sql.NullString
		)
		if err := rows.Scan(&artID, &objID, &attrType, &value); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		if len(hits) == 0 || hits[len(hits)-1].ArtifactID != artID {
			hits = append(hits, api.Hit{ArtifactID: artID, SubjectID: objID})
		}
		if attrType.Valid {
			last := &hits[len(hits)-1]
			last.Attributes = append(last.Attributes, api.Attribute{
				Type:  api.AttributeType(attrType.Int64),
				Value: value.String,
			})
		}
	}
	return hits, rows.Err()
}

// EachRecord calls fn for every record in file_id order, streaming rows so
// only one record is alive at a time.
func (s *SQLiteStore) EachRecord(ctx context.Context, fn func(api.FileRecord) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM files ORDER BY file_id`)
	if err != nil {
		return fmt.Errorf("query files: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return fmt.Errorf("scan file: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Open returns the stored content of a regular file. A file without a
// content blob reads as empty.
func (s *SQLiteStore) Open(ctx context.Context, id int64) (io.ReadCloser, error) {
	var (
		metaType int
		data     []byte
	)
	err := s.db.QueryRowContext(ctx, `SELECT meta_type, content FROM files WHERE file_id = ?`, id).Scan(&metaType, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read content of %d: %w", id, err)
	}
	if api.MetaType(metaType) == api.MetaDirectory {
		return nil, fmt.Errorf("file %d is a directory", id)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

var _ Store = (*SQLiteStore)(nil)
