package store

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/agentic-research/harvest/api"
	_ "modernc.org/sqlite"
)

// SQLiteWriter builds an image index. Inserts are batched into
// transactions of batchSize rows; Close commits the tail.
type SQLiteWriter struct {
	db        *sql.DB
	tx        *sql.Tx
	stmtFile  *sql.Stmt
	stmtArt   *sql.Stmt
	stmtAttr  *sql.Stmt
	batchSize int
	count     int
	mu        sync.Mutex
}

// NewSQLiteWriter opens (or creates) the index at dbPath and ensures the schema exists.
func NewSQLiteWriter(dbPath string) (*SQLiteWriter, error) {
	dsn, err := sqliteURI(dbPath, "")
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// A single connection keeps every statement on the open transaction.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = MEMORY"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	w := &SQLiteWriter{
		db:        db,
		batchSize: 10000,
	}
	if err := w.beginTx(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLiteWriter) beginTx() error {
	var err error
	w.tx, err = w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	w.stmtFile, err = w.tx.Prepare(`
		INSERT OR REPLACE INTO files (file_id, par_file_id, name, meta_type, size, mime, content)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare files insert: %w", err)
	}
	w.stmtArt, err = w.tx.Prepare(`INSERT INTO artifacts (obj_id, artifact_type_id) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare artifacts insert: %w", err)
	}
	w.stmtAttr, err = w.tx.Prepare(`
		INSERT INTO attributes (artifact_id, seq, attribute_type_id, value_text)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare attributes insert: %w", err)
	}
	return nil
}

func (w *SQLiteWriter) commitTx() error {
	for _, st := range []*sql.Stmt{w.stmtFile, w.stmtArt, w.stmtAttr} {
		if st != nil {
			_ = st.Close()
		}
	}
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// tick counts one written row and rolls the transaction over when the
// batch is full. Must be called with w.mu held.
func (w *SQLiteWriter) tick() error {
	w.count++
	if w.count < w.batchSize {
		return nil
	}
	w.count = 0
	if err := w.commitTx(); err != nil {
		return err
	}
	return w.beginTx()
}

// AddFile writes one file record. content is stored only for regular files.
func (w *SQLiteWriter) AddFile(rec api.FileRecord, content []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var blob any
	if rec.Type == api.MetaFile {
		if rec.Size == 0 {
			rec.Size = int64(len(content))
		}
		if content != nil {
			blob = content
		}
	}
	var mime any
	if rec.MIME != "" {
		mime = rec.MIME
	}

	if _, err := w.stmtFile.Exec(rec.ID, rec.ParentID, rec.Name, int(rec.Type), rec.Size, mime, blob); err != nil {
		return fmt.Errorf("insert file %d: %w", rec.ID, err)
	}
	return w.tick()
}

// AddHit writes an artifact about subjectID with its attributes in order,
// and returns the new artifact id.
func (w *SQLiteWriter) AddHit(t api.ArtifactType, subjectID int64, attrs ...api.Attribute) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	res, err := w.stmtArt.Exec(subjectID, int(t))
	if err != nil {
		return 0, fmt.Errorf("insert artifact for file %d: %w", subjectID, err)
	}
	artID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("artifact id: %w", err)
	}
	for i, a := range attrs {
		if _, err := w.stmtAttr.Exec(artID, i, int(a.Type), a.Value); err != nil {
			return 0, fmt.Errorf("insert attribute %d of artifact %d: %w", i, artID, err)
		}
	}
	return artID, w.tick()
}

// Close commits pending rows and closes the database.
func (w *SQLiteWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.commitTx(); err != nil {
		_ = w.db.Close()
		return err
	}
	return w.db.Close()
}
