package store

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// schema is the image index layout shared by SQLiteWriter and SQLiteStore.
// meta_type uses the api.MetaType values (1 = file, 2 = directory).
const schema = `
CREATE TABLE IF NOT EXISTS files (
	file_id INTEGER PRIMARY KEY,
	par_file_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	meta_type INTEGER NOT NULL,
	size INTEGER DEFAULT 0,
	mime TEXT,
	content BLOB
);
CREATE INDEX IF NOT EXISTS idx_files_parent ON files(par_file_id);

CREATE TABLE IF NOT EXISTS artifacts (
	artifact_id INTEGER PRIMARY KEY AUTOINCREMENT,
	obj_id INTEGER NOT NULL,
	artifact_type_id INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_type ON artifacts(artifact_type_id);

CREATE TABLE IF NOT EXISTS attributes (
	artifact_id INTEGER NOT NULL,
	seq INTEGER NOT NULL,
	attribute_type_id INTEGER NOT NULL,
	value_text TEXT,
	PRIMARY KEY (artifact_id, seq)
) WITHOUT ROWID;
`

// sqliteURI turns a filesystem path into a "file:" URI for the driver.
// The path is percent-escaped so '?', '#' and '%' in it are not read as
// URI syntax; query carries SQLite URI parameters such as "mode=ro".
func sqliteURI(dbPath, query string) (string, error) {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dbPath, err)
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p, RawQuery: query}
	return u.String(), nil
}
