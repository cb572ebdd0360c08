// Package content streams reconstructed file content out of a source image
// into an output filesystem.
package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// Source yields the content of a file record.
type Source interface {
	Open(ctx context.Context, fileID int64) (io.ReadCloser, error)
}

// DirSource serves content from a carved-file directory, where each
// extracted file lives at <dir>/<fileID>.
type DirSource struct {
	dir string
}

// NewDirSource serves carved files from dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Open implements Source.
func (d *DirSource) Open(_ context.Context, fileID int64) (io.ReadCloser, error) {
	p := filepath.Join(d.dir, strconv.FormatInt(fileID, 10))
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no carved content for file %d: %w", fileID, err)
		}
		return nil, err
	}
	return f, nil
}
