// Package ingest builds image indexes: it walks a host directory into file
// records, flags records with rule sets, and imports hits produced elsewhere.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/h2non/filetype"

	"github.com/agentic-research/harvest/api"
)

// RootID is the id given to the indexed directory itself.
const RootID int64 = 1

// sniffLen is how much of a file filetype needs to recognize it.
const sniffLen = 262

// IndexOptions tunes IndexDirectory.
type IndexOptions struct {
	// Exclude holds base-name glob patterns (path.Match syntax). Matching
	// entries are skipped; a matching directory is skipped with its subtree.
	Exclude []string
	Logger  *slog.Logger
}

// Stats summarizes an IndexDirectory run.
type Stats struct {
	Files   int
	Dirs    int
	Skipped int
	Bytes   int64
}

// IndexDirectory walks root depth-first in lexical order and writes one
// record per directory and regular file. Ids are assigned in visit order
// starting at RootID, which is the root directory itself: its own parent,
// named after the directory's base name. Symlinks and special files are
// skipped.
func IndexDirectory(ctx context.Context, root string, w RecordWriter, opts IndexOptions) (Stats, error) {
	var stats Stats
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return stats, fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return stats, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("%s is not a directory", root)
	}

	ids := make(map[string]int64)
	next := RootID

	err = filepath.WalkDir(resolved, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == resolved {
				return walkErr
			}
			log.Warn("index: skipping unreadable entry", "path", p, "error", walkErr)
			stats.Skipped++
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if p == resolved {
			ids[p] = next
			rec := api.FileRecord{ID: next, ParentID: next, Name: rootName(resolved), Type: api.MetaDirectory}
			next++
			stats.Dirs++
			return w.AddFile(rec, nil)
		}

		name := d.Name()
		if excluded(name, opts.Exclude) {
			stats.Skipped++
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		parentID, ok := ids[filepath.Dir(p)]
		if !ok {
			return fmt.Errorf("index: parent of %s was not indexed", p)
		}

		switch {
		case d.IsDir():
			id := next
			next++
			ids[p] = id
			stats.Dirs++
			return w.AddFile(api.FileRecord{ID: id, ParentID: parentID, Name: name, Type: api.MetaDirectory}, nil)

		case d.Type().IsRegular():
			data, err := os.ReadFile(p)
			if err != nil {
				log.Warn("index: skipping unreadable file", "path", p, "error", err)
				stats.Skipped++
				return nil
			}
			id := next
			next++
			rec := api.FileRecord{
				ID:       id,
				ParentID: parentID,
				Name:     name,
				Type:     api.MetaFile,
				Size:     int64(len(data)),
				MIME:     sniffMIME(data),
			}
			stats.Files++
			stats.Bytes += rec.Size
			return w.AddFile(rec, data)

		default:
			log.Debug("index: skipping non-regular entry", "path", p, "mode", d.Type().String())
			stats.Skipped++
			return nil
		}
	})
	if err != nil {
		return stats, fmt.Errorf("index %s: %w", root, err)
	}

	log.Info("index complete", "root", root, "files", stats.Files, "dirs", stats.Dirs,
		"skipped", stats.Skipped, "bytes", stats.Bytes)
	return stats, nil
}

// sniffMIME returns the detected MIME type, or "" when unknown.
func sniffMIME(data []byte) string {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}

// rootName is the base name of dir, or "" for a filesystem root.
func rootName(dir string) string {
	base := filepath.Base(dir)
	if base == "." || base == string(filepath.Separator) || base == filepath.VolumeName(dir)+string(filepath.Separator) {
		return ""
	}
	return base
}

func excluded(name string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := path.Match(pat, name); ok {
			return true
		}
	}
	return false
}
