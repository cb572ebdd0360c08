// Package materialize reconstructs flagged files and directories from a
// record store as real entries under an output root, grouped by the name of
// the rule set that flagged them.
//
// Layout under the output root:
//
//	<set>/<fileId>_<name>                    flagged file
//	<set>/<fileId>_<name>/<name>/...         flagged directory and its subtree
//
// Only the top-level entry carries the file id prefix. Below the container,
// names are taken verbatim and rely on sibling names being unique within one
// source directory.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	billy "github.com/go-git/go-billy/v5"

	"github.com/agentic-research/harvest/api"
	"github.com/agentic-research/harvest/internal/content"
	"github.com/agentic-research/harvest/internal/store"
)

const dirPerm = 0o755

// Copier streams the content of a file record to a path on the output filesystem.
type Copier interface {
	CopyFile(ctx context.Context, fileID int64, dst string) (content.Result, error)
}

// Materializer turns interesting-file hits into a directory tree.
// The output root is the root of its filesystem and never changes.
type Materializer struct {
	fs       billy.Filesystem
	store    store.Store
	copier   Copier
	log      *slog.Logger
	newGuard func() Guard
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithLogger sets the logger used for per-hit reporting.
func WithLogger(l *slog.Logger) Option {
	return func(m *Materializer) { m.log = l }
}

// WithGuard sets the factory for the per-hit cycle guard. A nil factory
// disables cycle detection.
func WithGuard(fn func() Guard) Option {
	return func(m *Materializer) { m.newGuard = fn }
}

// New returns a Materializer writing under the root of fs.
func New(fs billy.Filesystem, st store.Store, cp Copier, opts ...Option) *Materializer {
	m := &Materializer{
		fs:       fs,
		store:    st,
		copier:   cp,
		log:      slog.Default(),
		newGuard: NewBitmapGuard,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Root returns the output root all paths are created under.
func (m *Materializer) Root() string {
	return m.fs.Root()
}

// ProcessHits saves every interesting-file hit in store order. A failing hit
// is logged and skipped; the result is StatusFail if any hit failed.
func (m *Materializer) ProcessHits(ctx context.Context) api.Status {
	hits, err := m.store.HitsOfType(ctx, api.ArtifactInterestingFileHit)
	if err != nil {
		m.log.Error("listing interesting files failed", "error", err)
		return api.StatusFail
	}
	m.log.Info("found interesting files", "count", len(hits))

	status := api.StatusOK
	for _, hit := range hits {
		if err := ctx.Err(); err != nil {
			m.log.Error("run abandoned", "error", err)
			return api.StatusFail
		}
		if err := m.processHit(ctx, hit); err != nil {
			status = api.StatusFail
		}
	}
	return status
}

// processHit saves one hit once per set-name attribute. Every failure is
// logged here; the joined error only signals that something failed.
func (m *Materializer) processHit(ctx context.Context, hit api.Hit) error {
	rec, err := m.store.GetFileRecord(ctx, hit.SubjectID)
	if err != nil {
		err = newError(KindLookup, hit.SubjectID, "", err)
		m.log.Error("resolving hit failed", "artifact_id", hit.ArtifactID, "file_id", hit.SubjectID, "error", err)
		return err
	}

	sets := hit.SetNames()
	if len(sets) == 0 {
		// No rule set named: save straight under the root.
		sets = []string{""}
	}

	var errs []error
	for _, set := range sets {
		if err := m.save(ctx, rec, set); err != nil {
			m.log.Error("saving hit failed", "file_id", rec.ID, "set", set, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Materializer) save(ctx context.Context, rec api.FileRecord, setName string) error {
	if rec.IsDir() {
		return m.SaveDirectoryTree(ctx, rec, setName)
	}
	return m.SaveFile(ctx, rec, setName)
}

// SaveFile copies a single file record to <root>/<setName>/<fileId>_<name>.
func (m *Materializer) SaveFile(ctx context.Context, rec api.FileRecord, setName string) error {
	name, err := entryName(rec)
	if err != nil {
		return err
	}
	setDir, err := m.ensureSetDir(rec.ID, setName)
	if err != nil {
		return err
	}

	dst := m.fs.Join(setDir, prefixed(rec.ID, name))
	res, err := m.copier.CopyFile(ctx, rec.ID, dst)
	if err != nil {
		return newError(KindCopy, rec.ID, m.abs(dst), err)
	}
	m.log.Info("saved file", "file_id", rec.ID, "set", setName, "path", m.abs(dst),
		"size", res.Size, "blake3", res.Digest.String())
	return nil
}

// SaveDirectoryTree reconstructs a directory record and its whole subtree
// under <root>/<setName>/<fileId>_<name>/<name>/.
func (m *Materializer) SaveDirectoryTree(ctx context.Context, rec api.FileRecord, setName string) error {
	name, err := entryName(rec)
	if err != nil {
		return err
	}
	setDir, err := m.ensureSetDir(rec.ID, setName)
	if err != nil {
		return err
	}

	inner := m.fs.Join(setDir, prefixed(rec.ID, name), name)
	if err := m.fs.MkdirAll(inner, dirPerm); err != nil {
		return newError(KindDirectoryCreate, rec.ID, m.abs(inner), err)
	}

	var guard Guard
	if m.newGuard != nil {
		guard = m.newGuard()
		guard.Visit(rec.ID)
	}
	if err := m.copyDirectoryContents(ctx, inner, rec.ID, guard); err != nil {
		return err
	}
	m.log.Info("saved directory", "file_id", rec.ID, "set", setName, "path", m.abs(inner))
	return nil
}

// CopyDirectoryContents recreates every child of parentID below dest,
// recursing into subdirectories. The first failure aborts the walk.
func (m *Materializer) CopyDirectoryContents(ctx context.Context, dest string, parentID int64) error {
	var guard Guard
	if m.newGuard != nil {
		guard = m.newGuard()
		guard.Visit(parentID)
	}
	return m.copyDirectoryContents(ctx, dest, parentID, guard)
}

func (m *Materializer) copyDirectoryContents(ctx context.Context, dest string, parentID int64, guard Guard) error {
	children, err := m.store.ListChildren(ctx, parentID)
	if err != nil {
		return newError(KindLookup, parentID, m.abs(dest), err)
	}

	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return err
		}
		if child.Name == "." || child.Name == ".." {
			continue
		}
		if err := validName(child.Name); err != nil {
			return newError(KindInvalidName, child.ID, m.abs(dest), err)
		}

		p := m.fs.Join(dest, child.Name)
		if !child.IsDir() {
			res, err := m.copier.CopyFile(ctx, child.ID, p)
			if err != nil {
				return newError(KindCopy, child.ID, m.abs(p), err)
			}
			m.log.Debug("copied file", "file_id", child.ID, "path", m.abs(p), "size", res.Size)
			continue
		}

		if guard != nil && !guard.Visit(child.ID) {
			return newError(KindCycle, child.ID, m.abs(p),
				fmt.Errorf("directory %d reached twice under %d", child.ID, parentID))
		}
		if err := m.fs.MkdirAll(p, dirPerm); err != nil {
			return newError(KindDirectoryCreate, child.ID, m.abs(p), err)
		}
		if err := m.copyDirectoryContents(ctx, p, child.ID, guard); err != nil {
			return err
		}
	}
	return nil
}

// ensureSetDir creates <root>/<setName> and returns its path. An empty set
// name selects the root itself.
func (m *Materializer) ensureSetDir(fileID int64, setName string) (string, error) {
	if setName == "" {
		return "", nil
	}
	if err := validName(setName); err != nil {
		return "", newError(KindInvalidName, fileID, "", fmt.Errorf("set %w", err))
	}
	if err := m.fs.MkdirAll(setName, dirPerm); err != nil {
		return "", newError(KindDirectoryCreate, fileID, m.abs(setName), err)
	}
	return setName, nil
}

func (m *Materializer) abs(rel string) string {
	return m.fs.Join(m.fs.Root(), rel)
}

// unnamedRootName stands in for the empty name of an image root directory.
const unnamedRootName = "root"

// entryName returns the name a flagged record is saved under. It is checked
// before anything is created so a rejected record leaves no trace.
func entryName(rec api.FileRecord) (string, error) {
	name := rec.Name
	if name == "" && isImageRoot(rec) {
		name = unnamedRootName
	}
	if err := validName(name); err != nil {
		return "", newError(KindInvalidName, rec.ID, "", err)
	}
	return name, nil
}

// isImageRoot reports whether rec is the top directory of its index, which
// names itself or 0 as parent.
func isImageRoot(rec api.FileRecord) bool {
	return rec.IsDir() && (rec.ParentID == rec.ID || rec.ParentID == 0)
}

// prefixed is the collision-free top-level name of a record.
func prefixed(id int64, name string) string {
	return strconv.FormatInt(id, 10) + "_" + name
}

// validName rejects names that would leave their parent directory.
func validName(name string) error {
	switch {
	case name == "":
		return errors.New("name is empty")
	case name == "." || name == "..":
		return fmt.Errorf("name %q is a directory reference", name)
	case strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator):
		return fmt.Errorf("name %q contains a path separator", name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("name %q contains NUL", name)
	}
	return nil
}
