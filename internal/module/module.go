// Package module adapts the materializer to a host pipeline's module life
// cycle: initialize once with an argument string, report, finalize.
package module

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/agentic-research/harvest/api"
	"github.com/agentic-research/harvest/internal/content"
	"github.com/agentic-research/harvest/internal/materialize"
	"github.com/agentic-research/harvest/internal/store"
)

// Module is the contract a host pipeline drives.
type Module interface {
	// Initialize receives the module's argument string from the pipeline
	// configuration.
	Initialize(args string) api.Status
	// Report does the module's work. StatusStop asks the host to halt.
	Report(ctx context.Context) api.Status
	// Finalize releases whatever Initialize and Report acquired.
	Finalize() api.Status
}

// SaveInterestingFiles copies every interesting-file hit into an output
// directory given as the module argument.
type SaveInterestingFiles struct {
	store   store.Store
	source  content.Source
	log     *slog.Logger
	opts    []materialize.Option
	outRoot string
	initErr error
}

// New builds the module over a record store and a content source.
// Extra options are handed to the materializer.
func New(st store.Store, src content.Source, log *slog.Logger, opts ...materialize.Option) *SaveInterestingFiles {
	if log == nil {
		log = slog.Default()
	}
	return &SaveInterestingFiles{store: st, source: src, log: log, opts: opts}
}

// Initialize records the output directory. It always returns StatusOK so a
// bad argument does not disable the surrounding pipeline; problems are
// reported by Report.
func (m *SaveInterestingFiles) Initialize(args string) api.Status {
	m.outRoot = parseOutputArg(args)
	m.initErr = nil
	if m.outRoot == "" {
		m.initErr = materialize.ConfigError("missing output directory argument")
		m.log.Error("save interesting files: initialize", "error", m.initErr)
		return api.StatusOK
	}
	m.log.Info("save interesting files: initialized", "output", m.outRoot)
	return api.StatusOK
}

// Report creates the output root and saves every hit into it.
func (m *SaveInterestingFiles) Report(ctx context.Context) api.Status {
	if m.initErr != nil || m.outRoot == "" {
		err := m.initErr
		if err == nil {
			err = materialize.ConfigError("output directory is empty")
		}
		m.log.Error("save interesting files: report", "error", err)
		return api.StatusFail
	}
	if err := prepareRoot(m.outRoot); err != nil {
		m.log.Error("save interesting files: report", "error", err)
		return api.StatusFail
	}

	m.log.Info("save interesting files: run", "output", m.outRoot)
	out := osfs.New(m.outRoot)
	opts := append([]materialize.Option{materialize.WithLogger(m.log)}, m.opts...)
	mat := materialize.New(out, m.store, content.NewCopier(m.source, out), opts...)
	return mat.ProcessHits(ctx)
}

// Finalize holds no resources.
func (m *SaveInterestingFiles) Finalize() api.Status {
	return api.StatusOK
}

// OutputRoot returns the directory set by Initialize.
func (m *SaveInterestingFiles) OutputRoot() string {
	return m.outRoot
}

// parseOutputArg trims the argument and strips one pair of surrounding
// double quotes left over from XML or YAML pipeline configs.
func parseOutputArg(args string) string {
	s := strings.TrimSpace(args)
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	return strings.TrimSpace(s)
}

// prepareRoot creates root if needed and checks it is a writable directory.
func prepareRoot(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return materialize.ConfigError("create output directory %s: %w", root, err)
	}
	st, err := os.Stat(root)
	if err != nil {
		return materialize.ConfigError("stat output directory %s: %w", root, err)
	}
	if !st.IsDir() {
		return materialize.ConfigError("output path %s is not a directory", root)
	}
	if err := checkWritable(root); err != nil {
		return materialize.ConfigError("output directory %s is not writable: %w", root, err)
	}
	return nil
}

var _ Module = (*SaveInterestingFiles)(nil)

// String names the module in host logs.
func (m *SaveInterestingFiles) String() string {
	return fmt.Sprintf("SaveInterestingFiles(%s)", m.outRoot)
}
