package content

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	billy "github.com/go-git/go-billy/v5"
	"github.com/zeebo/blake3"
)

// Digest is a BLAKE3-256 digest of copied bytes.
type Digest [32]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Result describes one completed copy.
type Result struct {
	Size   int64
	Digest Digest
}

// Copier writes file content from a Source into a billy filesystem.
// Destinations are truncated, so copying the same file twice leaves one
// identical file behind.
type Copier struct {
	src Source
	fs  billy.Filesystem
}

// NewCopier returns a Copier reading from src and writing into fs.
func NewCopier(src Source, fs billy.Filesystem) *Copier {
	return &Copier{src: src, fs: fs}
}

// CopyFile streams the content of fileID to dst. The parent directory of dst
// must exist. On failure the partial destination file is removed.
func (c *Copier) CopyFile(ctx context.Context, fileID int64, dst string) (Result, error) {
	in, err := c.src.Open(ctx, fileID)
	if err != nil {
		return Result{}, fmt.Errorf("open content of %d: %w", fileID, err)
	}
	defer func() { _ = in.Close() }() // safe to ignore

	out, err := c.fs.Create(dst)
	if err != nil {
		return Result{}, fmt.Errorf("create %s: %w", dst, err)
	}

	h := blake3.New()
	n, err := io.Copy(io.MultiWriter(out, h), &ctxReader{ctx: ctx, r: in})
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = c.fs.Remove(dst) // best-effort cleanup
		return Result{}, fmt.Errorf("copy %d to %s: %w", fileID, dst, err)
	}

	var res Result
	res.Size = n
	copy(res.Digest[:], h.Sum(nil))
	return res, nil
}

// ctxReader stops a long copy once the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
