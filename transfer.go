// Upload and Download: the batch transfer surface, delegating to the
// concurrent engine in internal/transfer.

package hdfs

import (
	"context"
	"io"

	hdfserrors "github.com/mtth/hdfs/errors"
	"github.com/mtth/hdfs/hdfstypes"
	"github.com/mtth/hdfs/internal/transfer"
)

// Upload copies a local file or directory tree to the remote filesystem.
// Directory trees are flattened into independent per-file tasks consumed
// by a worker pool; each file streams into a temporary remote location
// and is renamed into place only after the stream completed cleanly.
//
// With WithOverwrite unset, the whole batch is rejected before any byte
// moves if any destination already exists. If some tasks fail the others
// still run to completion and one aggregate error lists every failed
// path; files committed before a failure stay committed.
func (c *Client) Upload(ctx context.Context, localSrc, remoteDst string, opts ...hdfstypes.TransferOption) error {
	cfg := transferConfig(opts)
	resolved, err := c.resolver.resolve(ctx, remoteDst)
	if err != nil {
		return hdfserrors.NewPathError("upload", remoteDst, err)
	}
	return transfer.New(engineRemote{c}, c.fs).Upload(ctx, localSrc, resolved, cfg)
}

// Download copies a remote file or directory tree to the local
// filesystem, with the same batching, atomic-commit, progress and
// aggregate-error semantics as Upload.
func (c *Client) Download(ctx context.Context, remoteSrc, localDst string, opts ...hdfstypes.TransferOption) error {
	cfg := transferConfig(opts)
	resolved, err := c.resolver.resolve(ctx, remoteSrc)
	if err != nil {
		return hdfserrors.NewPathError("download", remoteSrc, err)
	}
	return transfer.New(engineRemote{c}, c.fs).Download(ctx, resolved, localDst, cfg)
}

func transferConfig(opts []hdfstypes.TransferOption) transfer.Config {
	// Threads starts below zero so the engine can tell "unspecified"
	// (sequential) apart from an explicit zero (one worker per task).
	// The chunk size stays zero here; the engine owns its default.
	optCfg := &hdfstypes.TransferOptionConfig{
		Threads: -1,
	}
	for _, opt := range opts {
		opt(optCfg)
	}
	return transfer.Config{
		Threads:   optCfg.Threads,
		ChunkSize: optCfg.ChunkSize,
		Overwrite: optCfg.Overwrite,
		Progress:  optCfg.Progress,
	}
}

// engineRemote adapts the client to the engine's Remote interface. The
// paths the engine passes are already resolved; resolving them again is
// harmless because resolution is idempotent.
type engineRemote struct {
	c *Client
}

func (r engineRemote) Status(ctx context.Context, p string) (*hdfstypes.FileStatus, error) {
	return r.c.Status(ctx, p)
}

func (r engineRemote) List(ctx context.Context, p string) ([]hdfstypes.FileStatus, error) {
	return r.c.List(ctx, p)
}

func (r engineRemote) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	return r.c.Open(ctx, p)
}

func (r engineRemote) Create(ctx context.Context, p string, overwrite bool, contentType string) (io.WriteCloser, error) {
	return r.c.Create(ctx, p,
		WithWriteOverwrite(overwrite),
		WithContentType(contentType),
	)
}

func (r engineRemote) Rename(ctx context.Context, src, dst string) error {
	return r.c.Rename(ctx, src, dst)
}

func (r engineRemote) Delete(ctx context.Context, p string, recursive bool) error {
	return r.c.Delete(ctx, p, recursive)
}

func (r engineRemote) Mkdirs(ctx context.Context, p string) error {
	return r.c.Mkdirs(ctx, p, "")
}
