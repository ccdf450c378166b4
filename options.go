// Functional options for client construction and transfer calls.

package hdfs

import (
	"net/http"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/mtth/hdfs/hdfstypes"
)

// WithNamenodes sets the ordered candidate namenode base URLs for the
// cluster. The first reachable one becomes the active endpoint; the rest
// are failover candidates, tried in order.
func WithNamenodes(urls ...string) hdfstypes.Option {
	return func(c *hdfstypes.ClientConfig) {
		c.Namenodes = append(c.Namenodes, urls...)
	}
}

// WithRoot sets the absolute path prepended to relative remote paths.
// Without a root, relative paths are rejected.
func WithRoot(root string) hdfstypes.Option {
	return func(c *hdfstypes.ClientConfig) {
		c.Root = root
	}
}

// WithSession injects the pre-authenticated HTTP session used for every
// request. The session owns authentication (basic, token, negotiated);
// the client never performs the handshake itself.
func WithSession(session *http.Client) hdfstypes.Option {
	return func(c *hdfstypes.ClientConfig) {
		c.Session = session
	}
}

// WithTimeout bounds each individual metadata request. Zero disables the
// bound. Data streams of large transfers are not subject to it.
func WithTimeout(timeout time.Duration) hdfstypes.Option {
	return func(c *hdfstypes.ClientConfig) {
		c.Timeout = timeout
	}
}

// WithMaxRetries bounds retries of idempotent operations on transient
// failures. Default is 2. Non-idempotent mutations are never retried.
func WithMaxRetries(maxRetries int) hdfstypes.Option {
	return func(c *hdfstypes.ClientConfig) {
		if maxRetries >= 0 {
			c.MaxRetries = maxRetries
		}
	}
}

// WithLocalFilesystem substitutes the local filesystem used by Upload and
// Download. Defaults to the OS filesystem; tests pass an in-memory one.
func WithLocalFilesystem(fs billy.Filesystem) hdfstypes.Option {
	return func(c *hdfstypes.ClientConfig) {
		c.Filesystem = fs
	}
}

// WithThreads sets the transfer worker pool size. A positive value bounds
// the pool, zero allocates one worker per discovered task. Without this
// option transfers run strictly sequentially.
func WithThreads(threads int) hdfstypes.TransferOption {
	return func(c *hdfstypes.TransferOptionConfig) {
		if threads >= 0 {
			c.Threads = threads
		}
	}
}

// WithChunkSize sets the streaming chunk size in bytes. Every chunk
// boundary is a progress reporting point. Default is 64 KiB.
func WithChunkSize(chunkSize int64) hdfstypes.TransferOption {
	return func(c *hdfstypes.TransferOptionConfig) {
		if chunkSize > 0 {
			c.ChunkSize = chunkSize
		}
	}
}

// WithOverwrite allows transfers to replace existing destinations. When
// unset, a batch touching any existing destination is rejected before a
// single byte moves.
func WithOverwrite(overwrite bool) hdfstypes.TransferOption {
	return func(c *hdfstypes.TransferOptionConfig) {
		c.Overwrite = overwrite
	}
}

// WithProgress registers a progress callback. It receives
// (sourcePath, bytesSoFar) at each chunk boundary and (sourcePath, -1)
// exactly once when that path finishes, whether it succeeded or failed.
// hdfstypes.Progress satisfies the contract out of the box.
func WithProgress(fn hdfstypes.ProgressFunc) hdfstypes.TransferOption {
	return func(c *hdfstypes.TransferOptionConfig) {
		c.Progress = fn
	}
}
