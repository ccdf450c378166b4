package hdfs

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	hdfserrors "github.com/mtth/hdfs/errors"
	"github.com/mtth/hdfs/internal/transport"
)

// FileWriter streams data into a remote file. Bytes written to it are
// forwarded to the datanode request in the background through a pipe;
// Close finishes the stream, waits for the server verdict and returns it.
// Abandoning a writer without Close leaks the request goroutine until the
// context is cancelled, so always close on every exit path.
type FileWriter struct {
	pw   *io.PipeWriter
	done chan struct{}
	err  error
}

// Write forwards p to the in-flight datanode request. If the request has
// already failed, the failure is returned here.
func (w *FileWriter) Write(p []byte) (int, error) {
	n, err := w.pw.Write(p)
	if err != nil {
		// The pipe reports the error the request goroutine closed it
		// with; surface that rather than the bare pipe error.
		select {
		case <-w.done:
			if w.err != nil {
				return n, w.err
			}
		default:
		}
		return n, err
	}
	return n, nil
}

// Close flushes the stream, waits for the datanode exchange to finish and
// returns its outcome. Exactly one Close is required; later calls return
// the same verdict.
func (w *FileWriter) Close() error {
	w.pw.Close()
	<-w.done
	return w.err
}

// WriteOption configures Create and Append.
type WriteOption func(*writeConfig)

type writeConfig struct {
	overwrite   bool
	contentType string
	permission  string
	replication int
	blockSize   int64
}

// WithWriteOverwrite allows Create to replace an existing file. Creates
// without it fail with ErrAlreadyExists and are never silently retried.
func WithWriteOverwrite(overwrite bool) WriteOption {
	return func(c *writeConfig) { c.overwrite = overwrite }
}

// WithContentType sets the Content-Type of the upload payload.
func WithContentType(contentType string) WriteOption {
	return func(c *writeConfig) { c.contentType = contentType }
}

// WithPermission sets the octal permission string of the created file.
func WithPermission(perm string) WriteOption {
	return func(c *writeConfig) { c.permission = perm }
}

// WithReplication sets the replication factor of the created file.
func WithReplication(replication int) WriteOption {
	return func(c *writeConfig) { c.replication = replication }
}

// WithBlockSize sets the block size of the created file, in bytes.
func WithBlockSize(blockSize int64) WriteOption {
	return func(c *writeConfig) { c.blockSize = blockSize }
}

// Create opens a writer to a new remote file. The exchange is two-phase:
// the namenode picks a datanode and the payload streams there directly.
// A create without overwrite is not idempotent, so transient failures
// surface immediately instead of being retried.
func (c *Client) Create(ctx context.Context, p string, opts ...WriteOption) (*FileWriter, error) {
	cfg := &writeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	params := url.Values{"overwrite": {strconv.FormatBool(cfg.overwrite)}}
	if cfg.permission != "" {
		params.Set("permission", cfg.permission)
	}
	if cfg.replication > 0 {
		params.Set("replication", strconv.Itoa(cfg.replication))
	}
	if cfg.blockSize > 0 {
		params.Set("blocksize", strconv.FormatInt(cfg.blockSize, 10))
	}
	return c.startWrite(ctx, "create", p, &transport.Request{
		Method:     http.MethodPut,
		Op:         "CREATE",
		Params:     params,
		Idempotent: cfg.overwrite,
	}, cfg.contentType)
}

// Append opens a writer adding to the end of an existing remote file.
// Appends are never idempotent.
func (c *Client) Append(ctx context.Context, p string, opts ...WriteOption) (*FileWriter, error) {
	cfg := &writeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return c.startWrite(ctx, "append", p, &transport.Request{
		Method: http.MethodPost,
		Op:     "APPEND",
		Params: url.Values{},
	}, cfg.contentType)
}

func (c *Client) startWrite(ctx context.Context, op, p string, req *transport.Request, contentType string) (*FileWriter, error) {
	resolved, err := c.resolver.resolve(ctx, p)
	if err != nil {
		return nil, hdfserrors.NewPathError(op, p, err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	pr, pw := io.Pipe()
	req.Path = resolved
	req.Body = pr
	req.ContentType = contentType
	req.TwoPhase = true

	writer := &FileWriter{pw: pw, done: make(chan struct{})}
	go func() {
		defer close(writer.done)
		resp, err := c.transport.Call(ctx, req)
		if err != nil {
			writer.err = hdfserrors.NewPathError(op, resolved, err)
			// Unblock the producer; its next Write fails with this.
			pr.CloseWithError(writer.err)
			return
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	return writer, nil
}
