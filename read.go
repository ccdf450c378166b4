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

// FileReader streams the content of a remote file from a datanode. It
// owns the underlying connection: Close always releases it, whether the
// stream was fully consumed, partially consumed or abandoned after an
// error.
type FileReader struct {
	body io.ReadCloser
}

// Read implements io.Reader with strict in-order byte delivery.
func (r *FileReader) Read(p []byte) (int, error) {
	return r.body.Read(p)
}

// Close releases the underlying connection. Safe to call more than once.
func (r *FileReader) Close() error {
	if r.body == nil {
		return nil
	}
	body := r.body
	r.body = nil
	return body.Close()
}

// Open starts reading a remote file from the beginning.
func (c *Client) Open(ctx context.Context, p string) (*FileReader, error) {
	return c.OpenRange(ctx, p, 0, 0)
}

// OpenRange starts reading a remote file at offset; a positive length
// bounds the number of bytes served. The OPEN exchange is two-phase: the
// namenode redirects to the datanode holding the blocks and the data is
// fetched from there directly.
func (c *Client) OpenRange(ctx context.Context, p string, offset, length int64) (*FileReader, error) {
	resolved, err := c.resolver.resolve(ctx, p)
	if err != nil {
		return nil, hdfserrors.NewPathError("open", p, err)
	}
	params := url.Values{}
	if offset > 0 {
		params.Set("offset", strconv.FormatInt(offset, 10))
	}
	if length > 0 {
		params.Set("length", strconv.FormatInt(length, 10))
	}
	resp, err := c.transport.Call(ctx, &transport.Request{
		Method:     http.MethodGet,
		Op:         "OPEN",
		Path:       resolved,
		Params:     params,
		Idempotent: true,
		TwoPhase:   true,
	})
	if err != nil {
		return nil, hdfserrors.NewPathError("open", resolved, err)
	}
	return &FileReader{body: resp.Body}, nil
}

// ReadAll reads a whole remote file into memory. Only use it for files
// known to be small; prefer Open for anything sizable.
func (c *Client) ReadAll(ctx context.Context, p string) ([]byte, error) {
	reader, err := c.Open(ctx, p)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, hdfserrors.NewPathError("read", p, err)
	}
	return data, nil
}
