package hdfs

import (
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	hdfserrors "github.com/mtth/hdfs/errors"
	"github.com/mtth/hdfs/hdfstypes"
	"github.com/mtth/hdfs/internal/transport"
)

// Client is a WebHDFS client session. It is safe for concurrent use; the
// only mutable state it shares across callers is the transport's active
// endpoint pointer, which is synchronized internally.
type Client struct {
	transport *transport.Transport
	resolver  *resolver
	fs        billy.Filesystem
	config    hdfstypes.ClientConfig
}

// New creates a new client from functional options.
//
// Example:
//
//	client, err := hdfs.New(
//	    hdfs.WithNamenodes("http://nn1:9870", "http://nn2:9870"),
//	    hdfs.WithRoot("/user/alice"),
//	)
func New(opts ...hdfstypes.Option) (*Client, error) {
	cfg := &hdfstypes.ClientConfig{
		MaxRetries: 2,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return NewFromConfig(cfg)
}

// NewFromConfig creates a client from an externally assembled
// configuration. This is the constructor registered under the "insecure"
// identifier in the client registry.
func NewFromConfig(cfg *hdfstypes.ClientConfig) (*Client, error) {
	if cfg.Root != "" && !strings.HasPrefix(cfg.Root, "/") {
		return nil, hdfserrors.New("new",
			hdfserrors.ErrInvalidConfig).WithMessage("root must be an absolute path")
	}
	tr, err := transport.New(cfg.Namenodes, cfg.Session, cfg.Timeout, cfg.MaxRetries)
	if err != nil {
		return nil, hdfserrors.New("new", err)
	}
	localFS := cfg.Filesystem
	if localFS == nil {
		localFS = osfs.New("/")
	}
	c := &Client{
		transport: tr,
		fs:        localFS,
		config:    *cfg,
	}
	c.resolver = &resolver{root: cfg.Root, list: c.listResolved}
	return c, nil
}

// ActiveNamenode returns the base URL the transport is currently pinned
// to. It changes as failovers happen.
func (c *Client) ActiveNamenode() string {
	return c.transport.ActiveEndpoint()
}
