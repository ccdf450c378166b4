// Package transport executes WebHDFS operations against an ordered list of
// candidate namenode endpoints. It owns failover, retry policy and remote
// error decoding; everything above it deals in resolved paths and decoded
// responses only.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"gopkg.in/op/go-logging.v1"

	hdfserrors "github.com/mtth/hdfs/errors"
)

var log = logging.MustGetLogger("hdfs.transport")

// apiPrefix is the WebHDFS REST entry point appended to every namenode
// base URL.
const apiPrefix = "/webhdfs/v1"

// Request describes one logical filesystem operation. Params go on the
// query string next to the op name; Body, when non-nil, is streamed in the
// payload phase of a two-phase exchange.
type Request struct {
	// Method is the HTTP verb (GET, PUT, POST, DELETE).
	Method string

	// Op is the WebHDFS operation name, e.g. "LISTSTATUS".
	Op string

	// Path is the resolved absolute remote path.
	Path string

	// Params holds additional query parameters.
	Params url.Values

	// Body is the payload for data-carrying operations. It is only ever
	// sent to the datanode location returned by the initial redirect,
	// never to the namenode.
	Body io.Reader

	// ContentType is set on the payload phase when non-empty.
	ContentType string

	// Idempotent marks operations that are safe to retry on transient
	// failures. Mutations without an overwrite guarantee must leave this
	// false so a transient failure surfaces immediately instead of
	// risking a duplicate side effect.
	Idempotent bool

	// TwoPhase marks data-carrying operations that the namenode answers
	// with a redirect to a datanode. The payload exchange is issued
	// explicitly against that location; implicit redirect-following is
	// never relied on.
	TwoPhase bool
}

// Transport issues requests against a logical cluster with several
// candidate namenode addresses. One address is active at a time; a failed
// call advances the shared pointer and a successful call pins it.
//
// The active pointer is the only state shared across concurrent callers
// and every read or switch of it happens under one mutex. Failover is
// idempotent with respect to concurrent attempts: pinning an endpoint
// that is already active is a no-op.
type Transport struct {
	urls []string

	// meta serves namenode exchanges: per-request timeout, redirects
	// reported instead of followed.
	meta *http.Client

	// retrier wraps meta with bounded backoff for idempotent calls.
	// Namenode-phase requests are bodyless, so rewinding never comes up.
	retrier *retryablehttp.Client

	// stream serves datanode payload exchanges. It carries no client
	// timeout: the per-request bound applies to metadata round-trips,
	// not to the data stream of a large transfer.
	stream *http.Client

	mu     sync.Mutex
	active int
}

// New creates a Transport over the given ordered namenode base URLs using
// the pre-authenticated session for every exchange. maxRetries bounds
// per-endpoint retries of idempotent calls; timeout bounds each metadata
// request.
func New(urls []string, session *http.Client, timeout time.Duration, maxRetries int) (*Transport, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: at least one namenode URL is required", hdfserrors.ErrInvalidConfig)
	}
	trimmed := make([]string, len(urls))
	for i, u := range urls {
		trimmed[i] = strings.TrimRight(u, "/")
	}
	if session == nil {
		session = &http.Client{}
	}

	noFollow := func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	meta := *session
	meta.CheckRedirect = noFollow
	if timeout > 0 {
		meta.Timeout = timeout
	}

	stream := *session
	stream.CheckRedirect = noFollow
	stream.Timeout = 0

	retrier := retryablehttp.NewClient()
	retrier.HTTPClient = &meta
	retrier.RetryMax = maxRetries
	retrier.RetryWaitMin = 250 * time.Millisecond
	retrier.RetryWaitMax = 2 * time.Second
	retrier.Logger = nil
	retrier.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// Only network-level failures retry in place. Server-side
		// errors go back to the failover loop, which decides between
		// advancing to the next namenode and surfacing the error.
		return err != nil, nil
	}

	return &Transport{
		urls:    trimmed,
		meta:    &meta,
		retrier: retrier,
		stream:  &stream,
	}, nil
}

// Endpoints returns the configured candidate URLs in order. The slice is
// a copy; mutating it does not affect the transport.
func (t *Transport) Endpoints() []string {
	return append([]string(nil), t.urls...)
}

// ActiveEndpoint returns the currently pinned namenode base URL.
func (t *Transport) ActiveEndpoint() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.urls[t.active]
}

func (t *Transport) activeIndex() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *Transport) pin(idx int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active != idx {
		log.Debugf("pinning active namenode %s", t.urls[idx])
		t.active = idx
	}
}

// Call executes one logical operation, failing over across the candidate
// list as needed. The returned response has a status below 400 and its
// body is the caller's to consume and close. All failure paths return a
// structured error: semantic remote errors and protocol errors surface
// immediately, transient ones only after every endpoint was exhausted.
func (t *Transport) Call(ctx context.Context, req *Request) (*http.Response, error) {
	start := t.activeIndex()
	var lastErr error
	for i := 0; i < len(t.urls); i++ {
		idx := (start + i) % len(t.urls)
		resp, err := t.attempt(ctx, t.urls[idx], req)
		if err != nil {
			if !failoverWorthy(err) {
				return nil, err
			}
			log.Debugf("namenode %s failed %s %s: %v", t.urls[idx], req.Op, req.Path, err)
			lastErr = err
			continue
		}
		t.pin(idx)
		return resp, nil
	}
	return nil, fmt.Errorf("%w: tried %d endpoint(s), last error: %v",
		hdfserrors.ErrConnectivity, len(t.urls), lastErr)
}

// CallJSON executes a single-exchange metadata operation and decodes the
// JSON response into out. A nil out discards the body. The two-phase
// GETFILECHECKSUM also fits here: its JSON document comes back from the
// datanode in the payload phase.
func (t *Transport) CallJSON(ctx context.Context, req *Request, out any) error {
	resp, err := t.Call(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", hdfserrors.ErrProtocol, req.Op, err)
	}
	return nil
}

// failoverWorthy reports whether an attempt error justifies trying the
// next candidate. Semantic filesystem errors and protocol errors are
// authoritative answers from the cluster; only transient conditions and
// standby indications keep the loop going.
func failoverWorthy(err error) bool {
	if hdfserrors.IsStandby(err) {
		return true
	}
	var transient *transientError
	return errors.As(err, &transient)
}

// transientError wraps failures that should trigger failover: connection
// errors, timeouts and 5xx responses without a classified remote cause.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// attempt runs the full exchange against one namenode.
func (t *Transport) attempt(ctx context.Context, base string, req *Request) (*http.Response, error) {
	resp, err := t.namenodePhase(ctx, base, req)
	if err != nil {
		return nil, err
	}
	if !req.TwoPhase {
		return resp, nil
	}

	location := resp.Header.Get("Location")
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusTemporaryRedirect || location == "" {
		return nil, fmt.Errorf("%w: expected redirect for %s %s, got %d with location %q",
			hdfserrors.ErrProtocol, req.Op, req.Path, resp.StatusCode, location)
	}
	log.Debugf("%s %s redirected to %s", req.Op, req.Path, location)
	return t.payloadPhase(ctx, location, req)
}

// namenodePhase issues the metadata request. Idempotent calls ride the
// retrying client; mutations go through the plain session exactly once.
func (t *Transport) namenodePhase(ctx context.Context, base string, req *Request) (*http.Response, error) {
	target := base + apiPrefix + req.Path + "?" + t.query(req)

	var resp *http.Response
	var err error
	if req.Idempotent {
		var rreq *retryablehttp.Request
		rreq, err = retryablehttp.NewRequestWithContext(ctx, req.Method, target, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", hdfserrors.ErrProtocol, err)
		}
		resp, err = t.retrier.Do(rreq)
	} else {
		var hreq *http.Request
		hreq, err = http.NewRequestWithContext(ctx, req.Method, target, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", hdfserrors.ErrProtocol, err)
		}
		resp, err = t.meta.Do(hreq)
	}
	if err != nil {
		return nil, &transientError{err}
	}
	if resp.StatusCode >= 400 {
		return nil, decodeFailure(resp)
	}
	return resp, nil
}

// payloadPhase performs the data exchange against the datanode location
// returned by the namenode. It is never retried: the stream may not be
// rewindable and the redirect grant is single-use. For the same reason a
// failure here must not trigger failover when the request carries a body:
// the stream may be partially consumed already, and replaying it against
// another endpoint would commit a truncated file as a success.
func (t *Transport) payloadPhase(ctx context.Context, location string, req *Request) (*http.Response, error) {
	hreq, err := http.NewRequestWithContext(ctx, req.Method, location, req.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: bad redirect location %q: %v", hdfserrors.ErrProtocol, location, err)
	}
	if req.ContentType != "" {
		hreq.Header.Set("Content-Type", req.ContentType)
	}
	resp, err := t.stream.Do(hreq)
	if err != nil {
		if req.Body == nil {
			return nil, &transientError{err}
		}
		return nil, fmt.Errorf("payload exchange for %s %s interrupted: %w", req.Op, req.Path, err)
	}
	if resp.StatusCode >= 400 {
		failure := decodeFailure(resp)
		if req.Body != nil {
			var transient *transientError
			if errors.As(failure, &transient) {
				return nil, fmt.Errorf("payload exchange for %s %s failed: %w", req.Op, req.Path, transient.err)
			}
		}
		return nil, failure
	}
	return resp, nil
}

// decodeFailure turns an error response into a classified error, draining
// and closing the body.
func decodeFailure(resp *http.Response) error {
	defer resp.Body.Close()
	remote := hdfserrors.DecodeRemote(io.LimitReader(resp.Body, 64<<10))
	io.Copy(io.Discard, resp.Body)
	if remote != nil {
		if resp.StatusCode >= 500 && !hdfserrors.IsStandby(remote) && !classified(remote) {
			// An unclassified server fault is transient from the
			// client's point of view.
			return &transientError{remote}
		}
		return remote
	}
	if resp.StatusCode >= 500 {
		return &transientError{fmt.Errorf("namenode returned %s", resp.Status)}
	}
	return fmt.Errorf("%w: unexpected status %s", hdfserrors.ErrProtocol, resp.Status)
}

// classified reports whether the error maps to a sentinel in the
// filesystem taxonomy, as opposed to an opaque RemoteException.
func classified(err error) bool {
	for _, sentinel := range []error{
		hdfserrors.ErrFileNotFound,
		hdfserrors.ErrAlreadyExists,
		hdfserrors.ErrPermissionDenied,
		hdfserrors.ErrIllegalArgument,
		hdfserrors.ErrNotEmptyDirectory,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func (t *Transport) query(req *Request) string {
	params := url.Values{}
	for key, values := range req.Params {
		for _, value := range values {
			params.Add(key, value)
		}
	}
	params.Set("op", req.Op)
	return params.Encode()
}
