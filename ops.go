// Metadata operations of the public client surface. Each one resolves its
// path, issues a single transport call and decodes the WebHDFS JSON
// envelope.

package hdfs

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	hdfserrors "github.com/mtth/hdfs/errors"
	"github.com/mtth/hdfs/hdfstypes"
	"github.com/mtth/hdfs/internal/transport"
)

// JSON envelopes used by the WebHDFS REST responses.
type (
	fileStatusEnvelope struct {
		FileStatus hdfstypes.FileStatus `json:"FileStatus"`
	}
	fileStatusesEnvelope struct {
		FileStatuses struct {
			FileStatus []hdfstypes.FileStatus `json:"FileStatus"`
		} `json:"FileStatuses"`
	}
	contentSummaryEnvelope struct {
		ContentSummary hdfstypes.ContentSummary `json:"ContentSummary"`
	}
	fileChecksumEnvelope struct {
		FileChecksum hdfstypes.FileChecksum `json:"FileChecksum"`
	}
	booleanEnvelope struct {
		Boolean bool `json:"boolean"`
	}
)

// Status returns the server-reported attributes of a single path.
func (c *Client) Status(ctx context.Context, p string) (*hdfstypes.FileStatus, error) {
	resolved, err := c.resolver.resolve(ctx, p)
	if err != nil {
		return nil, hdfserrors.NewPathError("status", p, err)
	}
	var envelope fileStatusEnvelope
	err = c.transport.CallJSON(ctx, &transport.Request{
		Method:     http.MethodGet,
		Op:         "GETFILESTATUS",
		Path:       resolved,
		Idempotent: true,
	}, &envelope)
	if err != nil {
		return nil, hdfserrors.NewPathError("status", resolved, err)
	}
	return &envelope.FileStatus, nil
}

// List returns the statuses of the direct children of a directory, in the
// order the namenode reported them. That order is the tie-breaker for
// #LATEST resolution, so it is preserved verbatim.
func (c *Client) List(ctx context.Context, p string) ([]hdfstypes.FileStatus, error) {
	resolved, err := c.resolver.resolve(ctx, p)
	if err != nil {
		return nil, hdfserrors.NewPathError("list", p, err)
	}
	return c.listResolved(ctx, resolved)
}

// listResolved is List without re-resolution; it also backs the resolver
// itself, which must not recurse into marker handling.
func (c *Client) listResolved(ctx context.Context, resolved string) ([]hdfstypes.FileStatus, error) {
	var envelope fileStatusesEnvelope
	err := c.transport.CallJSON(ctx, &transport.Request{
		Method:     http.MethodGet,
		Op:         "LISTSTATUS",
		Path:       resolved,
		Idempotent: true,
	}, &envelope)
	if err != nil {
		return nil, hdfserrors.NewPathError("list", resolved, err)
	}
	return envelope.FileStatuses.FileStatus, nil
}

// WalkFunc is invoked once per visited path. Returning fs.SkipDir for a
// directory prunes its subtree; any other error aborts the walk.
type WalkFunc func(p string, status *hdfstypes.FileStatus) error

// Walk visits p and, depth first, everything below it. Children of each
// directory are visited in lexical order so traversal is deterministic
// regardless of listing order.
func (c *Client) Walk(ctx context.Context, p string, fn WalkFunc) error {
	resolved, err := c.resolver.resolve(ctx, p)
	if err != nil {
		return hdfserrors.NewPathError("walk", p, err)
	}
	status, err := c.Status(ctx, resolved)
	if err != nil {
		return err
	}
	return c.walk(ctx, resolved, status, fn)
}

func (c *Client) walk(ctx context.Context, p string, status *hdfstypes.FileStatus, fn WalkFunc) error {
	if err := fn(p, status); err != nil {
		if err == fs.SkipDir && status.IsDir() {
			return nil
		}
		return err
	}
	if !status.IsDir() {
		return nil
	}
	children, err := c.listResolved(ctx, p)
	if err != nil {
		return err
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].PathSuffix < children[j].PathSuffix
	})
	for i := range children {
		child := &children[i]
		if err := c.walk(ctx, join(p, child.PathSuffix), child, fn); err != nil {
			return err
		}
	}
	return nil
}

// ContentSummary returns aggregate usage numbers for a subtree.
func (c *Client) ContentSummary(ctx context.Context, p string) (*hdfstypes.ContentSummary, error) {
	resolved, err := c.resolver.resolve(ctx, p)
	if err != nil {
		return nil, hdfserrors.NewPathError("content", p, err)
	}
	var envelope contentSummaryEnvelope
	err = c.transport.CallJSON(ctx, &transport.Request{
		Method:     http.MethodGet,
		Op:         "GETCONTENTSUMMARY",
		Path:       resolved,
		Idempotent: true,
	}, &envelope)
	if err != nil {
		return nil, hdfserrors.NewPathError("content", resolved, err)
	}
	return &envelope.ContentSummary, nil
}

// Checksum returns the server-computed checksum of a file. Like reads,
// the checksum is served by a datanode behind a redirect.
func (c *Client) Checksum(ctx context.Context, p string) (*hdfstypes.FileChecksum, error) {
	resolved, err := c.resolver.resolve(ctx, p)
	if err != nil {
		return nil, hdfserrors.NewPathError("checksum", p, err)
	}
	var envelope fileChecksumEnvelope
	err = c.transport.CallJSON(ctx, &transport.Request{
		Method:     http.MethodGet,
		Op:         "GETFILECHECKSUM",
		Path:       resolved,
		Idempotent: true,
		TwoPhase:   true,
	}, &envelope)
	if err != nil {
		return nil, hdfserrors.NewPathError("checksum", resolved, err)
	}
	return &envelope.FileChecksum, nil
}

// Rename moves a path. Both source and destination are resolved; the
// destination must not already exist.
func (c *Client) Rename(ctx context.Context, src, dst string) error {
	resolvedSrc, err := c.resolver.resolve(ctx, src)
	if err != nil {
		return hdfserrors.NewPathError("rename", src, err)
	}
	resolvedDst, err := c.resolver.resolve(ctx, dst)
	if err != nil {
		return hdfserrors.NewPathError("rename", dst, err)
	}
	var envelope booleanEnvelope
	err = c.transport.CallJSON(ctx, &transport.Request{
		Method: http.MethodPut,
		Op:     "RENAME",
		Path:   resolvedSrc,
		Params: url.Values{"destination": {resolvedDst}},
	}, &envelope)
	if err != nil {
		return hdfserrors.NewPathError("rename", resolvedSrc, err)
	}
	if !envelope.Boolean {
		return hdfserrors.NewPathError("rename", resolvedSrc,
			fmt.Errorf("%w: namenode refused rename to %s", hdfserrors.ErrIllegalArgument, resolvedDst))
	}
	return nil
}

// Delete removes a path. Deleting a non-empty directory requires
// recursive; deleting a missing path returns ErrFileNotFound.
func (c *Client) Delete(ctx context.Context, p string, recursive bool) error {
	resolved, err := c.resolver.resolve(ctx, p)
	if err != nil {
		return hdfserrors.NewPathError("delete", p, err)
	}
	var envelope booleanEnvelope
	err = c.transport.CallJSON(ctx, &transport.Request{
		Method: http.MethodDelete,
		Op:     "DELETE",
		Path:   resolved,
		Params: url.Values{"recursive": {strconv.FormatBool(recursive)}},
	}, &envelope)
	if err != nil {
		return hdfserrors.NewPathError("delete", resolved, err)
	}
	if !envelope.Boolean {
		return hdfserrors.NewPathError("delete", resolved,
			fmt.Errorf("%w: nothing was deleted", hdfserrors.ErrFileNotFound))
	}
	return nil
}

// Mkdirs creates a directory and any missing parents. perm is an octal
// permission string such as "755"; empty keeps the server default.
func (c *Client) Mkdirs(ctx context.Context, p string, perm string) error {
	resolved, err := c.resolver.resolve(ctx, p)
	if err != nil {
		return hdfserrors.NewPathError("mkdirs", p, err)
	}
	params := url.Values{}
	if perm != "" {
		params.Set("permission", perm)
	}
	err = c.transport.CallJSON(ctx, &transport.Request{
		Method:     http.MethodPut,
		Op:         "MKDIRS",
		Path:       resolved,
		Params:     params,
		Idempotent: true,
	}, nil)
	if err != nil {
		return hdfserrors.NewPathError("mkdirs", resolved, err)
	}
	return nil
}

// SetPermission changes the octal permission string of a path.
func (c *Client) SetPermission(ctx context.Context, p string, perm string) error {
	return c.settingCall(ctx, "SETPERMISSION", p, url.Values{"permission": {perm}})
}

// SetOwner changes the owner and/or group of a path. Empty values keep
// the current ones.
func (c *Client) SetOwner(ctx context.Context, p string, owner, group string) error {
	params := url.Values{}
	if owner != "" {
		params.Set("owner", owner)
	}
	if group != "" {
		params.Set("group", group)
	}
	return c.settingCall(ctx, "SETOWNER", p, params)
}

// SetReplication changes the replication factor of a file.
func (c *Client) SetReplication(ctx context.Context, p string, replication int) error {
	return c.settingCall(ctx, "SETREPLICATION", p,
		url.Values{"replication": {strconv.Itoa(replication)}})
}

// SetTimes changes modification and/or access times, in milliseconds
// since the epoch. Pass -1 to leave a value unchanged.
func (c *Client) SetTimes(ctx context.Context, p string, modificationTime, accessTime int64) error {
	params := url.Values{}
	if modificationTime >= 0 {
		params.Set("modificationtime", strconv.FormatInt(modificationTime, 10))
	}
	if accessTime >= 0 {
		params.Set("accesstime", strconv.FormatInt(accessTime, 10))
	}
	return c.settingCall(ctx, "SETTIMES", p, params)
}

// settingCall is the shared shape of the SET* operations: an idempotent
// PUT with no interesting response body.
func (c *Client) settingCall(ctx context.Context, op string, p string, params url.Values) error {
	resolved, err := c.resolver.resolve(ctx, p)
	if err != nil {
		return hdfserrors.NewPathError(opName(op), p, err)
	}
	err = c.transport.CallJSON(ctx, &transport.Request{
		Method:     http.MethodPut,
		Op:         op,
		Path:       resolved,
		Params:     params,
		Idempotent: true,
	}, nil)
	if err != nil {
		return hdfserrors.NewPathError(opName(op), resolved, err)
	}
	return nil
}

func opName(op string) string {
	switch op {
	case "SETPERMISSION":
		return "chmod"
	case "SETOWNER":
		return "chown"
	case "SETREPLICATION":
		return "setrep"
	case "SETTIMES":
		return "touch"
	}
	return op
}

// join concatenates a parent path and a child name with a single slash.
func join(parent, child string) string {
	if parent == "/" {
		return "/" + child
	}
	return parent + "/" + child
}
