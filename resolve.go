package hdfs

import (
	"context"
	"fmt"
	"path"
	"strings"

	hdfserrors "github.com/mtth/hdfs/errors"
	"github.com/mtth/hdfs/hdfstypes"
)

// LatestMarker is the path segment replaced at resolution time by the
// name of the most recently modified child of its parent directory.
const LatestMarker = "#LATEST"

// resolver canonicalizes user-supplied remote paths. It holds the
// configured root and a listing function for marker resolution.
type resolver struct {
	root string
	list func(ctx context.Context, dir string) ([]hdfstypes.FileStatus, error)
}

// Resolve turns a user-supplied path into a canonical absolute remote
// path. Absolute paths pass through unchanged apart from separator
// normalization; relative paths are joined with the configured root
// exactly once. A #LATEST segment is replaced by the name of the direct
// child of its parent with the greatest modification time, using a single
// listing round-trip; ties are broken in favor of the child listed first.
//
// Resolution is idempotent: resolving an already canonical path returns
// it unchanged.
func (c *Client) Resolve(ctx context.Context, p string) (string, error) {
	resolved, err := c.resolver.resolve(ctx, p)
	if err != nil {
		return "", hdfserrors.NewPathError("resolve", p, err)
	}
	return resolved, nil
}

func (r *resolver) resolve(ctx context.Context, p string) (string, error) {
	canonical, err := r.canonicalize(p)
	if err != nil {
		return "", err
	}
	segments := strings.Split(canonical, "/")
	marker := -1
	for i, segment := range segments {
		if segment != LatestMarker {
			continue
		}
		if marker >= 0 {
			return "", fmt.Errorf("%w: at most one %s segment per path", hdfserrors.ErrIllegalArgument, LatestMarker)
		}
		marker = i
	}
	if marker < 0 {
		return canonical, nil
	}

	parent := strings.Join(segments[:marker], "/")
	if parent == "" {
		parent = "/"
	}
	latest, err := r.latestChild(ctx, parent)
	if err != nil {
		return "", err
	}
	segments[marker] = latest
	return path.Clean(strings.Join(segments, "/")), nil
}

// canonicalize normalizes separators and applies the root prefix to
// relative paths, exactly once.
func (r *resolver) canonicalize(p string) (string, error) {
	if p == "" {
		p = "."
	}
	if !strings.HasPrefix(p, "/") {
		if r.root == "" {
			return "", fmt.Errorf("%w: relative path %q requires a configured root", hdfserrors.ErrInvalidConfig, p)
		}
		p = path.Join(r.root, p)
	}
	return path.Clean(p), nil
}

// latestChild returns the name of the most recently modified direct child
// of dir. When several children share the greatest modification time the
// one the listing returned first wins; the strict > comparison below is
// what guarantees that.
func (r *resolver) latestChild(ctx context.Context, dir string) (string, error) {
	children, err := r.list(ctx, dir)
	if err != nil {
		return "", err
	}
	if len(children) == 0 {
		return "", fmt.Errorf("%w: %s has no children to resolve %s against",
			hdfserrors.ErrFileNotFound, dir, LatestMarker)
	}
	best := children[0]
	for _, child := range children[1:] {
		if child.ModificationTime > best.ModificationTime {
			best = child
		}
	}
	return best.PathSuffix, nil
}
