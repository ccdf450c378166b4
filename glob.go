package hdfs

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	hdfserrors "github.com/mtth/hdfs/errors"
)

// Glob returns the remote paths matching a shell-style pattern. Patterns
// support *, ?, [...] and {...} per segment. As with fnmatch-based
// globbing, names starting with a dot are only matched by patterns that
// themselves start with a dot. Results are sorted.
func (c *Client) Glob(ctx context.Context, pattern string) ([]string, error) {
	canonical, err := c.resolver.canonicalize(pattern)
	if err != nil {
		return nil, hdfserrors.NewPathError("glob", pattern, err)
	}
	if strings.Contains(canonical, LatestMarker) {
		return nil, hdfserrors.NewPathError("glob", pattern,
			fmt.Errorf("%w: %s is not supported inside glob patterns", hdfserrors.ErrIllegalArgument, LatestMarker))
	}

	// No magic anywhere: the pattern is a literal path that either
	// exists or doesn't.
	if !hasMagic(canonical) {
		if _, err := c.Status(ctx, canonical); err != nil {
			if hdfserrors.IsFileNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return []string{canonical}, nil
	}

	matches := []string{""}
	verified := false
	for _, segment := range strings.Split(canonical, "/")[1:] {
		var next []string
		if !hasMagic(segment) {
			for _, prefix := range matches {
				next = append(next, prefix+"/"+segment)
			}
			matches = next
			verified = false
			continue
		}
		matcher, err := glob.Compile(segment)
		if err != nil {
			return nil, hdfserrors.NewPathError("glob", pattern,
				fmt.Errorf("%w: bad pattern segment %q: %v", hdfserrors.ErrIllegalArgument, segment, err))
		}
		hidden := strings.HasPrefix(segment, ".")
		for _, prefix := range matches {
			dir := prefix
			if dir == "" {
				dir = "/"
			}
			children, err := c.listResolved(ctx, dir)
			if err != nil {
				if hdfserrors.IsFileNotFound(err) {
					continue
				}
				return nil, err
			}
			for _, child := range children {
				name := child.PathSuffix
				if strings.HasPrefix(name, ".") && !hidden {
					continue
				}
				if matcher.Match(name) {
					next = append(next, prefix+"/"+name)
				}
			}
		}
		matches = next
		verified = true
	}

	// A literal tail was carried through without existence checks;
	// verify it now. Segments produced by a listing are already known
	// to exist.
	var results []string
	for _, p := range matches {
		if !verified {
			if _, err := c.Status(ctx, p); err != nil {
				if hdfserrors.IsFileNotFound(err) {
					continue
				}
				return nil, err
			}
		}
		results = append(results, p)
	}
	sort.Strings(results)
	return results, nil
}

func hasMagic(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}
