package hdfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hdfserrors "github.com/mtth/hdfs/errors"
	"github.com/mtth/hdfs/hdfstypes"
)

// stubLister returns fixed children for fixed directories and records the
// number of listing calls performed.
type stubLister struct {
	children map[string][]hdfstypes.FileStatus
	calls    int
}

func (s *stubLister) list(_ context.Context, dir string) ([]hdfstypes.FileStatus, error) {
	s.calls++
	children, ok := s.children[dir]
	if !ok {
		return nil, hdfserrors.NewPathError("list", dir, hdfserrors.ErrFileNotFound)
	}
	return children, nil
}

func child(name string, mtime int64) hdfstypes.FileStatus {
	return hdfstypes.FileStatus{PathSuffix: name, Type: hdfstypes.TypeFile, ModificationTime: mtime}
}

func TestResolve_Canonicalization(t *testing.T) {
	lister := &stubLister{}
	r := &resolver{root: "/user/alice", list: lister.list}
	ctx := context.Background()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"absolute passes through", "/data/file.csv", "/data/file.csv"},
		{"relative joins root once", "logs/today", "/user/alice/logs/today"},
		{"empty means root", "", "/user/alice"},
		{"dot means root", ".", "/user/alice"},
		{"redundant separators collapse", "/data//a///b", "/data/a/b"},
		{"dot segments collapse", "/data/./a/../b", "/data/b"},
		{"trailing slash dropped", "/data/a/", "/data/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.resolve(ctx, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Zero(t, lister.calls, "plain paths must resolve without remote calls")
}

func TestResolve_Idempotent(t *testing.T) {
	r := &resolver{root: "/user/alice", list: (&stubLister{}).list}
	ctx := context.Background()

	once, err := r.resolve(ctx, "reports/weekly")
	require.NoError(t, err)
	twice, err := r.resolve(ctx, once)
	require.NoError(t, err)
	assert.Equal(t, once, twice, "resolving a canonical path must not re-apply the root")
}

func TestResolve_RelativeWithoutRoot(t *testing.T) {
	r := &resolver{list: (&stubLister{}).list}
	_, err := r.resolve(context.Background(), "reports/weekly")
	require.Error(t, err)
	assert.ErrorIs(t, err, hdfserrors.ErrInvalidConfig)
}

func TestResolve_LatestMarker(t *testing.T) {
	ctx := context.Background()

	t.Run("picks greatest modification time", func(t *testing.T) {
		lister := &stubLister{children: map[string][]hdfstypes.FileStatus{
			"/data": {child("a", 10), child("b", 30), child("c", 20)},
		}}
		r := &resolver{list: lister.list}

		got, err := r.resolve(ctx, "/data/#LATEST")
		require.NoError(t, err)
		assert.Equal(t, "/data/b", got)
		assert.Equal(t, 1, lister.calls, "marker resolution costs exactly one listing")
	})

	t.Run("tie keeps first-listed child", func(t *testing.T) {
		lister := &stubLister{children: map[string][]hdfstypes.FileStatus{
			"/data": {child("first", 30), child("second", 30), child("older", 10)},
		}}
		r := &resolver{list: lister.list}

		got, err := r.resolve(ctx, "/data/#LATEST")
		require.NoError(t, err)
		assert.Equal(t, "/data/first", got)
	})

	t.Run("marker in the middle of a path", func(t *testing.T) {
		lister := &stubLister{children: map[string][]hdfstypes.FileStatus{
			"/snapshots": {child("2026-08-28", 100), child("2026-08-29", 200)},
		}}
		r := &resolver{list: lister.list}

		got, err := r.resolve(ctx, "/snapshots/#LATEST/part-0000")
		require.NoError(t, err)
		assert.Equal(t, "/snapshots/2026-08-29/part-0000", got)
	})

	t.Run("marker under the configured root", func(t *testing.T) {
		lister := &stubLister{children: map[string][]hdfstypes.FileStatus{
			"/user/alice/runs": {child("r1", 1), child("r2", 2)},
		}}
		r := &resolver{root: "/user/alice", list: lister.list}

		got, err := r.resolve(ctx, "runs/#LATEST")
		require.NoError(t, err)
		assert.Equal(t, "/user/alice/runs/r2", got)
	})

	t.Run("more than one marker is rejected", func(t *testing.T) {
		lister := &stubLister{}
		r := &resolver{list: lister.list}

		_, err := r.resolve(ctx, "/data/#LATEST/#LATEST")
		require.Error(t, err)
		assert.ErrorIs(t, err, hdfserrors.ErrIllegalArgument)
		assert.Zero(t, lister.calls)
	})

	t.Run("empty directory cannot resolve", func(t *testing.T) {
		lister := &stubLister{children: map[string][]hdfstypes.FileStatus{
			"/empty": {},
		}}
		r := &resolver{list: lister.list}

		_, err := r.resolve(ctx, "/empty/#LATEST")
		require.Error(t, err)
		assert.True(t, hdfserrors.IsFileNotFound(err))
	})

	t.Run("missing parent surfaces listing error", func(t *testing.T) {
		r := &resolver{list: (&stubLister{}).list}
		_, err := r.resolve(ctx, "/nowhere/#LATEST")
		require.Error(t, err)
		assert.True(t, hdfserrors.IsFileNotFound(err))
	})
}
