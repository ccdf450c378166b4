package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hdfserrors "github.com/mtth/hdfs/errors"
	"github.com/mtth/hdfs/hdfstypes"
)

// fakeRemote is an in-memory Remote with a failure knob for exercising
// partial batches.
type fakeRemote struct {
	mu            sync.Mutex
	files         map[string][]byte
	dirs          map[string]bool
	failSubstring string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		files: map[string][]byte{},
		dirs:  map[string]bool{"/": true},
	}
}

func (r *fakeRemote) Status(_ context.Context, p string) (*hdfstypes.FileStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if data, ok := r.files[p]; ok {
		return &hdfstypes.FileStatus{Type: hdfstypes.TypeFile, Length: int64(len(data))}, nil
	}
	if r.dirs[p] {
		return &hdfstypes.FileStatus{Type: hdfstypes.TypeDirectory}, nil
	}
	return nil, hdfserrors.NewPathError("status", p, hdfserrors.ErrFileNotFound)
}

func (r *fakeRemote) List(_ context.Context, p string) ([]hdfstypes.FileStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.dirs[p] {
		return nil, hdfserrors.NewPathError("list", p, hdfserrors.ErrFileNotFound)
	}
	var statuses []hdfstypes.FileStatus
	for name, data := range r.files {
		if path.Dir(name) == p {
			statuses = append(statuses, hdfstypes.FileStatus{
				PathSuffix: path.Base(name), Type: hdfstypes.TypeFile, Length: int64(len(data)),
			})
		}
	}
	for name := range r.dirs {
		if name != "/" && path.Dir(name) == p {
			statuses = append(statuses, hdfstypes.FileStatus{
				PathSuffix: path.Base(name), Type: hdfstypes.TypeDirectory,
			})
		}
	}
	return statuses, nil
}

func (r *fakeRemote) Open(_ context.Context, p string) (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.files[p]
	if !ok {
		return nil, hdfserrors.NewPathError("open", p, hdfserrors.ErrFileNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (r *fakeRemote) Create(_ context.Context, p string, overwrite bool, _ string) (io.WriteCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSubstring != "" && strings.Contains(p, r.failSubstring) {
		return nil, hdfserrors.NewPathError("create", p, fmt.Errorf("injected failure"))
	}
	if _, exists := r.files[p]; exists && !overwrite {
		return nil, hdfserrors.NewPathError("create", p, hdfserrors.ErrAlreadyExists)
	}
	return &fakeWriter{remote: r, path: p}, nil
}

func (r *fakeRemote) Rename(_ context.Context, src, dst string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.files[src]
	if !ok {
		return hdfserrors.NewPathError("rename", src, hdfserrors.ErrFileNotFound)
	}
	if _, exists := r.files[dst]; exists {
		return hdfserrors.NewPathError("rename", src, hdfserrors.ErrAlreadyExists)
	}
	delete(r.files, src)
	r.files[dst] = data
	return nil
}

func (r *fakeRemote) Delete(_ context.Context, p string, _ bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[p]; !ok {
		return hdfserrors.NewPathError("delete", p, hdfserrors.ErrFileNotFound)
	}
	delete(r.files, p)
	return nil
}

func (r *fakeRemote) Mkdirs(_ context.Context, p string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for p != "/" && p != "." {
		r.dirs[p] = true
		p = path.Dir(p)
	}
	return nil
}

func (r *fakeRemote) content(p string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.files[p]
	return data, ok
}

func (r *fakeRemote) fileNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for name := range r.files {
		names = append(names, name)
	}
	return names
}

// fakeWriter buffers until Close, like the real datanode exchange: a file
// only appears once its stream finished.
type fakeWriter struct {
	remote *fakeRemote
	path   string
	buf    bytes.Buffer
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *fakeWriter) Close() error {
	w.remote.mu.Lock()
	defer w.remote.mu.Unlock()
	w.remote.files[w.path] = append([]byte(nil), w.buf.Bytes()...)
	return nil
}

// progressRecorder captures callback events, per path and in order.
type progressRecorder struct {
	mu     sync.Mutex
	events map[string][]int64
}

func newProgressRecorder() *progressRecorder {
	return &progressRecorder{events: map[string][]int64{}}
}

func (r *progressRecorder) update(path string, bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[path] = append(r.events[path], bytes)
}

func (r *progressRecorder) of(path string) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.events[path]...)
}

func (r *progressRecorder) terminalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, events := range r.events {
		for _, b := range events {
			if b < 0 {
				count++
			}
		}
	}
	return count
}

func localWith(t *testing.T, files map[string][]byte) billy.Filesystem {
	t.Helper()
	fs := memfs.New()
	for name, data := range files {
		require.NoError(t, util.WriteFile(fs, name, data, 0o644))
	}
	return fs
}

func TestUpload_Tree(t *testing.T) {
	fs := localWith(t, map[string][]byte{
		"/src/a.txt":     []byte("alpha"),
		"/src/sub/b.txt": []byte("beta"),
	})
	require.NoError(t, fs.MkdirAll("/src/empty", 0o755))
	remote := newFakeRemote()
	engine := New(remote, fs)

	err := engine.Upload(context.Background(), "/src", "/dst", Config{Threads: 2})
	require.NoError(t, err)

	a, ok := remote.content("/dst/a.txt")
	require.True(t, ok)
	assert.Equal(t, "alpha", string(a))
	b, ok := remote.content("/dst/sub/b.txt")
	require.True(t, ok)
	assert.Equal(t, "beta", string(b))

	remote.mu.Lock()
	assert.True(t, remote.dirs["/dst/empty"], "empty directories must be mirrored")
	remote.mu.Unlock()

	for _, name := range remote.fileNames() {
		assert.NotContains(t, name, ".tmp-", "no temporary artifacts may survive a clean batch")
	}
}

func TestUpload_SingleFileIntoExistingDirectory(t *testing.T) {
	fs := localWith(t, map[string][]byte{"/src/report.csv": []byte("r")})
	remote := newFakeRemote()
	require.NoError(t, remote.Mkdirs(context.Background(), "/landing"))
	engine := New(remote, fs)

	err := engine.Upload(context.Background(), "/src/report.csv", "/landing", Config{})
	require.NoError(t, err)

	_, ok := remote.content("/landing/report.csv")
	assert.True(t, ok)
}

func TestUpload_PreflightRejectsExisting(t *testing.T) {
	fs := localWith(t, map[string][]byte{
		"/src/a.txt": []byte("new a"),
		"/src/b.txt": []byte("new b"),
	})
	remote := newFakeRemote()
	remote.files["/dst/a.txt"] = []byte("old")
	engine := New(remote, fs)

	err := engine.Upload(context.Background(), "/src", "/dst", Config{})
	require.Error(t, err)
	assert.True(t, hdfserrors.IsAlreadyExists(err))

	// The rejection happens before any byte moves: the clashing file is
	// untouched and the non-clashing one was never transferred.
	data, _ := remote.content("/dst/a.txt")
	assert.Equal(t, "old", string(data))
	_, ok := remote.content("/dst/b.txt")
	assert.False(t, ok)
}

func TestUpload_Overwrite(t *testing.T) {
	fs := localWith(t, map[string][]byte{"/src/a.txt": []byte("fresh")})
	remote := newFakeRemote()
	remote.files["/dst/a.txt"] = []byte("stale")
	engine := New(remote, fs)

	err := engine.Upload(context.Background(), "/src/a.txt", "/dst/a.txt", Config{Overwrite: true})
	require.NoError(t, err)

	data, _ := remote.content("/dst/a.txt")
	assert.Equal(t, "fresh", string(data))
}

func TestUpload_PartialFailureAggregates(t *testing.T) {
	fs := localWith(t, map[string][]byte{
		"/src/good.txt": []byte("fine"),
		"/src/bad.txt":  []byte("doomed"),
	})
	remote := newFakeRemote()
	remote.failSubstring = "bad.txt"
	engine := New(remote, fs)

	recorder := newProgressRecorder()
	err := engine.Upload(context.Background(), "/src", "/dst", Config{
		Threads:  2,
		Progress: recorder.update,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/src/bad.txt")

	// A failing task never stops its siblings, and every task still gets
	// its terminal progress event.
	data, ok := remote.content("/dst/good.txt")
	require.True(t, ok)
	assert.Equal(t, "fine", string(data))
	_, ok = remote.content("/dst/bad.txt")
	assert.False(t, ok)
	assert.Equal(t, 2, recorder.terminalCount())
}

func TestUpload_ProgressChunks(t *testing.T) {
	const chunk = 1 << 20
	const chunks = 10
	fs := localWith(t, map[string][]byte{
		"/src/big.bin": bytes.Repeat([]byte("x"), chunk*chunks),
	})
	remote := newFakeRemote()
	engine := New(remote, fs)

	recorder := newProgressRecorder()
	err := engine.Upload(context.Background(), "/src/big.bin", "/dst/big.bin", Config{
		ChunkSize: chunk,
		Progress:  recorder.update,
	})
	require.NoError(t, err)

	events := recorder.of("/src/big.bin")
	require.Len(t, events, chunks+1)
	for i := 0; i < chunks; i++ {
		assert.Equal(t, int64((i+1)*chunk), events[i])
	}
	assert.Equal(t, int64(-1), events[chunks])
}

func TestDownload_Tree(t *testing.T) {
	remote := newFakeRemote()
	ctx := context.Background()
	require.NoError(t, remote.Mkdirs(ctx, "/src/sub"))
	remote.files["/src/a.txt"] = []byte("alpha")
	remote.files["/src/sub/b.txt"] = []byte("beta")

	fs := memfs.New()
	engine := New(remote, fs)

	err := engine.Download(ctx, "/src", "/local", Config{Threads: 2})
	require.NoError(t, err)

	a, err := util.ReadFile(fs, "/local/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(a))
	b, err := util.ReadFile(fs, "/local/sub/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "beta", string(b))

	entries, err := fs.ReadDir("/local")
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp", "no temporary artifacts may survive a clean batch")
	}
}

func TestDownload_PreflightRejectsExisting(t *testing.T) {
	remote := newFakeRemote()
	remote.files["/src/a.txt"] = []byte("remote")

	fs := localWith(t, map[string][]byte{"/local/a.txt": []byte("precious")})
	engine := New(remote, fs)

	err := engine.Download(context.Background(), "/src/a.txt", "/local/a.txt", Config{})
	require.Error(t, err)
	assert.True(t, hdfserrors.IsAlreadyExists(err))

	data, err := util.ReadFile(fs, "/local/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "precious", string(data))
}

func TestDownload_Overwrite(t *testing.T) {
	remote := newFakeRemote()
	remote.files["/src/a.txt"] = []byte("remote")

	fs := localWith(t, map[string][]byte{"/local/a.txt": []byte("stale")})
	engine := New(remote, fs)

	err := engine.Download(context.Background(), "/src/a.txt", "/local/a.txt", Config{Overwrite: true})
	require.NoError(t, err)

	data, err := util.ReadFile(fs, "/local/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "remote", string(data))
}

func TestDownload_ProgressChunks(t *testing.T) {
	const chunk = 512
	const chunks = 4
	remote := newFakeRemote()
	remote.files["/src/blob"] = bytes.Repeat([]byte("y"), chunk*chunks)

	fs := memfs.New()
	engine := New(remote, fs)

	recorder := newProgressRecorder()
	err := engine.Download(context.Background(), "/src/blob", "/local/blob", Config{
		ChunkSize: chunk,
		Progress:  recorder.update,
	})
	require.NoError(t, err)

	events := recorder.of("/src/blob")
	require.Len(t, events, chunks+1)
	assert.Equal(t, int64(chunk*chunks), events[chunks-1])
	assert.Equal(t, int64(-1), events[chunks])
}

func TestUpload_ManyFilesPerTaskWorkers(t *testing.T) {
	files := map[string][]byte{}
	for i := 0; i < 8; i++ {
		files[fmt.Sprintf("/src/f%d.txt", i)] = []byte(fmt.Sprintf("payload %d", i))
	}
	fs := localWith(t, files)
	remote := newFakeRemote()
	engine := New(remote, fs)

	// Threads zero means one worker per task.
	err := engine.Upload(context.Background(), "/src", "/dst", Config{Threads: 0})
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		data, ok := remote.content(fmt.Sprintf("/dst/f%d.txt", i))
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("payload %d", i), string(data))
	}
}

func TestWithDefaults(t *testing.T) {
	t.Run("fills unset chunk size", func(t *testing.T) {
		cfg := withDefaults(Config{Threads: 3})
		assert.Equal(t, int64(DefaultChunkSize), cfg.ChunkSize)
		assert.Equal(t, 3, cfg.Threads)
	})

	t.Run("keeps explicit chunk size", func(t *testing.T) {
		cfg := withDefaults(Config{ChunkSize: 128})
		assert.Equal(t, int64(128), cfg.ChunkSize)
	})
}

func TestPoolSize(t *testing.T) {
	tests := []struct {
		name    string
		threads int
		tasks   int
		want    int
	}{
		{"positive bounds pool", 4, 10, 4},
		{"pool never exceeds task count", 16, 3, 3},
		{"zero means per task", 0, 7, 7},
		{"negative means sequential", -1, 5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, poolSize(tt.threads, tt.tasks))
		})
	}
}

func TestTempSibling(t *testing.T) {
	tmp := tempSibling("/data/out/report.csv")
	assert.Equal(t, "/data/out", path.Dir(tmp), "commit rename must stay within one directory")
	assert.True(t, strings.HasPrefix(path.Base(tmp), ".report.csv.tmp-"))
}
