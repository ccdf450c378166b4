// Package transfer implements the concurrent transfer engine: chunked,
// multi-worker upload and download of files and directory trees with
// atomic per-file commit, progress reporting and aggregate batch errors.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"math/rand"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"gopkg.in/op/go-logging.v1"

	hdfserrors "github.com/mtth/hdfs/errors"
	"github.com/mtth/hdfs/hdfstypes"
)

var log = logging.MustGetLogger("hdfs.transfer")

// preflightParallelism bounds the concurrent existence checks performed
// before a batch moves any byte.
const preflightParallelism = 8

// DefaultChunkSize is the streaming buffer size used when the caller does
// not pick one. Every chunk boundary is a progress reporting point.
const DefaultChunkSize = 64 * 1024

// Remote is the slice of the client surface the engine drives. Paths
// passed in are already resolved.
type Remote interface {
	Status(ctx context.Context, path string) (*hdfstypes.FileStatus, error)
	List(ctx context.Context, path string) ([]hdfstypes.FileStatus, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Create(ctx context.Context, path string, overwrite bool, contentType string) (io.WriteCloser, error)
	Rename(ctx context.Context, src, dst string) error
	Delete(ctx context.Context, path string, recursive bool) error
	Mkdirs(ctx context.Context, path string) error
}

// Config carries the per-batch transfer settings.
type Config struct {
	// Threads is the worker pool size: positive bounds the pool, zero
	// allocates one worker per task, negative (the engine default when
	// the caller said nothing) runs a single worker.
	Threads int

	// ChunkSize is the streaming buffer size in bytes.
	ChunkSize int64

	// Overwrite allows replacing existing destinations.
	Overwrite bool

	// Progress receives (sourcePath, bytesSoFar) per chunk and a single
	// terminal (sourcePath, -1) per task.
	Progress hdfstypes.ProgressFunc
}

// task is one file to move; a batch is a flat, stably ordered list of
// independent tasks.
type task struct {
	src string
	dst string
}

// Engine moves bytes between a local filesystem and the remote cluster.
type Engine struct {
	remote Remote
	fs     billy.Filesystem
}

// New creates an engine over the given remote surface and local
// filesystem.
func New(remote Remote, fs billy.Filesystem) *Engine {
	return &Engine{remote: remote, fs: fs}
}

// Upload copies a local file or directory tree to the remote filesystem.
// remoteDst must already be resolved. If remoteDst is an existing
// directory the source is placed underneath it, mirroring the source
// tree's relative layout.
func (e *Engine) Upload(ctx context.Context, localSrc, remoteDst string, cfg Config) error {
	cfg = withDefaults(cfg)

	info, err := e.fs.Stat(localSrc)
	if err != nil {
		return hdfserrors.NewPathError("upload", localSrc, err)
	}

	// An existing directory destination hosts the source under its own
	// basename, the way a shell cp into a directory would.
	if status, err := e.remote.Status(ctx, remoteDst); err == nil {
		if status.IsDir() {
			remoteDst = path.Join(remoteDst, filepath.Base(localSrc))
		}
	} else if !hdfserrors.IsFileNotFound(err) {
		return err
	}

	var tasks []task
	var dirs []string
	if info.IsDir() {
		tasks, dirs, err = e.localTree(localSrc, remoteDst)
		if err != nil {
			return hdfserrors.NewPathError("upload", localSrc, err)
		}
	} else {
		tasks = []task{{src: localSrc, dst: remoteDst}}
	}

	if !cfg.Overwrite {
		if err := e.preflightRemote(ctx, tasks); err != nil {
			return err
		}
	}

	// Mirror the directory skeleton first so empty directories survive
	// the transfer too.
	for _, dir := range dirs {
		if err := e.remote.Mkdirs(ctx, dir); err != nil {
			return err
		}
	}

	log.Debugf("uploading %d file(s) to %s", len(tasks), remoteDst)
	return e.run(ctx, "upload", tasks, cfg, func(ctx context.Context, t task) error {
		return e.uploadOne(ctx, t, cfg)
	})
}

// Download copies a remote file or directory tree to the local
// filesystem. remoteSrc must already be resolved. If localDst is an
// existing directory the source is placed underneath it.
func (e *Engine) Download(ctx context.Context, remoteSrc, localDst string, cfg Config) error {
	cfg = withDefaults(cfg)

	status, err := e.remote.Status(ctx, remoteSrc)
	if err != nil {
		return err
	}
	if info, err := e.fs.Stat(localDst); err == nil && info.IsDir() {
		localDst = filepath.Join(localDst, path.Base(remoteSrc))
	}

	var tasks []task
	var dirs []string
	if status.IsDir() {
		tasks, dirs, err = e.remoteTree(ctx, remoteSrc, localDst)
		if err != nil {
			return err
		}
	} else {
		tasks = []task{{src: remoteSrc, dst: localDst}}
	}

	if !cfg.Overwrite {
		for _, t := range tasks {
			if _, err := e.fs.Stat(t.dst); err == nil {
				return hdfserrors.NewPathError("download", t.dst, hdfserrors.ErrAlreadyExists)
			}
		}
	}

	for _, dir := range dirs {
		if err := e.fs.MkdirAll(dir, 0o755); err != nil {
			return hdfserrors.NewPathError("download", dir, err)
		}
	}

	log.Debugf("downloading %d file(s) to %s", len(tasks), localDst)
	return e.run(ctx, "download", tasks, cfg, func(ctx context.Context, t task) error {
		return e.downloadOne(ctx, t, cfg)
	})
}

// withDefaults fills unset batch settings.
func withDefaults(cfg Config) Config {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return cfg
}

// localTree flattens a local directory into transfer tasks plus the
// directory skeleton, both lexically sorted for deterministic dispatch.
func (e *Engine) localTree(localSrc, remoteDst string) ([]task, []string, error) {
	var tasks []task
	var dirs []string
	err := util.Walk(e.fs, localSrc, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localSrc, p)
		if err != nil {
			return err
		}
		target := remoteDst
		if rel != "." {
			target = path.Join(remoteDst, filepath.ToSlash(rel))
		}
		if info.IsDir() {
			dirs = append(dirs, target)
			return nil
		}
		tasks = append(tasks, task{src: p, dst: target})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].src < tasks[j].src })
	sort.Strings(dirs)
	return tasks, dirs, nil
}

// remoteTree flattens a remote directory into transfer tasks plus the
// local directory skeleton, lexically sorted.
func (e *Engine) remoteTree(ctx context.Context, remoteSrc, localDst string) ([]task, []string, error) {
	var tasks []task
	dirs := []string{localDst}
	var walk func(dir, local string) error
	walk = func(dir, local string) error {
		children, err := e.remote.List(ctx, dir)
		if err != nil {
			return err
		}
		sort.Slice(children, func(i, j int) bool {
			return children[i].PathSuffix < children[j].PathSuffix
		})
		for _, child := range children {
			remotePath := path.Join(dir, child.PathSuffix)
			localPath := filepath.Join(local, child.PathSuffix)
			if child.IsDir() {
				dirs = append(dirs, localPath)
				if err := walk(remotePath, localPath); err != nil {
					return err
				}
				continue
			}
			tasks = append(tasks, task{src: remotePath, dst: localPath})
		}
		return nil
	}
	if err := walk(remoteSrc, localDst); err != nil {
		return nil, nil, err
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].src < tasks[j].src })
	sort.Strings(dirs)
	return tasks, dirs, nil
}

// preflightRemote rejects the batch if any remote destination already
// exists. It runs before any byte moves and has no side effects of its
// own.
func (e *Engine) preflightRemote(ctx context.Context, tasks []task) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(preflightParallelism)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			_, err := e.remote.Status(ctx, t.dst)
			switch {
			case err == nil:
				return hdfserrors.NewPathError("upload", t.dst, hdfserrors.ErrAlreadyExists)
			case hdfserrors.IsFileNotFound(err):
				return nil
			default:
				return err
			}
		})
	}
	return g.Wait()
}

// run drives all tasks to completion on a bounded worker pool and returns
// one aggregate error naming every failed path. There is no global abort:
// a failing task never prevents the others from finishing, and files
// committed before a failure stay committed.
func (e *Engine) run(ctx context.Context, op string, tasks []task, cfg Config, fn func(context.Context, task) error) error {
	if len(tasks) == 0 {
		return nil
	}
	workers := poolSize(cfg.Threads, len(tasks))
	log.Debugf("%s: dispatching %d task(s) on %d worker(s)", op, len(tasks), workers)

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var merr *multierror.Error
	for _, t := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(t task) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := fn(ctx, t); err != nil {
				mu.Lock()
				merr = multierror.Append(merr, hdfserrors.NewPathError(op, t.src, err))
				mu.Unlock()
			}
		}(t)
	}
	wg.Wait()
	return merr.ErrorOrNil()
}

// poolSize applies the thread-count contract: positive bounds the pool,
// zero means one worker per task, anything else a single worker.
func poolSize(threads, taskCount int) int {
	switch {
	case threads > 0:
		if threads > taskCount {
			return taskCount
		}
		return threads
	case threads == 0:
		return taskCount
	default:
		return 1
	}
}

// uploadOne streams one local file into a temporary remote sibling and
// renames it into place once the stream finished cleanly. A failed upload
// deletes the temporary and never becomes visible at the destination.
func (e *Engine) uploadOne(ctx context.Context, t task, cfg Config) error {
	report := reporter(cfg.Progress)
	defer report(t.src, -1)

	file, err := e.fs.Open(t.src)
	if err != nil {
		return err
	}
	defer file.Close()

	buf := make([]byte, cfg.ChunkSize)
	n, readErr := io.ReadFull(file, buf)
	if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
		return readErr
	}

	contentType := "application/octet-stream"
	if n > 0 {
		if mt := mimetype.Detect(buf[:n]); mt != nil {
			contentType = mt.String()
		}
	}

	tmp := tempSibling(t.dst)
	writer, err := e.remote.Create(ctx, tmp, true, contentType)
	if err != nil {
		return err
	}

	var total int64
	stream := func() error {
		for {
			if n > 0 {
				if _, err := writer.Write(buf[:n]); err != nil {
					return err
				}
				total += int64(n)
				report(t.src, total)
			}
			if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
				return nil
			}
			n, readErr = io.ReadFull(file, buf)
			if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
				return readErr
			}
		}
	}
	if err := stream(); err != nil {
		writer.Close()
		e.discardRemote(ctx, tmp)
		return err
	}
	if err := writer.Close(); err != nil {
		e.discardRemote(ctx, tmp)
		return err
	}

	if cfg.Overwrite {
		if err := e.remote.Delete(ctx, t.dst, false); err != nil && !hdfserrors.IsFileNotFound(err) {
			e.discardRemote(ctx, tmp)
			return err
		}
	}
	if err := e.remote.Rename(ctx, tmp, t.dst); err != nil {
		e.discardRemote(ctx, tmp)
		return err
	}
	log.Debugf("uploaded %s (%d bytes)", t.dst, total)
	return nil
}

// downloadOne streams one remote file into a local temporary in the
// destination directory and renames it into place on success.
func (e *Engine) downloadOne(ctx context.Context, t task, cfg Config) error {
	report := reporter(cfg.Progress)
	defer report(t.src, -1)

	reader, err := e.remote.Open(ctx, t.src)
	if err != nil {
		return err
	}
	defer reader.Close()

	dir := filepath.Dir(t.dst)
	if err := e.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmpFile, err := e.fs.TempFile(dir, "."+filepath.Base(t.dst)+".tmp")
	if err != nil {
		return err
	}
	tmp := tmpFile.Name()

	buf := make([]byte, cfg.ChunkSize)
	var total int64
	stream := func() error {
		for {
			n, readErr := io.ReadFull(reader, buf)
			if n > 0 {
				if _, err := tmpFile.Write(buf[:n]); err != nil {
					return err
				}
				total += int64(n)
				report(t.src, total)
			}
			if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
				return nil
			}
			if readErr != nil {
				return readErr
			}
		}
	}
	if err := stream(); err != nil {
		tmpFile.Close()
		e.fs.Remove(tmp)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		e.fs.Remove(tmp)
		return err
	}

	if cfg.Overwrite {
		// billy's os-backed Rename refuses to clobber on some
		// platforms; clearing the destination first keeps behavior
		// uniform.
		if err := e.fs.Remove(t.dst); err != nil && !isNotExist(err) {
			e.fs.Remove(tmp)
			return err
		}
	}
	if err := e.fs.Rename(tmp, t.dst); err != nil {
		e.fs.Remove(tmp)
		return err
	}
	log.Debugf("downloaded %s (%d bytes)", t.dst, total)
	return nil
}

// discardRemote removes a temporary artifact, best effort.
func (e *Engine) discardRemote(ctx context.Context, p string) {
	if err := e.remote.Delete(ctx, p, false); err != nil && !hdfserrors.IsFileNotFound(err) {
		log.Warningf("leaking temporary %s: %v", p, err)
	}
}

// reporter wraps the progress callback so call sites never nil-check.
func reporter(fn hdfstypes.ProgressFunc) hdfstypes.ProgressFunc {
	if fn == nil {
		return func(string, int64) {}
	}
	return fn
}

// tempSibling builds a dot-prefixed temporary name next to the final
// destination, so the commit rename stays within one directory.
func tempSibling(dst string) string {
	dir, base := path.Split(dst)
	return fmt.Sprintf("%s.%s.tmp-%08x", dir, base, rand.Uint32())
}

func isNotExist(err error) bool {
	return errors.Is(err, iofs.ErrNotExist) || os.IsNotExist(err)
}
