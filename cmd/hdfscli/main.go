// hdfscli is a command line interface for WebHDFS clusters.
//
// Usage:
//
//	hdfscli -n http://nn1:9870 [-n http://nn2:9870] [--root /user/alice] COMMAND ...
//
// It exposes the library's public operation surface: upload, download,
// ls, stat, du, cat, rm, mv, mkdir and checksum.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/thought-machine/go-flags"
	"gopkg.in/op/go-logging.v1"

	"github.com/mtth/hdfs"
	"github.com/mtth/hdfs/hdfstypes"
)

var log = logging.MustGetLogger("hdfscli")

var opts struct {
	Namenodes []string      `short:"n" long:"namenode" env:"HDFSCLI_NAMENODE" env-delim:"," required:"true" description:"Namenode base URL; repeat for failover candidates, in order"`
	Root      string        `short:"r" long:"root" env:"HDFSCLI_ROOT" description:"Root path prepended to relative remote paths"`
	Timeout   time.Duration `long:"timeout" default:"20s" description:"Per-request timeout for metadata calls"`
	Retries   int           `long:"retries" default:"2" description:"Retry bound for idempotent operations"`
	Verbose   []bool        `short:"v" long:"verbose" description:"Increase log verbosity; repeatable"`

	Upload   uploadCmd   `command:"upload" description:"Upload a local file or directory"`
	Download downloadCmd `command:"download" description:"Download a remote file or directory"`
	Ls       lsCmd       `command:"ls" description:"List a remote directory"`
	Stat     statCmd     `command:"stat" description:"Show the status of a remote path"`
	Du       duCmd       `command:"du" description:"Show disk usage of a remote subtree"`
	Cat      catCmd      `command:"cat" description:"Stream a remote file to standard output"`
	Rm       rmCmd       `command:"rm" description:"Delete a remote path"`
	Mv       mvCmd       `command:"mv" description:"Rename a remote path"`
	Mkdir    mkdirCmd    `command:"mkdir" description:"Create a remote directory"`
	Checksum checksumCmd `command:"checksum" description:"Show the server-side checksum of a remote file"`
}

func main() {
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.CommandHandler = func(command flags.Commander, args []string) error {
		initLogging(len(opts.Verbose))
		if command == nil {
			return nil
		}
		return command.Execute(args)
	}
	if _, err := parser.Parse(); err != nil {
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp {
			parser.WriteHelp(os.Stdout)
			os.Exit(0)
		}
		log.Error(err.Error())
		os.Exit(1)
	}
}

func initLogging(verbosity int) {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatter := logging.MustStringFormatter("%{level:-5s} %{module}: %{message}")
	leveled := logging.AddModuleLevel(logging.NewBackendFormatter(backend, formatter))
	levels := []logging.Level{logging.ERROR, logging.WARNING, logging.INFO, logging.DEBUG}
	if verbosity >= len(levels) {
		verbosity = len(levels) - 1
	}
	leveled.SetLevel(levels[verbosity], "")
	logging.SetBackend(leveled)
}

// orDot defaults an omitted remote path to the configured root.
func orDot(p string) string {
	if p == "" {
		return "."
	}
	return p
}

func newClient() (*hdfs.Client, error) {
	return hdfs.New(
		hdfs.WithNamenodes(opts.Namenodes...),
		hdfs.WithRoot(opts.Root),
		hdfs.WithTimeout(opts.Timeout),
		hdfs.WithMaxRetries(opts.Retries),
	)
}

// transferFlags are shared by upload and download.
type transferFlags struct {
	Threads int   `short:"t" long:"threads" default:"-1" description:"Worker count: positive bounds the pool, 0 allocates one per file, unset runs sequentially"`
	Force   bool  `short:"f" long:"force" description:"Overwrite existing destinations"`
	Silent  bool  `short:"s" long:"silent" description:"Don't display progress"`
	Chunk   int64 `long:"chunk-size" default:"65536" description:"Streaming chunk size in bytes"`
}

func (f *transferFlags) options() []hdfstypes.TransferOption {
	transferOpts := []hdfstypes.TransferOption{
		hdfs.WithOverwrite(f.Force),
		hdfs.WithChunkSize(f.Chunk),
	}
	if f.Threads >= 0 {
		transferOpts = append(transferOpts, hdfs.WithThreads(f.Threads))
	}
	if !f.Silent {
		transferOpts = append(transferOpts, hdfs.WithProgress(newConsoleProgress().update))
	}
	return transferOpts
}

// consoleProgress prints one line per finished file plus a running byte
// total, aggregated through the thread-safe progress façade.
type consoleProgress struct {
	mu       sync.Mutex
	tracker  *hdfstypes.Progress
	finished int
}

func newConsoleProgress() *consoleProgress {
	return &consoleProgress{tracker: hdfstypes.NewProgress()}
}

func (p *consoleProgress) update(path string, bytes int64) {
	p.tracker.Update(path, bytes)
	if bytes >= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished++
	fmt.Fprintf(os.Stderr, "%s\t[%d done, %s so far]\n",
		path, p.finished, humanize.Bytes(uint64(p.tracker.TotalBytes())))
}

type uploadCmd struct {
	transferFlags
	Args struct {
		LocalPath  string `positional-arg-name:"LOCAL_PATH" required:"true"`
		RemotePath string `positional-arg-name:"REMOTE_PATH" required:"true"`
	} `positional-args:"true"`
}

func (c *uploadCmd) Execute([]string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return client.Upload(context.Background(), c.Args.LocalPath, c.Args.RemotePath, c.options()...)
}

type downloadCmd struct {
	transferFlags
	Args struct {
		RemotePath string `positional-arg-name:"REMOTE_PATH" required:"true"`
		LocalPath  string `positional-arg-name:"LOCAL_PATH" required:"true"`
	} `positional-args:"true"`
}

func (c *downloadCmd) Execute([]string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return client.Download(context.Background(), c.Args.RemotePath, c.Args.LocalPath, c.options()...)
}

type lsCmd struct {
	Args struct {
		RemotePath string `positional-arg-name:"REMOTE_PATH"`
	} `positional-args:"true"`
}

func (c *lsCmd) Execute([]string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	statuses, err := client.List(context.Background(), orDot(c.Args.RemotePath))
	if err != nil {
		return err
	}
	for _, status := range statuses {
		size := "-"
		if !status.IsDir() {
			size = humanize.Bytes(uint64(status.Length))
		}
		fmt.Printf("%-9s %-8s %-8s %8s %s %s\n",
			formatMode(&status), status.Owner, status.Group, size,
			status.Modified().Format("2006-01-02 15:04"), status.PathSuffix)
	}
	return nil
}

func formatMode(status *hdfstypes.FileStatus) string {
	prefix := "-"
	if status.IsDir() {
		prefix = "d"
	}
	return prefix + status.Permission
}

type statCmd struct {
	Args struct {
		RemotePath string `positional-arg-name:"REMOTE_PATH" required:"true"`
	} `positional-args:"true"`
}

func (c *statCmd) Execute([]string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	ctx := context.Background()
	resolved, err := client.Resolve(ctx, c.Args.RemotePath)
	if err != nil {
		return err
	}
	status, err := client.Status(ctx, resolved)
	if err != nil {
		return err
	}
	fmt.Printf("path\t%s\ntype\t%s\nsize\t%d\nowner\t%s\ngroup\t%s\nperm\t%s\nmtime\t%s\nrepl\t%d\nblock\t%d\n",
		resolved, status.Type, status.Length, status.Owner, status.Group,
		status.Permission, status.Modified().Format(time.RFC3339),
		status.Replication, status.BlockSize)
	return nil
}

type duCmd struct {
	Args struct {
		RemotePath string `positional-arg-name:"REMOTE_PATH"`
	} `positional-args:"true"`
}

func (c *duCmd) Execute([]string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	summary, err := client.ContentSummary(context.Background(), orDot(c.Args.RemotePath))
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%d files\t%d dirs\t%s consumed\n",
		humanize.Bytes(uint64(summary.Length)), summary.FileCount,
		summary.DirectoryCount, humanize.Bytes(uint64(summary.SpaceConsumed)))
	return nil
}

type catCmd struct {
	Args struct {
		RemotePath string `positional-arg-name:"REMOTE_PATH" required:"true"`
	} `positional-args:"true"`
}

func (c *catCmd) Execute([]string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	reader, err := client.Open(context.Background(), c.Args.RemotePath)
	if err != nil {
		return err
	}
	defer reader.Close()
	_, err = io.Copy(os.Stdout, reader)
	return err
}

type rmCmd struct {
	Recursive bool `short:"R" long:"recursive" description:"Delete directories and their contents"`
	Args      struct {
		RemotePath string `positional-arg-name:"REMOTE_PATH" required:"true"`
	} `positional-args:"true"`
}

func (c *rmCmd) Execute([]string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return client.Delete(context.Background(), c.Args.RemotePath, c.Recursive)
}

type mvCmd struct {
	Args struct {
		Source      string `positional-arg-name:"SOURCE" required:"true"`
		Destination string `positional-arg-name:"DESTINATION" required:"true"`
	} `positional-args:"true"`
}

func (c *mvCmd) Execute([]string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return client.Rename(context.Background(), c.Args.Source, c.Args.Destination)
}

type mkdirCmd struct {
	Permission string `short:"p" long:"permission" description:"Octal permission string, e.g. 755"`
	Args       struct {
		RemotePath string `positional-arg-name:"REMOTE_PATH" required:"true"`
	} `positional-args:"true"`
}

func (c *mkdirCmd) Execute([]string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	return client.Mkdirs(context.Background(), c.Args.RemotePath, c.Permission)
}

type checksumCmd struct {
	Args struct {
		RemotePath string `positional-arg-name:"REMOTE_PATH" required:"true"`
	} `positional-args:"true"`
}

func (c *checksumCmd) Execute([]string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	checksum, err := client.Checksum(context.Background(), c.Args.RemotePath)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\n", checksum.Algorithm, checksum.Bytes)
	return nil
}
