// Package hdfstypes provides shared type definitions for the webhdfs module.
package hdfstypes

import (
	"net/http"
	"time"

	"github.com/go-git/go-billy/v5"
)

// PathType distinguishes files from directories in server-reported metadata.
type PathType string

// Path types reported by GETFILESTATUS and LISTSTATUS.
const (
	// TypeFile marks a regular file.
	TypeFile PathType = "FILE"

	// TypeDirectory marks a directory.
	TypeDirectory PathType = "DIRECTORY"

	// TypeSymlink marks a symbolic link.
	TypeSymlink PathType = "SYMLINK"
)

// FileStatus is a read-only snapshot of the attributes the server reports
// for one path. Field names and encodings mirror the WebHDFS FileStatus
// JSON object.
type FileStatus struct {
	// PathSuffix is the path component relative to the listed directory.
	// It is empty in GETFILESTATUS responses.
	PathSuffix string `json:"pathSuffix"`

	// Type is FILE, DIRECTORY or SYMLINK.
	Type PathType `json:"type"`

	// Length is the file size in bytes (zero for directories).
	Length int64 `json:"length"`

	// ModificationTime is milliseconds since the epoch.
	ModificationTime int64 `json:"modificationTime"`

	// AccessTime is milliseconds since the epoch.
	AccessTime int64 `json:"accessTime"`

	// Permission is the octal permission string, e.g. "644".
	Permission string `json:"permission"`

	// Owner is the owning user.
	Owner string `json:"owner"`

	// Group is the owning group.
	Group string `json:"group"`

	// Replication is the replication factor (zero for directories).
	Replication int `json:"replication"`

	// BlockSize is the block size in bytes (zero for directories).
	BlockSize int64 `json:"blockSize"`
}

// IsDir reports whether the status describes a directory.
func (s *FileStatus) IsDir() bool {
	return s.Type == TypeDirectory
}

// Modified returns the modification time as a time.Time.
func (s *FileStatus) Modified() time.Time {
	return time.UnixMilli(s.ModificationTime)
}

// ContentSummary aggregates usage numbers for a directory subtree, as
// reported by GETCONTENTSUMMARY.
type ContentSummary struct {
	DirectoryCount int64 `json:"directoryCount"`
	FileCount      int64 `json:"fileCount"`
	Length         int64 `json:"length"`
	Quota          int64 `json:"quota"`
	SpaceConsumed  int64 `json:"spaceConsumed"`
	SpaceQuota     int64 `json:"spaceQuota"`
}

// FileChecksum is the server-computed checksum of a file, as reported by
// GETFILECHECKSUM.
type FileChecksum struct {
	Algorithm string `json:"algorithm"`
	Bytes     string `json:"bytes"`
	Length    int64  `json:"length"`
}

// ClientConfig holds the externally supplied configuration for one client
// session. The zero value is not usable; at least one namenode URL is
// required.
type ClientConfig struct {
	// Namenodes is the ordered list of candidate namenode base URLs for
	// the same logical cluster, e.g. "http://nn1:9870". The transport
	// sticks to the first one that answers and fails over down the list.
	Namenodes []string

	// Root is the path prepended to relative remote paths, exactly once
	// per resolution. Leave empty to reject relative paths.
	Root string

	// Session is the pre-authenticated HTTP client used for every
	// request. Authentication negotiation (Kerberos, tokens, ...) is the
	// session provider's concern, never the client's. A nil session
	// falls back to a plain http.Client.
	Session *http.Client

	// Timeout bounds each individual HTTP request. Zero disables the
	// per-request timeout.
	Timeout time.Duration

	// MaxRetries bounds retry attempts for idempotent operations on
	// transient failures. Mutating operations without an overwrite
	// guarantee are never retried regardless of this value.
	MaxRetries int

	// Filesystem is the local filesystem used by transfers. Defaults to
	// the OS filesystem; tests substitute an in-memory one.
	Filesystem billy.Filesystem
}

// Option configures a ClientConfig.
type Option func(*ClientConfig)

// TransferOptionConfig holds the per-batch settings for Upload and
// Download calls.
type TransferOptionConfig struct {
	// Threads sets the worker pool size. Positive values bound the pool,
	// zero allocates one worker per discovered task, and the default
	// (option absent) runs strictly sequentially.
	Threads int

	// ChunkSize is the streaming buffer size; every chunk boundary is a
	// progress reporting point.
	ChunkSize int64

	// Overwrite allows replacing existing destinations. When false, the
	// whole batch is rejected before any byte moves if any destination
	// exists.
	Overwrite bool

	// Progress receives (sourcePath, bytesSoFar) at each chunk boundary
	// and (sourcePath, -1) exactly once when that path completes,
	// success or failure.
	Progress ProgressFunc
}

// TransferOption configures a TransferOptionConfig.
type TransferOption func(*TransferOptionConfig)

// ProgressFunc is the progress callback contract. Calls for different
// paths may interleave arbitrarily across workers; calls for one path are
// strictly ordered with monotonically increasing byte counts and the
// terminal -1 last.
type ProgressFunc func(path string, bytes int64)
