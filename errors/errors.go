// Package errors provides error types and classification for WebHDFS
// operations.
//
// Remote failures reported by the namenode arrive as a JSON RemoteException
// payload; DecodeRemote maps the exception class onto one of the sentinel
// errors below so callers can branch with errors.Is without caring about
// Java class names.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Error represents a failed filesystem operation with context about the
// operation and remote path involved.
type Error struct {
	// Op is the operation that failed (e.g. "open", "rename", "upload").
	Op string

	// Path is the remote path the operation was acting on, if any.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("hdfs.%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("hdfs.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is / errors.As chaining.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithPath adds remote path context to an existing error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// New creates a new Error with the given operation and underlying cause.
func New(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

// NewPathError creates a new Error with operation and path context.
func NewPathError(op, path string, err error) *Error {
	return &Error{Op: op, Path: path, Err: err}
}

// Sentinel errors for the WebHDFS failure taxonomy. Use errors.Is to test
// for them through any number of wrapping layers.
var (
	// ErrFileNotFound indicates the remote path does not exist.
	ErrFileNotFound = errors.New("hdfs: file not found")

	// ErrAlreadyExists indicates the remote path already exists.
	ErrAlreadyExists = errors.New("hdfs: path already exists")

	// ErrPermissionDenied indicates the authenticated user lacks access.
	ErrPermissionDenied = errors.New("hdfs: permission denied")

	// ErrIllegalArgument indicates the server rejected a request parameter.
	ErrIllegalArgument = errors.New("hdfs: illegal argument")

	// ErrNotEmptyDirectory indicates a non-recursive delete of a non-empty
	// directory.
	ErrNotEmptyDirectory = errors.New("hdfs: directory is not empty")

	// ErrProtocol indicates a malformed exchange, typically a data
	// operation whose expected redirect was missing or unusable.
	ErrProtocol = errors.New("hdfs: protocol error")

	// ErrConnectivity indicates that every configured namenode was tried
	// and none could serve the request.
	ErrConnectivity = errors.New("hdfs: no namenode could be reached")

	// ErrInvalidConfig indicates unusable client configuration, such as a
	// relative path with no root configured.
	ErrInvalidConfig = errors.New("hdfs: invalid configuration")
)

// IsFileNotFound reports whether err indicates a missing remote path.
func IsFileNotFound(err error) bool {
	return errors.Is(err, ErrFileNotFound)
}

// IsAlreadyExists reports whether err indicates an existing remote path.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsPermissionDenied reports whether err indicates denied access.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsConnectivity reports whether err indicates endpoint exhaustion.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrConnectivity)
}

// RemoteException is the error payload returned by WebHDFS endpoints.
type RemoteException struct {
	Exception     string `json:"exception"`
	JavaClassName string `json:"javaClassName"`
	Message       string `json:"message"`
}

// Error implements the error interface.
func (e *RemoteException) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Exception, e.Message)
	}
	return e.Exception
}

// remoteExceptionEnvelope mirrors the JSON document wrapping a
// RemoteException on the wire.
type remoteExceptionEnvelope struct {
	RemoteException *RemoteException `json:"RemoteException"`
}

// DecodeRemote parses a RemoteException document from r and returns an
// error classified against the sentinel taxonomy. It returns nil if the
// body holds no decodable exception; callers fall back to status-code
// handling in that case.
func DecodeRemote(r io.Reader) error {
	var envelope remoteExceptionEnvelope
	if err := json.NewDecoder(r).Decode(&envelope); err != nil || envelope.RemoteException == nil {
		return nil
	}
	return Classify(envelope.RemoteException)
}

// Classify maps a remote exception onto the sentinel taxonomy, preserving
// the server-side message. Standby and retriable exceptions are left
// unclassified; the transport treats those as failover triggers rather
// than terminal errors.
func Classify(remote *RemoteException) error {
	sentinel := sentinelFor(remote)
	if sentinel == nil {
		return remote
	}
	return fmt.Errorf("%w: %s", sentinel, remote.Message)
}

// IsStandby reports whether err carries a remote exception indicating the
// contacted namenode is not the active one. Such errors must trigger
// failover, never surface to the caller.
func IsStandby(err error) bool {
	var remote *RemoteException
	if !errors.As(err, &remote) {
		return false
	}
	switch remote.Exception {
	case "StandbyException", "RetriableException":
		return true
	}
	return strings.Contains(remote.JavaClassName, "StandbyException")
}

func sentinelFor(remote *RemoteException) error {
	switch remote.Exception {
	case "FileNotFoundException", "PathNotFoundException":
		return ErrFileNotFound
	case "FileAlreadyExistsException", "PathExistsException":
		return ErrAlreadyExists
	case "AccessControlException", "SecurityException", "AuthorizationException":
		return ErrPermissionDenied
	case "IllegalArgumentException", "UnsupportedOperationException", "InvalidPathException":
		return ErrIllegalArgument
	case "PathIsNotEmptyDirectoryException":
		return ErrNotEmptyDirectory
	}
	return nil
}
