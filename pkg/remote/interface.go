package remote

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"photobackup/pkg/shared"
)

// Tool is the external sync program that owns the remote storage protocol.
type Tool interface {
	GetToolType() ToolType
	// List returns every file currently stored on the remote.
	List(ctx context.Context) ([]shared.CacheEntry, error)
	// CopyTo uploads one local file to remotePath. A non-nil error is a
	// per-file failure; the caller decides whether it is fatal.
	CopyTo(ctx context.Context, localPath, remotePath string) error
}

type ToolType string

const (
	ToolTypeRclone ToolType = "rclone"
)

type ToolError struct {
	Type   ErrorType
	Op     string
	Stderr string
	Cause  error
}

type ErrorType string

const (
	ErrorTypeStart      ErrorType = "start_failed"
	ErrorTypeExit       ErrorType = "exit_status"
	ErrorTypeOutput     ErrorType = "error_output"
	ErrorTypeUnparsable ErrorType = "unparsable_output"
)

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Type)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (%v)", e.Cause)
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

// IsToolError reports whether err came from the external tool rather than
// from the local filesystem.
func IsToolError(err error) bool {
	var toolErr *ToolError
	return errors.As(err, &toolErr)
}

// Path builds a remote object name the way the remote listing reports it:
// slash separated and without a leading slash.
func Path(elem ...string) string {
	parts := make([]string, len(elem))
	for i, e := range elem {
		parts[i] = filepath.ToSlash(e)
	}
	return strings.TrimPrefix(path.Join(parts...), "/")
}
