package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"photobackup/pkg/fileinfo"
	"photobackup/pkg/logger"
	"photobackup/pkg/remote"
	"photobackup/pkg/shared"
)

// CacheAppender is the write side of the remote listing cache.
type CacheAppender interface {
	Append(entry shared.CacheEntry) error
}

// FilesystemError is a local failure while writing a target copy or the
// cache. It halts the batch.
type FilesystemError struct {
	Op    string
	Path  string
	Cause error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *FilesystemError) Unwrap() error {
	return e.Cause
}

// StopFlag is a cooperative cancellation token. Front ends raise it and the
// executor checks it between items.
type StopFlag struct {
	stopped atomic.Bool
}

func (f *StopFlag) Stop() {
	f.stopped.Store(true)
}

func (f *StopFlag) Reset() {
	f.stopped.Store(false)
}

func (f *StopFlag) Stopped() bool {
	return f.stopped.Load()
}

// ShouldContinue can be passed to Execute directly.
func (f *StopFlag) ShouldContinue() bool {
	return !f.Stopped()
}

// Warning is a per-item remote failure that did not stop the batch.
type Warning struct {
	Source string `json:"source"`
	Remote string `json:"remote"`
	Error  string `json:"error"`
}

type Report struct {
	Total        int       `json:"total"`
	Processed    int       `json:"processed"`
	RemoteCopied int       `json:"remote_copied"`
	TargetCopied int       `json:"target_copied"`
	Warnings     []Warning `json:"warnings"`
	Cancelled    bool      `json:"cancelled"`
	Duration     string    `json:"duration"`
}

type Executor struct {
	fs            afero.Fs
	tool          remote.Tool
	cache         CacheAppender
	logger        *logger.Logger
	appendOnError bool
}

type Option func(*Executor)

// WithAppendOnError controls whether a cache entry is recorded for a remote
// copy the tool reported as failed. Enabled by default.
func WithAppendOnError(enabled bool) Option {
	return func(e *Executor) {
		e.appendOnError = enabled
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(e *Executor) {
		e.logger = log
	}
}

func NewExecutor(fs afero.Fs, tool remote.Tool, cache CacheAppender, opts ...Option) *Executor {
	e := &Executor{
		fs:            fs,
		tool:          tool,
		cache:         cache,
		logger:        logger.Default(),
		appendOnError: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProgressMessage formats the line emitted before item index (1-based) of
// total is processed.
func ProgressMessage(index, total int, source string) string {
	width := len(strconv.Itoa(total))
	return fmt.Sprintf("(%0*d/%d) Processing: %s", width, index, total, source)
}

// Execute applies items one at a time in order. shouldContinue is checked
// before each item; once it returns false no further item is touched. A
// remote failure is recorded as a warning and the batch goes on; a local
// filesystem failure is returned as *FilesystemError with the report of what
// was done so far. Cancelling ctx ends the batch with ctx.Err() and no cache
// entry for the interrupted upload. Nothing is rolled back.
func (e *Executor) Execute(ctx context.Context, items []shared.PendingTransferItem, progress func(string), shouldContinue func() bool) (*Report, error) {
	startTime := time.Now()
	report := &Report{Total: len(items), Warnings: []Warning{}}
	defer func() {
		report.Duration = time.Since(startTime).String()
	}()

	if progress == nil {
		progress = func(string) {}
	}
	if shouldContinue == nil {
		shouldContinue = func() bool { return true }
	}

	for i, item := range items {
		if !shouldContinue() {
			report.Cancelled = true
			e.logger.Info("transfer stopped", map[string]any{
				"processed": report.Processed,
				"remaining": len(items) - i,
			})
			break
		}
		if err := ctx.Err(); err != nil {
			report.Cancelled = true
			e.logger.Warn("transfer aborted", map[string]any{
				"processed": report.Processed,
				"remaining": len(items) - i,
			})
			return report, err
		}

		progress(ProgressMessage(i+1, len(items), item.Source))

		if item.NeedsRemote() {
			if err := e.copyToRemote(ctx, item, report); err != nil {
				return report, err
			}
		}

		if item.NeedsTarget() {
			if err := e.copyToTarget(item.Source, item.TargetDestination); err != nil {
				e.logger.Error("failed to copy file to target", err, map[string]any{
					"source": item.Source,
					"target": item.TargetDestination,
				})
				return report, err
			}
			report.TargetCopied++
		}

		report.Processed++
	}

	e.logger.Info("transfer finished", map[string]any{
		"total":         report.Total,
		"processed":     report.Processed,
		"remote_copied": report.RemoteCopied,
		"target_copied": report.TargetCopied,
		"warnings":      len(report.Warnings),
		"cancelled":     report.Cancelled,
		"duration":      time.Since(startTime),
	})

	return report, nil
}

func (e *Executor) copyToRemote(ctx context.Context, item shared.PendingTransferItem, report *Report) error {
	copyErr := e.tool.CopyTo(ctx, item.Source, item.RemoteDestination)
	if ctxErr := ctx.Err(); ctxErr != nil {
		report.Cancelled = true
		e.logger.Warn("remote copy aborted", map[string]any{
			"source": item.Source,
			"remote": item.RemoteDestination,
		})
		return ctxErr
	}
	if copyErr != nil {
		e.logger.Warn("remote copy reported an error", map[string]any{
			"source": item.Source,
			"remote": item.RemoteDestination,
			"error":  copyErr.Error(),
		})
		report.Warnings = append(report.Warnings, Warning{
			Source: item.Source,
			Remote: item.RemoteDestination,
			Error:  copyErr.Error(),
		})
		if !e.appendOnError {
			return nil
		}
	} else {
		report.RemoteCopied++
	}

	entry := shared.CacheEntry{Name: item.RemoteDestination, Size: shared.PlaceholderSize}
	if err := e.cache.Append(entry); err != nil {
		return &FilesystemError{Op: "append cache entry", Path: item.RemoteDestination, Cause: err}
	}
	return nil
}

func (e *Executor) copyToTarget(src, dst string) error {
	srcInfo, err := e.fs.Stat(src)
	if err != nil {
		return &FilesystemError{Op: "stat", Path: src, Cause: err}
	}

	if err := e.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return &FilesystemError{Op: "create directory", Path: filepath.Dir(dst), Cause: err}
	}

	if err := e.copyBytes(src, dst, srcInfo.Mode().Perm()); err != nil {
		return err
	}

	atime := fileinfo.AccessTime(srcInfo)
	if err := e.fs.Chtimes(dst, atime, srcInfo.ModTime()); err != nil {
		return &FilesystemError{Op: "copy timestamps", Path: dst, Cause: err}
	}
	return nil
}

func (e *Executor) copyBytes(src, dst string, perm os.FileMode) (err error) {
	in, err := e.fs.Open(src)
	if err != nil {
		return &FilesystemError{Op: "open", Path: src, Cause: err}
	}
	defer func() {
		if cerr := in.Close(); cerr != nil {
			e.logger.Error("failed to close file", cerr, map[string]any{
				"file_path": src,
			})
		}
	}()

	out, err := e.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return &FilesystemError{Op: "create", Path: dst, Cause: err}
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = &FilesystemError{Op: "close", Path: dst, Cause: cerr}
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return &FilesystemError{Op: "copy", Path: dst, Cause: err}
	}
	return nil
}
