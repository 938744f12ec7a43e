package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"photobackup/pkg/cache"
	"photobackup/pkg/fileinfo"
	"photobackup/pkg/logger"
	"photobackup/pkg/remote"
	"photobackup/pkg/shared"
)

// SnapshotLoader is the read side of the remote listing cache.
type SnapshotLoader interface {
	Load() ([]shared.CacheEntry, error)
}

// Engine decides which files still have to reach the remote and the local
// target. It never writes: the result depends only on the source tree, the
// cache snapshot and the target tree, so calling it twice without transfers
// in between gives the same answer.
type Engine struct {
	fs            afero.Fs
	snapshots     SnapshotLoader
	logger        *logger.Logger
	includeHidden bool
	creationTime  func(path string, fi os.FileInfo) time.Time
}

type Option func(*Engine)

func WithDateSource(source fileinfo.DateSource) Option {
	return func(e *Engine) {
		e.creationTime = func(path string, fi os.FileInfo) time.Time {
			return fileinfo.CreationTime(path, fi, source)
		}
	}
}

// WithCreationTime overrides how a file's date folder timestamp is read.
func WithCreationTime(fn func(path string, fi os.FileInfo) time.Time) Option {
	return func(e *Engine) {
		e.creationTime = fn
	}
}

func WithIncludeHidden(include bool) Option {
	return func(e *Engine) {
		e.includeHidden = include
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(e *Engine) {
		e.logger = log
	}
}

func NewEngine(fs afero.Fs, snapshots SnapshotLoader, opts ...Option) *Engine {
	e := &Engine{
		fs:        fs,
		snapshots: snapshots,
		logger:    logger.Default(),
	}
	WithDateSource(fileinfo.DateSourceBirth)(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// destinationFunc maps one source file to its remote name and target path.
type destinationFunc func(path string, fi os.FileInfo) (remotePath, targetPath string, err error)

// ComputePendingTransfers plans the primary mapping: files whose extension
// is in filter are placed under a YYYY-MM-DD folder named after their
// creation date. An empty filter matches nothing.
func (e *Engine) ComputePendingTransfers(ctx context.Context, mapping shared.DirectoryMapping, filter map[string]struct{}) ([]shared.PendingTransferItem, error) {
	remoteFiles, err := e.loadIndex()
	if err != nil {
		return nil, err
	}

	keep := func(path string) bool {
		_, ok := filter[strings.ToLower(filepath.Ext(path))]
		return ok
	}

	dest := func(path string, fi os.FileInfo) (string, string, error) {
		dateFolder := fileinfo.DateFolder(e.creationTime(path, fi))
		name := filepath.Base(path)
		return remote.Path(mapping.RemoteDir, dateFolder, name),
			filepath.Join(mapping.Target, dateFolder, name),
			nil
	}

	return e.plan(ctx, mapping, remoteFiles, keep, dest)
}

// ComputeCopyDirTransfers plans the secondary mappings. Every file is kept
// and its path relative to the mapping's source replaces the date folder.
func (e *Engine) ComputeCopyDirTransfers(ctx context.Context, mappings []shared.DirectoryMapping) ([]shared.PendingTransferItem, error) {
	remoteFiles, err := e.loadIndex()
	if err != nil {
		return nil, err
	}

	items := make([]shared.PendingTransferItem, 0)
	for _, mapping := range mappings {
		mapping := mapping
		dest := func(path string, _ os.FileInfo) (string, string, error) {
			rel, err := filepath.Rel(mapping.Source, path)
			if err != nil {
				return "", "", fmt.Errorf("relative path of %s under %s: %w", path, mapping.Source, err)
			}
			if escapesRoot(rel) {
				return "", "", fmt.Errorf("%s is outside %s", path, mapping.Source)
			}
			return remote.Path(mapping.RemoteDir, rel), filepath.Join(mapping.Target, rel), nil
		}

		planned, err := e.plan(ctx, mapping, remoteFiles, func(string) bool { return true }, dest)
		if err != nil {
			return nil, err
		}
		items = append(items, planned...)
	}
	return items, nil
}

func escapesRoot(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (e *Engine) loadIndex() (cache.Index, error) {
	entries, err := e.snapshots.Load()
	if err != nil {
		return nil, err
	}
	return cache.NewIndex(entries), nil
}

func (e *Engine) plan(ctx context.Context, mapping shared.DirectoryMapping, remoteFiles cache.Index, keep func(string) bool, dest destinationFunc) ([]shared.PendingTransferItem, error) {
	startTime := time.Now()
	items := make([]shared.PendingTransferItem, 0)
	claimed := make(map[string]string)
	var scanned, matched int

	err := afero.Walk(e.fs, mapping.Source, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if path != mapping.Source && !e.includeHidden && strings.HasPrefix(fi.Name(), ".") {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		fi, ok, err := e.regularFile(path, fi)
		if err != nil || !ok {
			return err
		}

		scanned++
		if !keep(path) {
			return nil
		}
		matched++

		remotePath, targetPath, err := dest(path, fi)
		if err != nil {
			return err
		}

		if first, dup := claimed[targetPath]; dup {
			e.logger.Warn("two source files map to the same destination, ignoring the latter", map[string]any{
				"kept":        first,
				"ignored":     path,
				"destination": targetPath,
			})
			return nil
		}
		claimed[targetPath] = path

		item := shared.PendingTransferItem{Source: path}
		if !remoteFiles.Contains(remotePath) {
			item.RemoteDestination = remotePath
		}
		exists, err := afero.Exists(e.fs, targetPath)
		if err != nil {
			return fmt.Errorf("check target %s: %w", targetPath, err)
		}
		if !exists {
			item.TargetDestination = targetPath
		}

		if item.NeedsRemote() || item.NeedsTarget() {
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", mapping.Source, err)
	}

	e.logger.Info("computed pending transfers", map[string]any{
		"source":   mapping.Source,
		"scanned":  scanned,
		"matched":  matched,
		"pending":  len(items),
		"duration": time.Since(startTime),
	})

	return items, nil
}

// regularFile filters out directories and resolves symlinks to files.
// Symlinked directories are not followed.
func (e *Engine) regularFile(path string, fi os.FileInfo) (os.FileInfo, bool, error) {
	if fi.IsDir() {
		return nil, false, nil
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		target, err := e.fs.Stat(path)
		if err != nil {
			e.logger.Warn("skipping broken symlink", map[string]any{"path": path})
			return nil, false, nil
		}
		if !target.Mode().IsRegular() {
			return nil, false, nil
		}
		return target, true, nil
	}
	return fi, fi.Mode().IsRegular(), nil
}
