package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"photobackup/pkg/logger"
	"photobackup/pkg/remote"
	"photobackup/pkg/shared"
)

// ErrCacheAbsent means no snapshot has been taken yet. It is "unknown",
// never "empty": callers must not reconcile against it.
var ErrCacheAbsent = errors.New("remote listing cache not found")

// RemoteListingCache is the persisted snapshot of the remote's file names.
// The whole file is rewritten on every change.
type RemoteListingCache struct {
	fs     afero.Fs
	path   string
	tool   remote.Tool
	logger *logger.Logger
	mu     sync.Mutex
}

func NewRemoteListingCache(fs afero.Fs, path string, tool remote.Tool, log *logger.Logger) *RemoteListingCache {
	if log == nil {
		log = logger.Default()
	}
	return &RemoteListingCache{
		fs:     fs,
		path:   path,
		tool:   tool,
		logger: log,
	}
}

func (c *RemoteListingCache) Path() string {
	return c.path
}

func (c *RemoteListingCache) IsPresent() bool {
	exists, err := afero.Exists(c.fs, c.path)
	return err == nil && exists
}

// Refresh replaces the snapshot with a fresh remote listing. A failed
// listing leaves the persisted snapshot as it was.
func (c *RemoteListingCache) Refresh(ctx context.Context) ([]shared.CacheEntry, error) {
	startTime := time.Now()

	entries, err := c.tool.List(ctx)
	if err != nil {
		c.logger.Error("failed to list remote files", err, map[string]any{
			"cache_path": c.path,
		})
		return nil, fmt.Errorf("refresh remote listing: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.write(entries); err != nil {
		return nil, err
	}

	c.logger.Info("remote listing cache refreshed", map[string]any{
		"cache_path": c.path,
		"entries":    len(entries),
		"duration":   time.Since(startTime),
	})

	return entries, nil
}

func (c *RemoteListingCache) Load() ([]shared.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.read()
}

// Append records one uploaded file and rewrites the snapshot. Entries are
// never deduplicated.
func (c *RemoteListingCache) Append(entry shared.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.read()
	if err != nil {
		return err
	}

	return c.write(append(entries, entry))
}

func (c *RemoteListingCache) read() ([]shared.CacheEntry, error) {
	data, err := afero.ReadFile(c.fs, c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrCacheAbsent
		}
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	entries := make([]shared.CacheEntry, 0)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode cache file %s: %w", c.path, err)
	}

	return entries, nil
}

func (c *RemoteListingCache) write(entries []shared.CacheEntry) error {
	if entries == nil {
		entries = []shared.CacheEntry{}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}

	if err := c.fs.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	if err := afero.WriteFile(c.fs, c.path, data, 0644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}

	return nil
}

// Index is a name lookup over one cache snapshot.
type Index map[string]struct{}

func NewIndex(entries []shared.CacheEntry) Index {
	idx := make(Index, len(entries))
	for _, e := range entries {
		idx[e.Name] = struct{}{}
	}
	return idx
}

func (i Index) Contains(name string) bool {
	_, ok := i[name]
	return ok
}
