package cache

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"photobackup/pkg/logger"
	"photobackup/pkg/remote"
	"photobackup/pkg/shared"
)

const cachePath = "/state/cache.json"

type mockTool struct {
	mock.Mock
}

func (m *mockTool) GetToolType() remote.ToolType { return "mock" }

func (m *mockTool) List(ctx context.Context) ([]shared.CacheEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]shared.CacheEntry), args.Error(1)
}

func (m *mockTool) CopyTo(ctx context.Context, localPath, remotePath string) error {
	args := m.Called(ctx, localPath, remotePath)
	return args.Error(0)
}

func newTestCache(t *testing.T, tool remote.Tool) (*RemoteListingCache, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return NewRemoteListingCache(fs, cachePath, tool, logger.New(&bytes.Buffer{})), fs
}

func TestLoadAbsent(t *testing.T) {
	c, _ := newTestCache(t, &mockTool{})

	assert.False(t, c.IsPresent())
	entries, err := c.Load()
	assert.ErrorIs(t, err, ErrCacheAbsent)
	assert.Nil(t, entries)
}

func TestEmptySnapshotIsPresent(t *testing.T) {
	c, fs := newTestCache(t, &mockTool{})
	require.NoError(t, afero.WriteFile(fs, cachePath, []byte("[]"), 0644))

	assert.True(t, c.IsPresent())
	entries, err := c.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotNil(t, entries)
}

func TestRefreshPersistsListing(t *testing.T) {
	listing := []shared.CacheEntry{
		{Name: "photos/2024-03-01/a.jpg", Size: 10},
		{Name: "photos/2024-03-01/b.jpg", Size: 20},
	}
	tool := &mockTool{}
	tool.On("List", mock.Anything).Return(listing, nil).Once()

	c, _ := newTestCache(t, tool)

	got, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, listing, got)

	assert.True(t, c.IsPresent())
	loaded, err := c.Load()
	require.NoError(t, err)
	assert.Equal(t, listing, loaded)
	tool.AssertExpectations(t)
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	tool := &mockTool{}
	toolErr := &remote.ToolError{Type: remote.ErrorTypeExit, Op: "ls", Stderr: "auth expired"}
	tool.On("List", mock.Anything).Return(nil, toolErr).Once()

	c, fs := newTestCache(t, tool)
	previous := `[{"name":"old.jpg","size":1}]`
	require.NoError(t, afero.WriteFile(fs, cachePath, []byte(previous), 0644))

	_, err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, remote.IsToolError(err))

	data, err := afero.ReadFile(fs, cachePath)
	require.NoError(t, err)
	assert.Equal(t, previous, string(data))
}

func TestRefreshFailureWithoutSnapshotStaysAbsent(t *testing.T) {
	tool := &mockTool{}
	tool.On("List", mock.Anything).Return(nil, errors.New("boom")).Once()

	c, _ := newTestCache(t, tool)

	_, err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.False(t, c.IsPresent())
}

func TestAppendKeepsOrderAndDuplicates(t *testing.T) {
	c, fs := newTestCache(t, &mockTool{})
	require.NoError(t, afero.WriteFile(fs, cachePath, []byte(`[{"name":"a.jpg","size":3}]`), 0644))

	require.NoError(t, c.Append(shared.CacheEntry{Name: "b.jpg", Size: shared.PlaceholderSize}))
	require.NoError(t, c.Append(shared.CacheEntry{Name: "a.jpg", Size: shared.PlaceholderSize}))

	entries, err := c.Load()
	require.NoError(t, err)
	assert.Equal(t, []shared.CacheEntry{
		{Name: "a.jpg", Size: 3},
		{Name: "b.jpg", Size: -1},
		{Name: "a.jpg", Size: -1},
	}, entries)
}

func TestAppendWithoutSnapshot(t *testing.T) {
	c, _ := newTestCache(t, &mockTool{})

	err := c.Append(shared.CacheEntry{Name: "a.jpg", Size: shared.PlaceholderSize})
	assert.ErrorIs(t, err, ErrCacheAbsent)
	assert.False(t, c.IsPresent())
}

func TestLoadCorruptSnapshot(t *testing.T) {
	c, fs := newTestCache(t, &mockTool{})
	require.NoError(t, afero.WriteFile(fs, cachePath, []byte("{not json"), 0644))

	_, err := c.Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheAbsent)
	assert.Contains(t, err.Error(), "decode cache file")
}

func TestIndex(t *testing.T) {
	idx := NewIndex([]shared.CacheEntry{{Name: "a.jpg"}, {Name: "dir/b.jpg", Size: -1}})

	assert.True(t, idx.Contains("a.jpg"))
	assert.True(t, idx.Contains("dir/b.jpg"))
	assert.False(t, idx.Contains("b.jpg"))
}
