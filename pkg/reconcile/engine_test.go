package reconcile

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photobackup/pkg/cache"
	"photobackup/pkg/logger"
	"photobackup/pkg/shared"
	"photobackup/pkg/store"
)

type staticSnapshot struct {
	entries []shared.CacheEntry
	err     error
}

func (s *staticSnapshot) Load() ([]shared.CacheEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.entries, nil
}

var march1 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)

func byModTime(_ string, fi os.FileInfo) time.Time {
	return fi.ModTime()
}

func writeFile(t *testing.T, fs afero.Fs, path string, modTime time.Time) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(path), 0644))
	require.NoError(t, fs.Chtimes(path, modTime, modTime))
}

func newTestEngine(fs afero.Fs, snapshot SnapshotLoader) *Engine {
	return NewEngine(fs, snapshot,
		WithCreationTime(byModTime),
		WithLogger(logger.New(io.Discard)),
	)
}

var primary = shared.DirectoryMapping{
	Source:    "/photos/in",
	Target:    "/backup",
	RemoteDir: "photos",
}

func TestComputePendingTransfersExample(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/photos/in/photo.jpg", march1)
	require.NoError(t, fs.MkdirAll("/backup", 0755))

	e := newTestEngine(fs, &staticSnapshot{})
	items, err := e.ComputePendingTransfers(context.Background(), primary, shared.ParseFileTypes(".jpg"))
	require.NoError(t, err)

	assert.Equal(t, []shared.PendingTransferItem{{
		Source:            "/photos/in/photo.jpg",
		RemoteDestination: "photos/2024-03-01/photo.jpg",
		TargetDestination: "/backup/2024-03-01/photo.jpg",
	}}, items)
}

func TestComputePendingTransfersIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/photos/in/a.jpg", march1)
	writeFile(t, fs, "/photos/in/trip/b.JPG", march1.AddDate(0, 1, 0))
	writeFile(t, fs, "/photos/in/trip/c.png", march1.AddDate(1, 0, 0))
	require.NoError(t, fs.MkdirAll("/backup", 0755))

	e := newTestEngine(fs, &staticSnapshot{})
	filter := shared.ParseFileTypes(".jpg,.png")

	first, err := e.ComputePendingTransfers(context.Background(), primary, filter)
	require.NoError(t, err)
	second, err := e.ComputePendingTransfers(context.Background(), primary, filter)
	require.NoError(t, err)

	assert.Len(t, first, 3)
	assert.Equal(t, first, second)
}

func TestComputePendingTransfersFilter(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/photos/in/a.jpg", march1)
	writeFile(t, fs, "/photos/in/b.HEIC", march1)
	writeFile(t, fs, "/photos/in/notes.txt", march1)
	writeFile(t, fs, "/photos/in/noext", march1)
	require.NoError(t, fs.MkdirAll("/backup", 0755))

	e := newTestEngine(fs, &staticSnapshot{})
	items, err := e.ComputePendingTransfers(context.Background(), primary, shared.ParseFileTypes("jpg, .heic"))
	require.NoError(t, err)

	var sources []string
	for _, item := range items {
		sources = append(sources, item.Source)
	}
	assert.ElementsMatch(t, []string{"/photos/in/a.jpg", "/photos/in/b.HEIC"}, sources)
}

func TestComputePendingTransfersEmptyFilterMatchesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/photos/in/a.jpg", march1)
	writeFile(t, fs, "/photos/in/secret.txt", march1)

	e := newTestEngine(fs, &staticSnapshot{})
	for _, filter := range []map[string]struct{}{nil, shared.ParseFileTypes(" , ")} {
		items, err := e.ComputePendingTransfers(context.Background(), primary, filter)
		require.NoError(t, err)
		assert.Empty(t, items)
	}
}

func TestComputePendingTransfersPartialPresence(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/photos/in/remote-only.jpg", march1)
	writeFile(t, fs, "/photos/in/target-only.jpg", march1)
	writeFile(t, fs, "/photos/in/both.jpg", march1)
	writeFile(t, fs, "/backup/2024-03-01/remote-only.jpg", march1)
	writeFile(t, fs, "/backup/2024-03-01/both.jpg", march1)

	snapshot := &staticSnapshot{entries: []shared.CacheEntry{
		{Name: "photos/2024-03-01/target-only.jpg", Size: 10},
		{Name: "photos/2024-03-01/both.jpg", Size: 10},
	}}

	e := newTestEngine(fs, snapshot)
	items, err := e.ComputePendingTransfers(context.Background(), primary, shared.ParseFileTypes(".jpg"))
	require.NoError(t, err)

	assert.ElementsMatch(t, []shared.PendingTransferItem{
		{Source: "/photos/in/remote-only.jpg", RemoteDestination: "photos/2024-03-01/remote-only.jpg"},
		{Source: "/photos/in/target-only.jpg", TargetDestination: "/backup/2024-03-01/target-only.jpg"},
	}, items)
}

func TestComputePendingTransfersPlaceholderEntryCountsAsPresent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/photos/in/a.jpg", march1)
	writeFile(t, fs, "/backup/2024-03-01/a.jpg", march1)

	snapshot := &staticSnapshot{entries: []shared.CacheEntry{
		{Name: "photos/2024-03-01/a.jpg", Size: shared.PlaceholderSize},
	}}

	e := newTestEngine(fs, snapshot)
	items, err := e.ComputePendingTransfers(context.Background(), primary, shared.ParseFileTypes(".jpg"))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestComputePendingTransfersCacheAbsent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/photos/in/a.jpg", march1)

	e := newTestEngine(fs, &staticSnapshot{err: cache.ErrCacheAbsent})

	items, err := e.ComputePendingTransfers(context.Background(), primary, nil)
	assert.ErrorIs(t, err, cache.ErrCacheAbsent)
	assert.Nil(t, items)

	items, err = e.ComputeCopyDirTransfers(context.Background(), []shared.DirectoryMapping{primary})
	assert.ErrorIs(t, err, cache.ErrCacheAbsent)
	assert.Nil(t, items)
}

func TestComputePendingTransfersSkipsHidden(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/photos/in/a.jpg", march1)
	writeFile(t, fs, "/photos/in/.b.jpg", march1)
	writeFile(t, fs, "/photos/in/.thumbs/c.jpg", march1)

	filter := shared.ParseFileTypes(".jpg")

	items, err := newTestEngine(fs, &staticSnapshot{}).ComputePendingTransfers(context.Background(), primary, filter)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "/photos/in/a.jpg", items[0].Source)

	withHidden := NewEngine(fs, &staticSnapshot{},
		WithCreationTime(byModTime),
		WithIncludeHidden(true),
		WithLogger(logger.New(io.Discard)),
	)
	items, err = withHidden.ComputePendingTransfers(context.Background(), primary, filter)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestComputePendingTransfersDuplicateDestination(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/photos/in/a/img.jpg", march1)
	writeFile(t, fs, "/photos/in/b/img.jpg", march1)

	e := newTestEngine(fs, &staticSnapshot{})
	items, err := e.ComputePendingTransfers(context.Background(), primary, shared.ParseFileTypes(".jpg"))
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "/photos/in/a/img.jpg", items[0].Source)
}

func TestComputePendingTransfersMissingSource(t *testing.T) {
	e := newTestEngine(afero.NewMemMapFs(), &staticSnapshot{})
	_, err := e.ComputePendingTransfers(context.Background(), primary, nil)
	assert.Error(t, err)
}

func TestComputePendingTransfersCancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/photos/in/a.jpg", march1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine(fs, &staticSnapshot{}).ComputePendingTransfers(ctx, primary, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComputeCopyDirTransfers(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/docs/report.pdf", march1)
	writeFile(t, fs, "/docs/2023/tax/return.txt", march1)
	writeFile(t, fs, "/music/song.flac", march1)
	writeFile(t, fs, "/backup/docs/report.pdf", march1)

	snapshot := &staticSnapshot{entries: []shared.CacheEntry{
		{Name: "archive/music/song.flac", Size: 42},
	}}

	e := newTestEngine(fs, snapshot)
	items, err := e.ComputeCopyDirTransfers(context.Background(), []shared.DirectoryMapping{
		{Source: "/docs", Target: "/backup/docs", RemoteDir: "archive/docs"},
		{Source: "/music", Target: "/backup/music", RemoteDir: "/archive/music/"},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []shared.PendingTransferItem{
		{Source: "/docs/report.pdf", RemoteDestination: "archive/docs/report.pdf"},
		{Source: "/docs/2023/tax/return.txt", RemoteDestination: "archive/docs/2023/tax/return.txt", TargetDestination: "/backup/docs/2023/tax/return.txt"},
		{Source: "/music/song.flac", TargetDestination: "/backup/music/song.flac"},
	}, items)
}

func TestComputeCopyDirTransfersNone(t *testing.T) {
	e := newTestEngine(afero.NewMemMapFs(), &staticSnapshot{})
	items, err := e.ComputeCopyDirTransfers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

type staticConfig struct {
	cfg *shared.Config
	err error
}

func (s staticConfig) Load() (*shared.Config, error) {
	return s.cfg, s.err
}

func TestValidateNoConfig(t *testing.T) {
	e := newTestEngine(afero.NewMemMapFs(), &staticSnapshot{})

	_, err := e.Validate(staticConfig{err: store.ErrConfigAbsent})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"No config found!"}, verr.Problems)
}

func TestValidateUnreadableConfig(t *testing.T) {
	e := newTestEngine(afero.NewMemMapFs(), &staticSnapshot{})

	_, err := e.Validate(staticConfig{err: errors.New("bad json")})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"Config could not be read: bad json"}, verr.Problems)
}

func TestValidateListsEveryProblem(t *testing.T) {
	e := newTestEngine(afero.NewMemMapFs(), &staticSnapshot{})

	_, err := e.Validate(staticConfig{cfg: &shared.Config{
		Source:    "/photos/in",
		Target:    "/backup",
		RemoteDir: "photos",
		CopyDirs:  []shared.DirectoryMapping{{Source: "/docs", Target: "/backup/docs"}},
	}})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{
		"fileTypes is required",
		"copyDirs[0].gDriveDir is required",
		"Source dir not found",
		"Target dir not found",
	}, verr.Problems)
}

func TestValidateBlankFileTypes(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/photos/in", 0755))
	require.NoError(t, fs.MkdirAll("/backup", 0755))
	e := newTestEngine(fs, &staticSnapshot{})

	for _, fileTypes := range []string{" , ", "   "} {
		_, err := e.Validate(staticConfig{cfg: &shared.Config{Source: "/photos/in", Target: "/backup", RemoteDir: "photos", FileTypes: fileTypes}})

		var verr *ValidationError
		require.ErrorAs(t, err, &verr, fileTypes)
		assert.Equal(t, []string{"fileTypes lists no extensions"}, verr.Problems)
	}
}

func TestEscapesRoot(t *testing.T) {
	assert.True(t, escapesRoot(".."))
	assert.True(t, escapesRoot(filepath.Join("..", "other", "a.jpg")))
	assert.False(t, escapesRoot("a.jpg"))
	assert.False(t, escapesRoot("..hidden.jpg"))
}

func TestValidateOK(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/photos/in", 0755))
	require.NoError(t, fs.MkdirAll("/backup", 0755))
	e := newTestEngine(fs, &staticSnapshot{})

	want := &shared.Config{Source: "/photos/in", Target: "/backup", RemoteDir: "photos", FileTypes: ".jpg"}
	cfg, err := e.Validate(staticConfig{cfg: want})
	require.NoError(t, err)
	assert.Equal(t, want, cfg)
}

func TestValidateTargetIsAFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/photos/in", 0755))
	writeFile(t, fs, "/backup", march1)
	e := newTestEngine(fs, &staticSnapshot{})

	_, err := e.Validate(staticConfig{cfg: &shared.Config{Source: "/photos/in", Target: "/backup", RemoteDir: "photos", FileTypes: ".jpg"}})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"Target dir not found"}, verr.Problems)
}
