package shared

import (
	"strings"
)

// PlaceholderSize marks a cache entry written after an upload in this
// session. The real size is only known after the next refresh.
const PlaceholderSize int64 = -1

// DirectoryMapping pairs one source directory with a local target directory
// and a directory on the remote.
type DirectoryMapping struct {
	Source    string `json:"source" validate:"required"`
	Target    string `json:"target" validate:"required"`
	RemoteDir string `json:"gDriveDir" validate:"required"`
}

// Config is the persisted user configuration. The primary mapping is
// inlined; CopyDirs are the secondary mappings mirrored by relative path.
type Config struct {
	Source    string             `json:"source,omitempty" validate:"required"`
	Target    string             `json:"target,omitempty" validate:"required"`
	RemoteDir string             `json:"gDriveDir,omitempty" validate:"required"`
	FileTypes string             `json:"fileTypes,omitempty" validate:"required"`
	CopyDirs  []DirectoryMapping `json:"copyDirs,omitempty" validate:"dive"`
}

func (c *Config) Primary() DirectoryMapping {
	return DirectoryMapping{
		Source:    c.Source,
		Target:    c.Target,
		RemoteDir: c.RemoteDir,
	}
}

// FileTypeFilter parses the comma separated FileTypes value into a set of
// lowercase extensions such as ".jpg".
func (c *Config) FileTypeFilter() map[string]struct{} {
	return ParseFileTypes(c.FileTypes)
}

func ParseFileTypes(s string) map[string]struct{} {
	filter := make(map[string]struct{})
	for _, ft := range strings.Split(s, ",") {
		ft = strings.ToLower(strings.TrimSpace(ft))
		if ft == "" {
			continue
		}
		if !strings.HasPrefix(ft, ".") {
			ft = "." + ft
		}
		filter[ft] = struct{}{}
	}
	return filter
}

// CacheEntry is one remote file as recorded in the listing cache.
type CacheEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// PendingTransferItem is one source file plus the destinations it has not
// reached yet. An empty destination means nothing to do for it.
type PendingTransferItem struct {
	Source            string `json:"source"`
	RemoteDestination string `json:"remote,omitempty"`
	TargetDestination string `json:"target,omitempty"`
}

func (p PendingTransferItem) NeedsRemote() bool {
	return p.RemoteDestination != ""
}

func (p PendingTransferItem) NeedsTarget() bool {
	return p.TargetDestination != ""
}
