package fileinfo

import (
	"fmt"
	"os"
	"time"
)

// DateSource selects which timestamp names a file's date folder.
type DateSource string

const (
	// DateSourceBirth uses the creation time when the platform reports one
	// and falls back to the modification time otherwise.
	DateSourceBirth   DateSource = "birth"
	DateSourceModTime DateSource = "mtime"
)

func ParseDateSource(s string) (DateSource, error) {
	switch DateSource(s) {
	case DateSourceBirth, DateSourceModTime:
		return DateSource(s), nil
	}
	return "", fmt.Errorf("unknown date source %q", s)
}

// CreationTime returns the timestamp used for date folders. A birth time at
// or before the Unix epoch is treated as unreported.
func CreationTime(path string, fi os.FileInfo, source DateSource) time.Time {
	if source == DateSourceBirth {
		if bt, ok := BirthTime(path, fi); ok && bt.Unix() > 0 {
			return bt
		}
	}
	return fi.ModTime()
}

// DateFolder formats t as YYYY-MM-DD in local time.
func DateFolder(t time.Time) string {
	return t.Local().Format("2006-01-02")
}
