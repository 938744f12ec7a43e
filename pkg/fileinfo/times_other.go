//go:build !linux && !darwin && !freebsd && !windows

package fileinfo

import (
	"os"
	"time"
)

func BirthTime(_ string, _ os.FileInfo) (time.Time, bool) {
	return time.Time{}, false
}

func AccessTime(fi os.FileInfo) time.Time {
	return fi.ModTime()
}
