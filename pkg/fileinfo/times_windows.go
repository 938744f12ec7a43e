package fileinfo

import (
	"os"
	"syscall"
	"time"
)

func BirthTime(_ string, fi os.FileInfo) (time.Time, bool) {
	data, ok := fi.Sys().(*syscall.Win32FileAttributeData)
	if !ok || data == nil {
		return time.Time{}, false
	}
	return time.Unix(0, data.CreationTime.Nanoseconds()), true
}

func AccessTime(fi os.FileInfo) time.Time {
	data, ok := fi.Sys().(*syscall.Win32FileAttributeData)
	if !ok || data == nil {
		return fi.ModTime()
	}
	return time.Unix(0, data.LastAccessTime.Nanoseconds())
}
