//go:build darwin || freebsd

package fileinfo

import (
	"os"
	"syscall"
	"time"
)

func BirthTime(_ string, fi os.FileInfo) (time.Time, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok || st == nil {
		return time.Time{}, false
	}
	return time.Unix(st.Birthtimespec.Unix()), true
}

func AccessTime(fi os.FileInfo) time.Time {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok || st == nil {
		return fi.ModTime()
	}
	return time.Unix(st.Atimespec.Unix())
}
