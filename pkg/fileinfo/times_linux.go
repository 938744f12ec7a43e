package fileinfo

import (
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// BirthTime asks the kernel through statx. Filesystems that do not record a
// birth time leave STATX_BTIME out of the returned mask.
func BirthTime(path string, _ os.FileInfo) (time.Time, bool) {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, unix.AT_STATX_SYNC_AS_STAT, unix.STATX_BTIME, &stx)
	if err != nil || stx.Mask&unix.STATX_BTIME == 0 {
		return time.Time{}, false
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)), true
}

func AccessTime(fi os.FileInfo) time.Time {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok || st == nil {
		return fi.ModTime()
	}
	return time.Unix(st.Atim.Unix())
}
