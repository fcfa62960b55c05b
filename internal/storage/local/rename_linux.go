//go:build linux

package local

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// renameNoReplace renames oldpath to newpath with RENAME_NOREPLACE so the
// kernel rejects an existing destination atomically. Filesystems without
// renameat2 support fall back to a check-then-rename.
func renameNoReplace(oldpath, newpath string) error {
	err := unix.Renameat2(unix.AT_FDCWD, oldpath, unix.AT_FDCWD, newpath, unix.RENAME_NOREPLACE)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EINVAL) {
		return renameChecked(oldpath, newpath)
	}
	if errors.Is(err, unix.EEXIST) && sameEntry(oldpath, newpath) {
		// Case-only rename on a case-insensitive mount.
		return os.Rename(oldpath, newpath)
	}
	return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: err}
}
