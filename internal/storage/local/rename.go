package local

import (
	"io/fs"
	"os"
)

// renameChecked refuses to overwrite an existing destination, then renames.
// The check and the rename are not atomic.
func renameChecked(oldpath, newpath string) error {
	if _, err := os.Lstat(newpath); err == nil {
		if !sameEntry(oldpath, newpath) {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: fs.ErrExist}
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.Rename(oldpath, newpath)
}

// sameEntry reports whether both paths name the same file, which happens
// for case-only renames on case-insensitive filesystems.
func sameEntry(a, b string) bool {
	ai, err := os.Lstat(a)
	if err != nil {
		return false
	}
	bi, err := os.Lstat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
