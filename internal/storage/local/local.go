// Package local provides a local filesystem storage backend. Besides the
// object operations used for publishing it exposes the directory-level
// operations the asset synchronizer performs on a project tree.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Config holds local filesystem backend settings.
type Config struct {
	RootPath   string `json:"root_path"`
	CreateDirs bool   `json:"create_dirs"`
}

// LocalBackend implements storage.Backend using the local filesystem.
type LocalBackend struct {
	rootPath   string
	createDirs bool
}

// New creates a new local filesystem backend.
func New(cfg Config) (*LocalBackend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	rootPath, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root path %s: %w", cfg.RootPath, err)
	}

	// Ensure root exists
	info, err := os.Stat(rootPath)
	if err != nil {
		if os.IsNotExist(err) && cfg.CreateDirs {
			if mkErr := os.MkdirAll(rootPath, 0755); mkErr != nil {
				return nil, fmt.Errorf("create root path %s: %w", rootPath, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat root path %s: %w", rootPath, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", rootPath)
	}

	return &LocalBackend{
		rootPath:   rootPath,
		createDirs: cfg.CreateDirs,
	}, nil
}

// Root returns the absolute root directory.
func (b *LocalBackend) Root() string { return b.rootPath }

// FullPath maps a slash-separated key to a path under the root. Keys that
// would escape the root are rejected.
func (b *LocalBackend) FullPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("key %q escapes root %s", key, b.rootPath)
	}
	if clean == "." {
		return b.rootPath, nil
	}
	return filepath.Join(b.rootPath, clean), nil
}

// GetObject reads a file from the local filesystem with range support.
func (b *LocalBackend) GetObject(_ context.Context, key string, offset, length int64) (io.ReadCloser, int64, error) {
	path, err := b.FullPath(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", key, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", key, err)
	}

	totalSize := info.Size()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, 0, fmt.Errorf("seek %s: %w", key, err)
		}
	}

	if length > 0 {
		return &limitedReadCloser{
			Reader: io.LimitReader(f, length),
			Closer: f,
		}, length, nil
	}

	returnSize := totalSize - offset
	if returnSize < 0 {
		returnSize = 0
	}
	return f, returnSize, nil
}

// PutObject writes content to the local filesystem atomically, replacing
// an existing file.
func (b *LocalBackend) PutObject(_ context.Context, key string, body io.Reader, size int64) error {
	return b.writeAtomic(key, body, os.Rename)
}

// CreateObject writes content atomically like PutObject but fails with an
// fs.ErrExist error if the key is already taken.
func (b *LocalBackend) CreateObject(_ context.Context, key string, body io.Reader) error {
	return b.writeAtomic(key, body, renameNoReplace)
}

func (b *LocalBackend) writeAtomic(key string, body io.Reader, rename func(oldpath, newpath string) error) error {
	path, err := b.FullPath(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)

	if b.createDirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dirs for %s: %w", key, err)
		}
	}

	// Write to temp file then rename for atomicity
	tmp, err := os.CreateTemp(dir, ".uniray-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", key, err)
	}

	if err := rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", key, err)
	}

	return nil
}

// DeleteObject removes a file from the local filesystem.
func (b *LocalBackend) DeleteObject(_ context.Context, key string) error {
	path, err := b.FullPath(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ObjectExists checks if a file exists on the local filesystem.
func (b *LocalBackend) ObjectExists(_ context.Context, key string) (bool, error) {
	path, err := b.FullPath(key)
	if err != nil {
		return false, err
	}
	_, err = os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return true, nil
}

// Type returns "local".
func (b *LocalBackend) Type() string { return "local" }

// Close is a no-op for local backends.
func (b *LocalBackend) Close() error { return nil }

// Rename moves srcKey to dstKey. It never replaces an existing entry: a
// collision fails with an error matching fs.ErrExist. Works for files and
// directories.
func (b *LocalBackend) Rename(_ context.Context, srcKey, dstKey string) error {
	srcPath, err := b.FullPath(srcKey)
	if err != nil {
		return err
	}
	dstPath, err := b.FullPath(dstKey)
	if err != nil {
		return err
	}
	return renameNoReplace(srcPath, dstPath)
}

// MakeDir creates a single directory. It fails if the entry exists.
func (b *LocalBackend) MakeDir(_ context.Context, key string) error {
	path, err := b.FullPath(key)
	if err != nil {
		return err
	}
	if b.createDirs {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
	}
	return os.Mkdir(path, 0755)
}

// RemoveAll removes a file or a directory tree. The entry must exist.
func (b *LocalBackend) RemoveAll(_ context.Context, key string) error {
	path, err := b.FullPath(key)
	if err != nil {
		return err
	}
	if path == b.rootPath {
		return fmt.Errorf("refusing to remove backend root %s", b.rootPath)
	}
	if _, err := os.Lstat(path); err != nil {
		return err
	}
	return os.RemoveAll(path)
}

// ReadDir lists a directory.
func (b *LocalBackend) ReadDir(key string) ([]fs.DirEntry, error) {
	path, err := b.FullPath(key)
	if err != nil {
		return nil, err
	}
	return os.ReadDir(path)
}

// Stat returns file info for key, following symlinks.
func (b *LocalBackend) Stat(key string) (fs.FileInfo, error) {
	path, err := b.FullPath(key)
	if err != nil {
		return nil, err
	}
	return os.Stat(path)
}

// Resolve returns the canonical (symlink-free) absolute path of key.
func (b *LocalBackend) Resolve(key string) (string, error) {
	path, err := b.FullPath(key)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(path)
}

// limitedReadCloser wraps a LimitReader with a separate Closer.
type limitedReadCloser struct {
	io.Reader
	io.Closer
}
