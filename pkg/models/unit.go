// Package models contains the storage unit tree that mirrors a project's
// asset directories in memory.
package models

import (
	"path"
	"path/filepath"
	"strings"
)

// Unit represents a file or directory in the virtual asset tree.
//
// The name of a unit is always derived from its path; the only way to
// rename a unit is to relocate it.
type Unit interface {
	Path() string
	Name() string
	Upstream() *Folder
	IsDir() bool

	setPath(p string)
	setUpstream(f *Folder)
}

// NormalizePath cleans p and converts it to forward slashes. Backslashes
// are treated as separators on every platform.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(filepath.ToSlash(p), "\\", "/")
	return path.Clean(p)
}

// JoinPath builds a child path from a parent path and an entry name.
func JoinPath(parent, name string) string {
	return path.Join(parent, name)
}

// SplitName splits a file base name into name and extension at the last
// dot. A leading or trailing dot does not start an extension, so the name
// always round-trips through FullName.
func SplitName(base string) (name, ext string) {
	i := strings.LastIndexByte(base, '.')
	if i <= 0 || i == len(base)-1 {
		return base, ""
	}
	return base[:i], base[i+1:]
}

// EntryName returns the last path segment of u as it appears on disk
// (the full name for files, the name for folders).
func EntryName(u Unit) string {
	if f, ok := u.(*File); ok {
		return f.FullName()
	}
	return u.Name()
}

// Relocate sets the path of u to newPath. Folders recompute the path of
// every descendant.
func Relocate(u Unit, newPath string) {
	u.setPath(newPath)
}

// File is a leaf unit.
type File struct {
	path      string
	name      string
	extension string
	upstream  *Folder
}

// NewFile creates a file unit from an absolute path.
func NewFile(p string) *File {
	f := &File{}
	f.setPath(p)
	return f
}

func (f *File) Path() string      { return f.path }
func (f *File) Name() string      { return f.name }
func (f *File) Upstream() *Folder { return f.upstream }
func (f *File) IsDir() bool       { return false }

// Extension returns the extension without the leading dot.
func (f *File) Extension() string { return f.extension }

// FullName returns name + "." + extension.
func (f *File) FullName() string {
	if f.extension == "" {
		return f.name
	}
	return f.name + "." + f.extension
}

func (f *File) setPath(p string) {
	f.path = NormalizePath(p)
	f.name, f.extension = SplitName(path.Base(f.path))
}

func (f *File) setUpstream(up *Folder) { f.upstream = up }

// Folder is a directory unit holding an ordered list of children.
// Children are unique by identity, not by name.
type Folder struct {
	path     string
	name     string
	children []Unit
	upstream *Folder
}

// NewFolder creates a folder unit and adopts the given children.
func NewFolder(p string, children []Unit) *Folder {
	f := &Folder{children: make([]Unit, 0, len(children))}
	f.path = NormalizePath(p)
	f.name = path.Base(f.path)
	for _, c := range children {
		f.AddFile(c)
	}
	return f
}

func (f *Folder) Path() string      { return f.path }
func (f *Folder) Name() string      { return f.name }
func (f *Folder) Upstream() *Folder { return f.upstream }
func (f *Folder) IsDir() bool       { return true }

// IsRoot reports whether the folder has no upstream.
func (f *Folder) IsRoot() bool { return f.upstream == nil }

// Children returns the children in insertion order. The slice must not be
// modified by the caller.
func (f *Folder) Children() []Unit { return f.children }

// Len returns the number of direct children.
func (f *Folder) Len() int { return len(f.children) }

// Files returns the direct file children.
func (f *Folder) Files() []*File {
	var files []*File
	for _, c := range f.children {
		if file, ok := c.(*File); ok {
			files = append(files, file)
		}
	}
	return files
}

// Folders returns the direct folder children.
func (f *Folder) Folders() []*Folder {
	var folders []*Folder
	for _, c := range f.children {
		if dir, ok := c.(*Folder); ok {
			folders = append(folders, dir)
		}
	}
	return folders
}

// Child returns the first child whose on-disk entry name equals name.
func (f *Folder) Child(name string) Unit {
	for _, c := range f.children {
		if EntryName(c) == name {
			return c
		}
	}
	return nil
}

// AddFile appends u to the children and makes f its upstream.
func (f *Folder) AddFile(u Unit) {
	u.setUpstream(f)
	f.children = append(f.children, u)
}

// DeleteFile removes u (by identity) from the children.
// Returns false if u is not a child of f.
func (f *Folder) DeleteFile(u Unit) bool {
	for i, c := range f.children {
		if c == u {
			f.children = append(f.children[:i], f.children[i+1:]...)
			u.setUpstream(nil)
			return true
		}
	}
	return false
}

func (f *Folder) setPath(p string) {
	f.path = NormalizePath(p)
	f.name = path.Base(f.path)
	for _, c := range f.children {
		c.setPath(JoinPath(f.path, EntryName(c)))
	}
}

func (f *Folder) setUpstream(up *Folder) { f.upstream = up }
