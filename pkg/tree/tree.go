// Package tree provides shared utilities for working with storage unit trees.
package tree

import (
	"errors"
	"fmt"
	"strings"

	"github.com/FlamingRiot/Uniray-sub000/pkg/models"
)

// SkipFolder can be returned by a WalkFunc to skip the children of a folder.
var SkipFolder = errors.New("skip this folder")

// WalkFunc is called for every unit visited by Walk.
type WalkFunc func(u models.Unit) error

// Walk visits root and its descendants depth-first, parents before children.
func Walk(root models.Unit, fn WalkFunc) error {
	if root == nil {
		return nil
	}
	err := fn(root)
	if errors.Is(err, SkipFolder) {
		return nil
	}
	if err != nil {
		return err
	}
	folder, ok := root.(*models.Folder)
	if !ok {
		return nil
	}
	for _, child := range folder.Children() {
		if err := Walk(child, fn); err != nil {
			return err
		}
	}
	return nil
}

// FindByPath resolves a path in the tree (recursive).
func FindByPath(root models.Unit, path string) models.Unit {
	if root == nil {
		return nil
	}
	path = models.NormalizePath(path)
	var found models.Unit
	Walk(root, func(u models.Unit) error {
		if u.Path() == path {
			found = u
			return errStop
		}
		prefix := u.Path()
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		if u.IsDir() && !strings.HasPrefix(path, prefix) {
			return SkipFolder
		}
		return nil
	})
	return found
}

var errStop = errors.New("stop")

// CountNodes counts all units in a tree.
func CountNodes(root models.Unit) int {
	count := 0
	Walk(root, func(models.Unit) error {
		count++
		return nil
	})
	return count
}

// Files returns every file under root in walk order.
func Files(root models.Unit) []*models.File {
	var files []*models.File
	Walk(root, func(u models.Unit) error {
		if f, ok := u.(*models.File); ok {
			files = append(files, f)
		}
		return nil
	})
	return files
}

// Flatten returns all units in a flat map keyed by path.
func Flatten(root models.Unit) map[string]models.Unit {
	result := make(map[string]models.Unit)
	Walk(root, func(u models.Unit) error {
		result[u.Path()] = u
		return nil
	})
	return result
}

// IsDescendant reports whether u lies strictly below ancestor.
func IsDescendant(ancestor *models.Folder, u models.Unit) bool {
	if ancestor == nil || u == nil {
		return false
	}
	for up := u.Upstream(); up != nil; up = up.Upstream() {
		if up == ancestor {
			return true
		}
	}
	return false
}

// RootOf walks upstream links to the root folder of u.
func RootOf(u models.Unit) *models.Folder {
	var root *models.Folder
	if f, ok := u.(*models.Folder); ok {
		root = f
	}
	for up := u.Upstream(); up != nil; up = up.Upstream() {
		root = up
	}
	return root
}

// BuildChildPath constructs a child path from parent + name.
func BuildChildPath(parentPath, name string) string {
	if parentPath == "/" {
		return "/" + name
	}
	return parentPath + "/" + name
}

// Validate checks the tree invariants: every child's upstream is its
// parent and every child's path is the parent path plus its entry name.
func Validate(root *models.Folder) error {
	if root == nil {
		return nil
	}
	return Walk(root, func(u models.Unit) error {
		folder, ok := u.(*models.Folder)
		if !ok {
			return nil
		}
		for _, child := range folder.Children() {
			if child.Upstream() != folder {
				return fmt.Errorf("%s: upstream is not %s", child.Path(), folder.Path())
			}
			want := BuildChildPath(folder.Path(), models.EntryName(child))
			if child.Path() != want {
				return fmt.Errorf("%s: path does not match parent, want %s", child.Path(), want)
			}
		}
		return nil
	})
}
