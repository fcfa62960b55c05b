// Package filemanager keeps the in-memory storage unit trees of a project
// consistent with the asset directories on disk. Every mutation is applied
// to the filesystem first and only reflected in the tree once it succeeded.
package filemanager

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FlamingRiot/Uniray-sub000/internal/logging"
	"github.com/FlamingRiot/Uniray-sub000/internal/metrics"
	"github.com/FlamingRiot/Uniray-sub000/pkg/models"
	"github.com/FlamingRiot/Uniray-sub000/pkg/tree"
)

// DefaultMaxDepth bounds directory recursion when loading a tree.
const DefaultMaxDepth = 64

// Physical is the filesystem the manager mirrors. Keys are slash separated
// and relative to Root. *local.LocalBackend implements it.
type Physical interface {
	Root() string
	MakeDir(ctx context.Context, key string) error
	CreateObject(ctx context.Context, key string, body io.Reader) error
	Rename(ctx context.Context, srcKey, dstKey string) error
	RemoveAll(ctx context.Context, key string) error
	ReadDir(key string) ([]fs.DirEntry, error)
	Stat(key string) (fs.FileInfo, error)
	Resolve(key string) (string, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxDepth sets the recursion bound used when scanning directories.
func WithMaxDepth(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxDepth = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager owns the category trees of one project and the navigation
// cursor. All methods are safe for concurrent use.
type Manager struct {
	backend  Physical
	base     string
	maxDepth int
	logger   *zap.Logger

	mu          sync.Mutex
	projectRoot string
	roots       map[models.Category]*models.Folder
	current     *models.Folder
	category    models.Category
}

// New creates a manager over backend. Call Init before use.
func New(backend Physical, opts ...Option) *Manager {
	m := &Manager{
		backend:  backend,
		base:     models.NormalizePath(backend.Root()),
		maxDepth: DefaultMaxDepth,
		logger:   logging.Named("filemanager"),
		roots:    make(map[models.Category]*models.Folder),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init sets the category roots under rootDirectory, creating missing
// category directories, and loads every category tree from disk. A relative
// rootDirectory is resolved against the backend root.
func (m *Manager) Init(ctx context.Context, rootDirectory string) error {
	start := time.Now()

	if !filepath.IsAbs(rootDirectory) {
		rootDirectory = filepath.Join(m.backend.Root(), rootDirectory)
	}
	root := models.NormalizePath(rootDirectory)
	if _, err := m.key(root); err != nil {
		return err
	}

	roots := make(map[models.Category]*models.Folder, len(models.Categories))
	for _, cat := range models.Categories {
		dir := cat.Dir(root)
		key, _ := m.key(dir)
		if err := m.backend.MakeDir(ctx, key); err != nil && !os.IsExist(err) {
			metrics.RecordStorageOperation("init", false)
			return &OpError{Op: "mkdir", Path: dir, Err: err}
		}

		folder := models.NewFolder(dir, nil)
		if err := m.scan(ctx, folder, 0, make(map[string]struct{})); err != nil {
			metrics.RecordStorageOperation("init", false)
			return err
		}
		roots[cat] = folder
		metrics.SetStorageTreeSize(string(cat), tree.CountNodes(folder)-1)
	}

	m.mu.Lock()
	m.projectRoot = root
	m.roots = roots
	m.category = models.CategoryModels
	m.current = roots[models.CategoryModels]
	m.mu.Unlock()

	metrics.RecordStorageLoad(time.Since(start))
	metrics.RecordStorageOperation("init", true)
	m.logger.Info("asset trees loaded",
		zap.String("root", root),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// scan fills folder with the entries of its directory. Hidden entries are
// skipped; sub-directories deeper than maxDepth or already visited through
// another path are skipped with a warning.
func (m *Manager) scan(ctx context.Context, folder *models.Folder, depth int, visited map[string]struct{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, err := m.key(folder.Path())
	if err != nil {
		return err
	}
	canonical, err := m.backend.Resolve(key)
	if err != nil {
		return &OpError{Op: "resolve", Path: folder.Path(), Err: err}
	}
	visited[canonical] = struct{}{}

	entries, err := m.backend.ReadDir(key)
	if err != nil {
		return &OpError{Op: "readdir", Path: folder.Path(), Err: err}
	}

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		childPath := models.JoinPath(folder.Path(), entry.Name())
		childKey, _ := m.key(childPath)

		isDir := entry.IsDir()
		if entry.Type()&fs.ModeSymlink != 0 {
			info, err := m.backend.Stat(childKey)
			if err != nil {
				m.logger.Warn("skipping unreadable entry", zap.String("path", childPath), zap.Error(err))
				continue
			}
			isDir = info.IsDir()
		}
		if !isDir {
			folder.AddFile(models.NewFile(childPath))
			continue
		}

		if depth+1 > m.maxDepth {
			m.logger.Warn("max scan depth reached, skipping folder",
				zap.String("path", childPath),
				zap.Int("max_depth", m.maxDepth))
			continue
		}
		childCanonical, err := m.backend.Resolve(childKey)
		if err != nil {
			m.logger.Warn("skipping unresolvable folder", zap.String("path", childPath), zap.Error(err))
			continue
		}
		if _, seen := visited[childCanonical]; seen {
			m.logger.Warn("folder already visited, skipping cycle",
				zap.String("path", childPath),
				zap.String("target", childCanonical))
			continue
		}

		sub := models.NewFolder(childPath, nil)
		if err := m.scan(ctx, sub, depth+1, visited); err != nil {
			if ctx.Err() != nil {
				return err
			}
			m.logger.Warn("skipping folder", zap.String("path", childPath), zap.Error(err))
			continue
		}
		folder.AddFile(sub)
	}
	return nil
}

// key converts an absolute unit path to a backend key.
func (m *Manager) key(p string) (string, error) {
	p = models.NormalizePath(p)
	if p == m.base {
		return "", nil
	}
	prefix := m.base
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if !strings.HasPrefix(p, prefix) {
		return "", fmt.Errorf("path %s is outside %s", p, m.base)
	}
	return strings.TrimPrefix(p, prefix), nil
}

// ProjectRoot returns the normalized project root set by Init.
func (m *Manager) ProjectRoot() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.projectRoot
}

// Root returns the root folder of a category, or nil before Init.
func (m *Manager) Root(cat models.Category) *models.Folder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roots[cat]
}

// Files returns the files of a category tree in walk order. The walk runs
// under the manager lock so it never observes a half-applied rename or move.
func (m *Manager) Files(cat models.Category) []*models.File {
	m.mu.Lock()
	defer m.mu.Unlock()
	root := m.roots[cat]
	if root == nil {
		return nil
	}
	return tree.Files(root)
}

// Roots returns a copy of the category roots.
func (m *Manager) Roots() map[models.Category]*models.Folder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[models.Category]*models.Folder, len(m.roots))
	for cat, f := range m.roots {
		out[cat] = f
	}
	return out
}

// CategoryOf returns the category whose tree holds u.
func (m *Manager) CategoryOf(u models.Unit) (models.Category, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.categoryOf(u)
}

func (m *Manager) categoryOf(u models.Unit) (models.Category, bool) {
	if u == nil {
		return "", false
	}
	root := tree.RootOf(u)
	for cat, f := range m.roots {
		if f == root {
			return cat, true
		}
	}
	return "", false
}

// Current returns the folder under the navigation cursor.
func (m *Manager) Current() *models.Folder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Open moves the cursor to folder.
func (m *Manager) Open(folder *models.Folder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cat, ok := m.categoryOf(folder)
	if !ok {
		return ErrNotManaged
	}
	m.current = folder
	m.category = cat
	return nil
}

// Select moves the cursor to the root of a category.
func (m *Manager) Select(cat models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	root, ok := m.roots[cat]
	if !ok {
		return ErrNotInitialized
	}
	m.current = root
	m.category = cat
	return nil
}

// BackFolder moves the cursor to the upstream folder. It is a no-op at a
// category root.
func (m *Manager) BackFolder() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.Upstream() != nil {
		m.current = m.current.Upstream()
	}
}

// Find resolves a unit by absolute path across all category trees.
func (m *Manager) Find(p string) models.Unit {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cat := range models.Categories {
		if u := tree.FindByPath(m.roots[cat], p); u != nil {
			return u
		}
	}
	return nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// CreateFolder creates a directory named name inside parent and appends
// the new folder to the tree.
func (m *Manager) CreateFolder(ctx context.Context, parent *models.Folder, name string) (*models.Folder, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.categoryOf(parent); !ok {
		return nil, ErrNotManaged
	}
	p := models.JoinPath(parent.Path(), name)
	if parent.Child(name) != nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, p)
	}
	key, err := m.key(p)
	if err != nil {
		return nil, err
	}

	if err := m.backend.MakeDir(ctx, key); err != nil {
		metrics.RecordStorageOperation("create_folder", false)
		return nil, &OpError{Op: "mkdir", Path: p, Err: err}
	}

	folder := models.NewFolder(p, nil)
	parent.AddFile(folder)
	metrics.RecordStorageOperation("create_folder", true)
	m.logger.Info("folder created", zap.String("path", p))
	return folder, nil
}

// CreateFile writes the content of r to a new file fullName inside parent.
// It never overwrites an existing file.
func (m *Manager) CreateFile(ctx context.Context, parent *models.Folder, fullName string, r io.Reader) (*models.File, error) {
	if err := validateName(fullName); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createFile(ctx, parent, fullName, r)
}

func (m *Manager) createFile(ctx context.Context, parent *models.Folder, fullName string, r io.Reader) (*models.File, error) {
	if _, ok := m.categoryOf(parent); !ok {
		return nil, ErrNotManaged
	}
	p := models.JoinPath(parent.Path(), fullName)
	if parent.Child(fullName) != nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, p)
	}
	key, err := m.key(p)
	if err != nil {
		return nil, err
	}

	if err := m.backend.CreateObject(ctx, key, r); err != nil {
		metrics.RecordStorageOperation("create_file", false)
		return nil, &OpError{Op: "create", Path: p, Err: err}
	}

	file := models.NewFile(p)
	parent.AddFile(file)
	metrics.RecordStorageOperation("create_file", true)
	m.logger.Info("file created", zap.String("path", p))
	return file, nil
}

// Import copies the external file at srcPath into parent.
func (m *Manager) Import(ctx context.Context, parent *models.Folder, srcPath string) (*models.File, error) {
	fullName := filepath.Base(srcPath)
	if err := validateName(fullName); err != nil {
		return nil, err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return nil, &OpError{Op: "open", Path: srcPath, Err: err}
	}
	defer src.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createFile(ctx, parent, fullName, src)
}

// Rename gives u a new name. For files newName excludes the extension,
// which is kept. An empty newName or the current name is a no-op. The
// physical rename never replaces an existing entry.
func (m *Manager) Rename(ctx context.Context, u models.Unit, newName string) error {
	if u == nil || newName == "" || newName == u.Name() {
		return nil
	}
	if err := validateName(newName); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.categoryOf(u); !ok {
		return ErrNotManaged
	}
	parent := u.Upstream()
	if parent == nil {
		return ErrRootUnit
	}

	entry := newName
	if f, ok := u.(*models.File); ok && f.Extension() != "" {
		entry = newName + "." + f.Extension()
	}
	oldPath := u.Path()
	newPath := models.JoinPath(parent.Path(), entry)
	if parent.Child(entry) != nil {
		return fmt.Errorf("%w: %s", ErrExists, newPath)
	}

	oldKey, err := m.key(oldPath)
	if err != nil {
		return err
	}
	newKey, err := m.key(newPath)
	if err != nil {
		return err
	}

	if err := m.backend.Rename(ctx, oldKey, newKey); err != nil {
		metrics.RecordStorageOperation("rename", false)
		return &OpError{Op: "rename", Path: oldPath, Err: err}
	}

	models.Relocate(u, newPath)
	metrics.RecordStorageOperation("rename", true)
	m.logger.Info("unit renamed",
		zap.String("from", oldPath),
		zap.String("to", newPath))
	return nil
}

// Move relocates u into dest. Roots cannot be moved, a folder cannot be
// moved into itself or one of its descendants, and dest must not already
// hold an entry with the same name.
func (m *Manager) Move(ctx context.Context, u models.Unit, dest *models.Folder) error {
	if u == nil || dest == nil {
		return ErrInvalidMove
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.categoryOf(u); !ok {
		return ErrNotManaged
	}
	if _, ok := m.categoryOf(dest); !ok {
		return ErrNotManaged
	}
	parent := u.Upstream()
	if parent == nil {
		return ErrRootUnit
	}
	if parent == dest {
		return nil
	}
	if folder, ok := u.(*models.Folder); ok {
		if folder == dest || tree.IsDescendant(folder, dest) {
			return fmt.Errorf("%w: %s into %s", ErrInvalidMove, u.Path(), dest.Path())
		}
	}

	entry := models.EntryName(u)
	oldPath := u.Path()
	newPath := models.JoinPath(dest.Path(), entry)
	if dest.Child(entry) != nil {
		return fmt.Errorf("%w: %s", ErrExists, newPath)
	}

	oldKey, err := m.key(oldPath)
	if err != nil {
		return err
	}
	newKey, err := m.key(newPath)
	if err != nil {
		return err
	}

	if err := m.backend.Rename(ctx, oldKey, newKey); err != nil {
		metrics.RecordStorageOperation("move", false)
		return &OpError{Op: "move", Path: oldPath, Err: err}
	}

	parent.DeleteFile(u)
	dest.AddFile(u)
	models.Relocate(u, newPath)
	metrics.RecordStorageOperation("move", true)
	m.logger.Info("unit moved",
		zap.String("from", oldPath),
		zap.String("to", newPath))
	return nil
}

// Delete removes u from disk (recursively for folders) and from the tree.
// A cursor inside the deleted subtree falls back to the parent folder.
func (m *Manager) Delete(ctx context.Context, u models.Unit) error {
	if u == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.categoryOf(u); !ok {
		return ErrNotManaged
	}
	parent := u.Upstream()
	if parent == nil {
		return ErrRootUnit
	}

	key, err := m.key(u.Path())
	if err != nil {
		return err
	}
	if err := m.backend.RemoveAll(ctx, key); err != nil {
		metrics.RecordStorageOperation("delete", false)
		return &OpError{Op: "delete", Path: u.Path(), Err: err}
	}

	if folder, ok := u.(*models.Folder); ok {
		if m.current == folder || tree.IsDescendant(folder, m.current) {
			m.current = parent
		}
	}
	parent.DeleteFile(u)
	metrics.RecordStorageOperation("delete", true)
	m.logger.Info("unit deleted", zap.String("path", u.Path()))
	return nil
}

// Reload rebuilds one category tree from disk and re-resolves the cursor
// by path. Units of the previous tree are detached from the manager.
func (m *Manager) Reload(ctx context.Context, cat models.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.roots[cat]
	if !ok {
		return ErrNotInitialized
	}

	folder := models.NewFolder(old.Path(), nil)
	if err := m.scan(ctx, folder, 0, make(map[string]struct{})); err != nil {
		metrics.RecordStorageOperation("reload", false)
		return err
	}
	m.roots[cat] = folder

	if m.category == cat {
		cursor := m.currentPath(old)
		m.current = folder
		if f, ok := tree.FindByPath(folder, cursor).(*models.Folder); ok {
			m.current = f
		}
	}

	metrics.SetStorageTreeSize(string(cat), tree.CountNodes(folder)-1)
	metrics.RecordStorageOperation("reload", true)
	metrics.RecordWatcherReload(string(cat))
	m.logger.Debug("category reloaded", zap.String("category", string(cat)))
	return nil
}

// currentPath returns the cursor path if the cursor lies in old.
func (m *Manager) currentPath(old *models.Folder) string {
	if m.current != nil && (m.current == old || tree.IsDescendant(old, m.current)) {
		return m.current.Path()
	}
	return old.Path()
}
