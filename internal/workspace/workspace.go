// Package workspace is the editor context: it owns the asset trees, the
// resource cache, the project scenes and the publish target of one open
// project, and keeps them consistent across asset operations.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/FlamingRiot/Uniray-sub000/internal/asset"
	"github.com/FlamingRiot/Uniray-sub000/internal/config"
	"github.com/FlamingRiot/Uniray-sub000/internal/dat"
	"github.com/FlamingRiot/Uniray-sub000/internal/filemanager"
	"github.com/FlamingRiot/Uniray-sub000/internal/logging"
	"github.com/FlamingRiot/Uniray-sub000/internal/resource"
	"github.com/FlamingRiot/Uniray-sub000/internal/scene"
	"github.com/FlamingRiot/Uniray-sub000/internal/storage"
	"github.com/FlamingRiot/Uniray-sub000/internal/storage/local"
	"github.com/FlamingRiot/Uniray-sub000/pkg/models"
	"github.com/FlamingRiot/Uniray-sub000/pkg/tree"
)

// cachedCategories are the categories preloaded into the resource cache.
var cachedCategories = []models.Category{
	models.CategoryModels,
	models.CategoryTextures,
	models.CategorySounds,
}

// Option configures Open.
type Option func(*Workspace)

// WithPublisher overrides the publish backend built from the config.
func WithPublisher(b storage.Backend) Option {
	return func(w *Workspace) {
		w.publisher = b
		w.publisherSet = true
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Workspace) {
		if l != nil {
			w.logger = l
		}
	}
}

// Workspace is one open project. Operations that change the asset trees
// (Rename, Move, Delete, Import, CreateFolder, Apply, Build) are serialized,
// so Watch may run alongside them. Units handed out by Files must only be
// mutated through the workspace.
type Workspace struct {
	cfg          *config.Config
	root         string
	logger       *zap.Logger
	loader       asset.Loader
	files        *filemanager.Manager
	cache        *resource.Cache
	publisher    storage.Backend
	publisherSet bool

	ops sync.Mutex

	mu      sync.Mutex
	project *scene.Project
}

// Open loads the project at cfg.ProjectRoot: asset trees, scenes (.DAT
// preferred over the legacy JSON files) and the resource cache.
func Open(ctx context.Context, cfg *config.Config, loader asset.Loader, opts ...Option) (*Workspace, error) {
	root, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	w := &Workspace{
		cfg:    cfg,
		root:   root,
		logger: logging.Named("workspace"),
		loader: loader,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.cache = resource.New(resource.WithLogger(w.logger.Named("resource")))

	backend, err := local.New(local.Config{RootPath: root, CreateDirs: true})
	if err != nil {
		return nil, fmt.Errorf("open project storage: %w", err)
	}
	w.files = filemanager.New(backend,
		filemanager.WithMaxDepth(cfg.MaxScanDepth),
		filemanager.WithLogger(w.logger.Named("filemanager")))
	if err := w.files.Init(ctx, "."); err != nil {
		return nil, fmt.Errorf("load asset trees: %w", err)
	}

	project, err := w.loadProject()
	if err != nil {
		return nil, err
	}
	w.project = project

	for _, cat := range cachedCategories {
		n, err := w.cache.LoadTree(ctx, w.files.Root(cat), asset.KindOfCategory(cat), loader)
		if err != nil {
			w.cache.ReleaseAll()
			return nil, fmt.Errorf("preload %s: %w", cat, err)
		}
		w.logger.Debug("category cached", zap.String("category", string(cat)), zap.Int("count", n))
	}

	if !w.publisherSet {
		pub, err := storage.NewPublisherFromConfig(ctx, cfg)
		if err != nil {
			w.cache.ReleaseAll()
			return nil, fmt.Errorf("create publisher: %w", err)
		}
		if pub != nil {
			w.publisher = pub
		}
	}

	w.logger.Info("workspace opened",
		zap.String("project", project.Name),
		zap.String("root", root),
		zap.Int("scenes", len(project.Scenes)))
	return w, nil
}

func (w *Workspace) datOptions() []dat.Option {
	opts := []dat.Option{dat.WithLogger(w.logger.Named("dat"))}
	if w.cfg.DatPassphrase != "" {
		opts = append(opts, dat.WithPassphrase(w.cfg.DatPassphrase))
	}
	return opts
}

func (w *Workspace) loadProject() (*scene.Project, error) {
	p := &scene.Project{Name: filepath.Base(w.root), Root: w.root}
	names, err := scene.List(w.root)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		s, err := w.loadScene(name)
		if err != nil {
			return nil, fmt.Errorf("load scene %s: %w", name, err)
		}
		p.Scenes = append(p.Scenes, s)
	}
	return p, nil
}

func (w *Workspace) loadScene(name string) (*scene.Scene, error) {
	datPath := scene.DatPath(w.root, name)
	if _, err := os.Stat(datPath); err == nil {
		return dat.ReadFile(datPath, w.datOptions()...)
	}
	dir := scene.Dir(w.root, name)
	if scene.HasLegacy(dir) {
		w.logger.Info("loading legacy scene files", zap.String("scene", name))
		return scene.LoadLegacy(dir, name)
	}
	return scene.New(name), nil
}

// Root returns the absolute project root.
func (w *Workspace) Root() string { return w.root }

// Files returns the filesystem synchronizer.
func (w *Workspace) Files() *filemanager.Manager { return w.files }

// Cache returns the resource cache.
func (w *Workspace) Cache() *resource.Cache { return w.cache }

// Project returns the open project.
func (w *Workspace) Project() *scene.Project {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.project
}

// Rename renames a unit. Renaming the File that backs a cached asset also
// re-keys the asset and rewrites the scene objects referencing the old
// name; a file sharing its base name with the owner is cached under its new
// name instead. It returns the number of rewritten scene objects.
func (w *Workspace) Rename(ctx context.Context, u models.Unit, newName string) (int, error) {
	if u == nil {
		return 0, nil
	}
	w.ops.Lock()
	defer w.ops.Unlock()

	oldName := u.Name()
	f, isFile := u.(*models.File)
	kind := asset.KindUnknown
	owned := false
	if isFile {
		kind = asset.KindOfFile(f)
		owned = cacheable(kind) && w.cache.Owner(kind, oldName) == f
	}
	if err := w.files.Rename(ctx, u, newName); err != nil {
		return 0, err
	}
	if !isFile || f.Name() == oldName || !cacheable(kind) {
		return 0, nil
	}

	if !owned {
		if err := w.loadFile(f); err != nil {
			w.logger.Warn("renamed asset not cached", zap.String("path", f.Path()), zap.Error(err))
		}
		return 0, nil
	}

	if err := w.cache.Rekey(kind, oldName, f.Name()); err != nil {
		// another file already backs the new name
		w.logger.Warn("cache rekey failed",
			zap.String("from", oldName),
			zap.String("to", f.Name()),
			zap.Error(err))
		if derr := w.cache.Delete(kind, oldName); derr != nil {
			w.logger.Warn("release failed", zap.String("key", oldName), zap.Error(derr))
		}
		w.refill(kind, oldName)
		return 0, nil
	}
	w.refill(kind, oldName)

	w.mu.Lock()
	n := w.project.RenameAssetReferences(kind, oldName, f.Name())
	w.mu.Unlock()

	w.logger.Info("asset references updated",
		zap.String("kind", kind.String()),
		zap.String("from", oldName),
		zap.String("to", f.Name()),
		zap.Int("objects", n))
	return n, nil
}

// Move moves a unit to another folder.
func (w *Workspace) Move(ctx context.Context, u models.Unit, dest *models.Folder) error {
	w.ops.Lock()
	defer w.ops.Unlock()
	return w.files.Move(ctx, u, dest)
}

// CreateFolder creates a sub-folder.
func (w *Workspace) CreateFolder(ctx context.Context, parent *models.Folder, name string) (*models.Folder, error) {
	w.ops.Lock()
	defer w.ops.Unlock()
	return w.files.CreateFolder(ctx, parent, name)
}

// Import copies an external file into parent and loads it into the cache
// when its kind is cached and its name is free.
func (w *Workspace) Import(ctx context.Context, parent *models.Folder, srcPath string) (*models.File, error) {
	w.ops.Lock()
	defer w.ops.Unlock()
	f, err := w.files.Import(ctx, parent, srcPath)
	if err != nil {
		return nil, err
	}
	if err := w.loadFile(f); err != nil {
		w.logger.Warn("imported asset not cached", zap.String("path", f.Path()), zap.Error(err))
	}
	return f, nil
}

// Delete removes a unit. Cached assets backed by files in the removed
// subtree are released before the files are deleted; if deletion fails
// they are loaded again.
func (w *Workspace) Delete(ctx context.Context, u models.Unit) error {
	if u == nil {
		return nil
	}
	w.ops.Lock()
	defer w.ops.Unlock()

	var released []*models.File
	for _, f := range tree.Files(u) {
		kind := asset.KindOfFile(f)
		if !cacheable(kind) || w.cache.Owner(kind, f.Name()) != f {
			continue
		}
		if err := w.cache.Delete(kind, f.Name()); err != nil {
			w.logger.Warn("release failed", zap.String("path", f.Path()), zap.Error(err))
		}
		released = append(released, f)
	}

	if err := w.files.Delete(ctx, u); err != nil {
		for _, f := range released {
			if lerr := w.loadFile(f); lerr != nil {
				w.logger.Warn("reload after failed delete", zap.String("path", f.Path()), zap.Error(lerr))
			}
		}
		return err
	}

	// Another file with the same name may now back the key.
	for _, f := range released {
		w.refill(asset.KindOfFile(f), f.Name())
	}
	return nil
}

func cacheable(k asset.Kind) bool {
	return k == asset.KindModel || k == asset.KindTexture || k == asset.KindSound
}

// loadFile loads f into the cache if its kind is cached and its key free.
func (w *Workspace) loadFile(f *models.File) error {
	kind := asset.KindOfFile(f)
	if !cacheable(kind) || w.cache.Exists(kind, f.Name()) {
		return nil
	}
	data, err := os.ReadFile(filepath.FromSlash(f.Path()))
	if err != nil {
		return err
	}
	res, err := asset.Load(w.loader, kind, f.Name(), f.Extension(), data)
	if err != nil {
		return err
	}
	if err := w.cache.AddFile(kind, res, f); err != nil {
		res.Release()
		return err
	}
	return nil
}

// refill loads the first remaining file of kind named name when the key is
// free.
func (w *Workspace) refill(kind asset.Kind, name string) {
	if w.cache.Exists(kind, name) {
		return
	}
	for _, cat := range cachedCategories {
		for _, f := range w.files.Files(cat) {
			if f.Name() == name && asset.KindOfFile(f) == kind {
				if err := w.loadFile(f); err != nil {
					w.logger.Warn("refill failed", zap.String("path", f.Path()), zap.Error(err))
				}
				return
			}
		}
	}
}

// syncCategory aligns the cache with a reloaded category tree. Keys whose
// owning file still exists are rebound to the unit of the new tree, keys
// without one are released, and new files are loaded.
func (w *Workspace) syncCategory(cat models.Category) {
	kind := asset.KindOfCategory(cat)
	if !cacheable(kind) {
		return
	}

	byPath := make(map[string]*models.File)
	for _, c := range cachedCategories {
		for _, f := range w.files.Files(c) {
			if asset.KindOfFile(f) == kind {
				byPath[f.Path()] = f
			}
		}
	}
	for _, key := range w.cache.Keys(kind) {
		if owner := w.cache.Owner(kind, key); owner != nil {
			if f, ok := byPath[owner.Path()]; ok && f.Name() == key {
				w.cache.SetOwner(kind, key, f)
				continue
			}
		}
		if err := w.cache.Delete(kind, key); err != nil {
			w.logger.Warn("release failed", zap.String("key", key), zap.Error(err))
		}
	}
	for _, f := range w.files.Files(cat) {
		if asset.KindOfFile(f) == kind {
			if err := w.loadFile(f); err != nil {
				w.logger.Warn("load failed", zap.String("path", f.Path()), zap.Error(err))
			}
		}
	}
}

func validSceneName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid scene name %q", name)
	}
	return nil
}

// NewScene adds an empty scene to the project.
func (w *Workspace) NewScene(name string) (*scene.Scene, error) {
	if err := validSceneName(name); err != nil {
		return nil, err
	}
	s := scene.New(name)
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.project.AddScene(s); err != nil {
		return nil, err
	}
	return s, nil
}

// SaveScene writes a scene as .DAT and, when configured, as legacy JSON.
func (w *Workspace) SaveScene(ctx context.Context, s *scene.Scene) error {
	if err := validSceneName(s.Name); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := dat.WriteFile(ctx, s, scene.DatPath(w.root, s.Name), w.datOptions()...); err != nil {
		return fmt.Errorf("save scene %s: %w", s.Name, err)
	}
	if w.cfg.LegacySceneJSON {
		if err := scene.SaveLegacy(scene.Dir(w.root, s.Name), s); err != nil {
			return fmt.Errorf("save scene %s: %w", s.Name, err)
		}
	}
	w.logger.Info("scene saved", zap.String("scene", s.Name), zap.Int("objects", len(s.Objects)))
	return nil
}

// SaveAll saves every scene of the project.
func (w *Workspace) SaveAll(ctx context.Context) error {
	var errs []error
	for _, s := range w.Project().Scenes {
		if err := w.SaveScene(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases the cached assets and the publish backend.
func (w *Workspace) Close() error {
	err := w.cache.ReleaseAll()
	if w.publisher != nil {
		if cerr := w.publisher.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
