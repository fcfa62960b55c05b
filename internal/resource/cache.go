// Package resource holds the loaded textures, models and sounds of a
// project, keyed by asset name without extension.
package resource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/FlamingRiot/Uniray-sub000/internal/asset"
	"github.com/FlamingRiot/Uniray-sub000/internal/logging"
	"github.com/FlamingRiot/Uniray-sub000/internal/metrics"
	"github.com/FlamingRiot/Uniray-sub000/internal/pak"
	"github.com/FlamingRiot/Uniray-sub000/pkg/models"
	"github.com/FlamingRiot/Uniray-sub000/pkg/tree"
)

var (
	ErrNotFound        = errors.New("resource not found")
	ErrDuplicate       = errors.New("resource already loaded")
	ErrUnsupportedKind = errors.New("resource kind not cached")
)

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// Cache holds three independent name -> asset maps. Adding a key that is
// already present fails with ErrDuplicate; entries are never overwritten.
// Entries loaded from a file remember that file as their owner, so that
// several files sharing a base name can be told apart.
type Cache struct {
	logger *zap.Logger

	mu       sync.Mutex
	models   map[string]asset.Model
	textures map[string]asset.Texture
	sounds   map[string]asset.Sound
	owners   map[ownerKey]*models.File
}

type ownerKey struct {
	kind asset.Kind
	key  string
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		logger:   logging.Named("resource"),
		models:   make(map[string]asset.Model),
		textures: make(map[string]asset.Texture),
		sounds:   make(map[string]asset.Sound),
		owners:   make(map[ownerKey]*models.File),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddModel caches a model under key.
func (c *Cache) AddModel(m asset.Model, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.models[key]; ok {
		return fmt.Errorf("%w: model %q", ErrDuplicate, key)
	}
	c.models[key] = m
	metrics.SetResourceCacheEntries(asset.KindModel.String(), len(c.models))
	return nil
}

// AddTexture caches a texture under key.
func (c *Cache) AddTexture(t asset.Texture, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.textures[key]; ok {
		return fmt.Errorf("%w: texture %q", ErrDuplicate, key)
	}
	c.textures[key] = t
	metrics.SetResourceCacheEntries(asset.KindTexture.String(), len(c.textures))
	return nil
}

// AddSound caches a sound under key.
func (c *Cache) AddSound(s asset.Sound, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sounds[key]; ok {
		return fmt.Errorf("%w: sound %q", ErrDuplicate, key)
	}
	c.sounds[key] = s
	metrics.SetResourceCacheEntries(asset.KindSound.String(), len(c.sounds))
	return nil
}

// GetModel returns the model cached under key.
func (c *Cache) GetModel(key string) (asset.Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.models[key]
	if !ok {
		return nil, fmt.Errorf("%w: model %q", ErrNotFound, key)
	}
	return m, nil
}

// GetTexture returns the texture cached under key.
func (c *Cache) GetTexture(key string) (asset.Texture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.textures[key]
	if !ok {
		return nil, fmt.Errorf("%w: texture %q", ErrNotFound, key)
	}
	return t, nil
}

// GetSound returns the sound cached under key.
func (c *Cache) GetSound(key string) (asset.Sound, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sounds[key]
	if !ok {
		return nil, fmt.Errorf("%w: sound %q", ErrNotFound, key)
	}
	return s, nil
}

func (c *Cache) ModelExists(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.models[key]
	return ok
}

func (c *Cache) TextureExists(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.textures[key]
	return ok
}

func (c *Cache) SoundExists(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sounds[key]
	return ok
}

// DeleteModel releases the model cached under key and removes it. It must
// be called before the backing file is deleted.
func (c *Cache) DeleteModel(key string) error {
	return c.delete(asset.KindModel, key)
}

// DeleteTexture releases the texture cached under key and removes it.
func (c *Cache) DeleteTexture(key string) error {
	return c.delete(asset.KindTexture, key)
}

// DeleteSound releases the sound cached under key and removes it.
func (c *Cache) DeleteSound(key string) error {
	return c.delete(asset.KindSound, key)
}

func (c *Cache) delete(kind asset.Kind, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var res asset.Releaser
	var n int
	switch kind {
	case asset.KindModel:
		m, ok := c.models[key]
		if !ok {
			return fmt.Errorf("%w: model %q", ErrNotFound, key)
		}
		res = m
		delete(c.models, key)
		n = len(c.models)
	case asset.KindTexture:
		t, ok := c.textures[key]
		if !ok {
			return fmt.Errorf("%w: texture %q", ErrNotFound, key)
		}
		res = t
		delete(c.textures, key)
		n = len(c.textures)
	case asset.KindSound:
		s, ok := c.sounds[key]
		if !ok {
			return fmt.Errorf("%w: sound %q", ErrNotFound, key)
		}
		res = s
		delete(c.sounds, key)
		n = len(c.sounds)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	delete(c.owners, ownerKey{kind, key})
	metrics.SetResourceCacheEntries(kind.String(), n)

	if err := res.Release(); err != nil {
		c.logger.Warn("release failed",
			zap.String("kind", kind.String()),
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("release %s %q: %w", kind, key, err)
	}
	return nil
}

// Delete removes key from the map of kind. Kinds that are not cached are
// ignored.
func (c *Cache) Delete(kind asset.Kind, key string) error {
	switch kind {
	case asset.KindModel, asset.KindTexture, asset.KindSound:
		return c.delete(kind, key)
	}
	return nil
}

// Exists reports whether key is cached for kind.
func (c *Cache) Exists(kind asset.Kind, key string) bool {
	switch kind {
	case asset.KindModel:
		return c.ModelExists(key)
	case asset.KindTexture:
		return c.TextureExists(key)
	case asset.KindSound:
		return c.SoundExists(key)
	}
	return false
}

// Add caches res under key in the map of kind.
func (c *Cache) Add(kind asset.Kind, res asset.Releaser, key string) error {
	switch kind {
	case asset.KindModel:
		return c.AddModel(res, key)
	case asset.KindTexture:
		return c.AddTexture(res, key)
	case asset.KindSound:
		return c.AddSound(res, key)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
}

// AddFile caches res under the name of f and records f as its owner.
func (c *Cache) AddFile(kind asset.Kind, res asset.Releaser, f *models.File) error {
	if err := c.Add(kind, res, f.Name()); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exists(kind, f.Name()) {
		c.owners[ownerKey{kind, f.Name()}] = f
	}
	return nil
}

// Owner returns the file that key was loaded from, or nil when key is not
// cached or came from an archive.
func (c *Cache) Owner(kind asset.Kind, key string) *models.File {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owners[ownerKey{kind, key}]
}

// SetOwner rebinds a cached key to f, typically the same file in a freshly
// scanned tree. It reports whether key is cached.
func (c *Cache) SetOwner(kind asset.Kind, key string, f *models.File) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.exists(kind, key) {
		return false
	}
	if f == nil {
		delete(c.owners, ownerKey{kind, key})
	} else {
		c.owners[ownerKey{kind, key}] = f
	}
	return true
}

func (c *Cache) exists(kind asset.Kind, key string) bool {
	var ok bool
	switch kind {
	case asset.KindModel:
		_, ok = c.models[key]
	case asset.KindTexture:
		_, ok = c.textures[key]
	case asset.KindSound:
		_, ok = c.sounds[key]
	}
	return ok
}

// Rekey moves the entry cached under oldKey, and its owner, to newKey. A
// missing oldKey is not an error; an occupied newKey is.
func (c *Cache) Rekey(kind asset.Kind, oldKey, newKey string) error {
	if oldKey == newKey {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	switch kind {
	case asset.KindModel:
		err = rekey(c.models, kind, oldKey, newKey)
	case asset.KindTexture:
		err = rekey(c.textures, kind, oldKey, newKey)
	case asset.KindSound:
		err = rekey(c.sounds, kind, oldKey, newKey)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	if owner, ok := c.owners[ownerKey{kind, oldKey}]; ok {
		delete(c.owners, ownerKey{kind, oldKey})
		c.owners[ownerKey{kind, newKey}] = owner
	}
	return nil
}

func rekey[T any](m map[string]T, kind asset.Kind, oldKey, newKey string) error {
	v, ok := m[oldKey]
	if !ok {
		return nil
	}
	if _, taken := m[newKey]; taken {
		return fmt.Errorf("%w: %s %q", ErrDuplicate, kind, newKey)
	}
	delete(m, oldKey)
	m[newKey] = v
	return nil
}

// Len returns the number of entries of kind.
func (c *Cache) Len(kind asset.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch kind {
	case asset.KindModel:
		return len(c.models)
	case asset.KindTexture:
		return len(c.textures)
	case asset.KindSound:
		return len(c.sounds)
	}
	return 0
}

// Keys returns the sorted keys of kind.
func (c *Cache) Keys(kind asset.Kind) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []string
	switch kind {
	case asset.KindModel:
		keys = sortedKeys(c.models)
	case asset.KindTexture:
		keys = sortedKeys(c.textures)
	case asset.KindSound:
		keys = sortedKeys(c.sounds)
	}
	return keys
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ReleaseAll releases every cached asset and empties the cache. It returns
// the first release error.
func (c *Cache) ReleaseAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var first error
	release := func(kind asset.Kind, key string, r asset.Releaser) {
		if err := r.Release(); err != nil && first == nil {
			first = fmt.Errorf("release %s %q: %w", kind, key, err)
		}
	}
	for k, m := range c.models {
		release(asset.KindModel, k, m)
	}
	for k, t := range c.textures {
		release(asset.KindTexture, k, t)
	}
	for k, s := range c.sounds {
		release(asset.KindSound, k, s)
	}
	c.models = make(map[string]asset.Model)
	c.textures = make(map[string]asset.Texture)
	c.sounds = make(map[string]asset.Sound)
	c.owners = make(map[ownerKey]*models.File)
	for _, kind := range []asset.Kind{asset.KindModel, asset.KindTexture, asset.KindSound} {
		metrics.SetResourceCacheEntries(kind.String(), 0)
	}
	return first
}

// LoadTree loads every file below folder whose extension classifies as
// kind. Files whose name is already cached are skipped with a warning.
// It returns the number of assets loaded.
func (c *Cache) LoadTree(ctx context.Context, folder *models.Folder, kind asset.Kind, l asset.Loader) (int, error) {
	loaded := 0
	err := tree.Walk(folder, func(u models.Unit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, ok := u.(*models.File)
		if !ok || asset.KindOfFile(f) != kind {
			return nil
		}
		if c.Exists(kind, f.Name()) {
			c.logger.Warn("duplicate asset name, skipping",
				zap.String("kind", kind.String()),
				zap.String("key", f.Name()),
				zap.String("path", f.Path()))
			return nil
		}

		data, err := os.ReadFile(filepath.FromSlash(f.Path()))
		if err != nil {
			metrics.RecordResourceLoad(kind.String(), false)
			return fmt.Errorf("read %s: %w", f.Path(), err)
		}
		res, err := asset.Load(l, kind, f.Name(), f.Extension(), data)
		if err != nil {
			metrics.RecordResourceLoad(kind.String(), false)
			return fmt.Errorf("load %s: %w", f.Path(), err)
		}
		if err := c.AddFile(kind, res, f); err != nil {
			res.Release()
			return err
		}
		metrics.RecordResourceLoad(kind.String(), true)
		loaded++
		return nil
	})
	if err != nil {
		return loaded, err
	}
	c.logger.Debug("resources loaded from tree",
		zap.String("kind", kind.String()),
		zap.String("root", folder.Path()),
		zap.Int("count", loaded))
	return loaded, nil
}

// LoadPak loads every model, texture and sound entry of an archive, keyed
// by entry name. Entries of other kinds are ignored.
func (c *Cache) LoadPak(ctx context.Context, r *pak.Reader, l asset.Loader) (int, error) {
	loaded := 0
	for _, e := range r.Entries() {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}
		kind := asset.KindOf(e.FileType)
		switch kind {
		case asset.KindModel, asset.KindTexture, asset.KindSound:
		default:
			continue
		}
		if c.Exists(kind, e.Name) {
			c.logger.Warn("duplicate asset name, skipping",
				zap.String("kind", kind.String()),
				zap.String("key", e.Name))
			continue
		}

		res, _, err := r.Load(l, e.Name)
		if err != nil {
			metrics.RecordResourceLoad(kind.String(), false)
			return loaded, err
		}
		if err := c.Add(kind, res, e.Name); err != nil {
			res.Release()
			return loaded, err
		}
		metrics.RecordResourceLoad(kind.String(), true)
		loaded++
	}
	return loaded, nil
}
