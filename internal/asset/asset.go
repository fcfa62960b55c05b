// Package asset classifies asset files and defines the loader boundary to
// the native rendering and audio layer.
package asset

import (
	"fmt"
	"strings"

	"github.com/FlamingRiot/Uniray-sub000/pkg/models"
)

// Kind is the asset class of a file, derived from its extension.
type Kind int

const (
	KindUnknown Kind = iota
	KindModel
	KindTexture
	KindSound
	KindAnimation
	KindScript
)

var kindNames = map[Kind]string{
	KindUnknown:   "unknown",
	KindModel:     "model",
	KindTexture:   "texture",
	KindSound:     "sound",
	KindAnimation: "animation",
	KindScript:    "script",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var kindByExtension = map[string]Kind{
	"obj":  KindModel,
	"glb":  KindModel,
	"gltf": KindModel,
	"iqm":  KindModel,
	"vox":  KindModel,
	"m3d":  KindModel,

	"png":  KindTexture,
	"jpg":  KindTexture,
	"jpeg": KindTexture,
	"bmp":  KindTexture,
	"tga":  KindTexture,
	"gif":  KindTexture,
	"hdr":  KindTexture,
	"qoi":  KindTexture,
	"dds":  KindTexture,
	"psd":  KindTexture,

	"wav":  KindSound,
	"ogg":  KindSound,
	"mp3":  KindSound,
	"flac": KindSound,
	"qoa":  KindSound,
	"xm":   KindSound,
	"mod":  KindSound,

	"anim": KindAnimation,

	"cs":  KindScript,
	"go":  KindScript,
	"lua": KindScript,
}

// KindOf classifies a file extension (with or without the leading dot,
// case-insensitive).
func KindOf(ext string) Kind {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return kindByExtension[ext]
}

// KindOfFile classifies a file unit by its extension.
func KindOfFile(f *models.File) Kind {
	return KindOf(f.Extension())
}

// KindOfCategory returns the asset kind stored in a category directory.
func KindOfCategory(c models.Category) Kind {
	switch c {
	case models.CategoryModels:
		return KindModel
	case models.CategoryTextures:
		return KindTexture
	case models.CategorySounds:
		return KindSound
	case models.CategoryAnimations:
		return KindAnimation
	case models.CategoryScripts:
		return KindScript
	}
	return KindUnknown
}

// Releaser frees the native resources held by a loaded asset.
type Releaser interface {
	Release() error
}

// Texture is a loaded, ready-to-render texture.
type Texture interface{ Releaser }

// Model is a loaded, ready-to-render model.
type Model interface{ Releaser }

// Sound is a loaded, ready-to-play sound.
type Sound interface{ Releaser }

// Loader decodes raw asset bytes into native assets. Implementations wrap
// the rendering and audio libraries of the host editor.
type Loader interface {
	LoadTexture(name, ext string, data []byte) (Texture, error)
	LoadModel(name, ext string, data []byte) (Model, error)
	LoadSound(name, ext string, data []byte) (Sound, error)
}

// Load dispatches to the loader method matching kind.
func Load(l Loader, kind Kind, name, ext string, data []byte) (Releaser, error) {
	switch kind {
	case KindTexture:
		return l.LoadTexture(name, ext, data)
	case KindModel:
		return l.LoadModel(name, ext, data)
	case KindSound:
		return l.LoadSound(name, ext, data)
	}
	return nil, fmt.Errorf("no loader for %s assets (%s.%s)", kind, name, ext)
}
