package models

import "fmt"

// Category is one of the asset directories of a project.
type Category string

const (
	CategoryModels     Category = "models"
	CategoryTextures   Category = "textures"
	CategorySounds     Category = "sounds"
	CategoryAnimations Category = "animations"
	CategoryScripts    Category = "scripts"
)

// Categories lists every asset category in load order.
var Categories = []Category{
	CategoryModels,
	CategoryTextures,
	CategorySounds,
	CategoryAnimations,
	CategoryScripts,
}

// AssetsDir is the directory under the project root holding the categories.
const AssetsDir = "assets"

// ScenesDir is the directory under the project root holding scene folders.
const ScenesDir = "scenes"

// ParseCategory parses a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown asset category: %q", s)
}

// Dir returns the category directory under a project root.
func (c Category) Dir(projectRoot string) string {
	return JoinPath(JoinPath(NormalizePath(projectRoot), AssetsDir), string(c))
}
