package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/FlamingRiot/Uniray-sub000/pkg/models"
)

// File names inside a scene directory.
const (
	ModelsFile  = "locs.json"
	CamerasFile = "camera.json"
	DatExt      = ".DAT"
)

// Dir returns the directory of a scene under a project root.
func Dir(projectRoot, name string) string {
	return filepath.Join(projectRoot, models.ScenesDir, name)
}

// DatPath returns the .DAT file of a scene under a project root.
func DatPath(projectRoot, name string) string {
	return filepath.Join(Dir(projectRoot, name), name+DatExt)
}

// List returns the sorted names of the scene directories of a project.
// A project without a scenes directory has no scenes.
func List(projectRoot string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(projectRoot, models.ScenesDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// HasLegacy reports whether dir holds a locs.json or camera.json file.
func HasLegacy(dir string) bool {
	for _, name := range []string{ModelsFile, CamerasFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// LoadLegacy reads locs.json and camera.json from dir. A missing file is
// read as an empty list.
func LoadLegacy(dir, name string) (*Scene, error) {
	var ms []*Model
	if err := readJSON(filepath.Join(dir, ModelsFile), &ms); err != nil {
		return nil, err
	}
	var cs []*Camera
	if err := readJSON(filepath.Join(dir, CamerasFile), &cs); err != nil {
		return nil, err
	}
	return FromParts(name, ms, cs), nil
}

// SaveLegacy writes the scene as locs.json and camera.json into dir.
func SaveLegacy(dir string, s *Scene) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create scene dir: %w", err)
	}
	ms, cs := s.Split()
	if ms == nil {
		ms = []*Model{}
	}
	if cs == nil {
		cs = []*Camera{}
	}
	if err := writeJSON(filepath.Join(dir, ModelsFile), ms); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, CamerasFile), cs)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// writeJSON writes v to path via a temp file and rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
