// Package scene holds the project and scene model edited by Uniray and the
// legacy JSON scene files.
package scene

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/FlamingRiot/Uniray-sub000/internal/asset"
)

// Kind identifies the variant of an Object.
type Kind int

const (
	KindModel Kind = iota + 1
	KindCamera
)

func (k Kind) String() string {
	switch k {
	case KindModel:
		return "model"
	case KindCamera:
		return "camera"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Vector3 is a 3D vector.
type Vector3 struct {
	X float32 `json:"X"`
	Y float32 `json:"Y"`
	Z float32 `json:"Z"`
}

// Placement is the position and rotation (degrees) shared by all objects.
type Placement struct {
	X     float32 `json:"X"`
	Y     float32 `json:"Y"`
	Z     float32 `json:"Z"`
	Yaw   float32 `json:"Yaw"`
	Pitch float32 `json:"Pitch"`
	Roll  float32 `json:"Roll"`
}

// Object is a game object of a scene: either a *Model or a *Camera.
type Object interface {
	Kind() Kind
	ObjectID() string
	Place() *Placement
	object()
}

// Identity is a 4x4 identity transform, column major.
var Identity = [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// Model is a placed model with its texture.
type Model struct {
	ID   string `json:"ID,omitempty"`
	Name string `json:"Name,omitempty"`
	Placement
	ModelID   string      `json:"ModelID"`
	TextureID string      `json:"TextureID"`
	Transform [16]float32 `json:"Transform"`
}

// NewModel creates a model object with a fresh ID and an identity transform.
func NewModel(name, modelID, textureID string) *Model {
	return &Model{
		ID:        uuid.NewString(),
		Name:      name,
		ModelID:   modelID,
		TextureID: textureID,
		Transform: Identity,
	}
}

func (m *Model) Kind() Kind        { return KindModel }
func (m *Model) ObjectID() string  { return m.ID }
func (m *Model) Place() *Placement { return &m.Placement }
func (*Model) object()             {}

// Projection modes of a camera.
const (
	ProjectionPerspective  = 0
	ProjectionOrthographic = 1
)

// Camera is a scene camera.
type Camera struct {
	ID   string `json:"ID,omitempty"`
	Name string `json:"Name,omitempty"`
	Placement
	Target     Vector3 `json:"Target"`
	Up         Vector3 `json:"Up"`
	Fovy       float32 `json:"Fovy"`
	Projection int     `json:"Projection"`
}

// NewCamera creates a perspective camera looking at the origin.
func NewCamera(name string) *Camera {
	return &Camera{
		ID:         uuid.NewString(),
		Name:       name,
		Placement:  Placement{Y: 2, Z: 10},
		Up:         Vector3{Y: 1},
		Fovy:       45,
		Projection: ProjectionPerspective,
	}
}

func (c *Camera) Kind() Kind        { return KindCamera }
func (c *Camera) ObjectID() string  { return c.ID }
func (c *Camera) Place() *Placement { return &c.Placement }
func (*Camera) object()             {}

// Scene is an ordered list of objects.
type Scene struct {
	Name    string
	Objects []Object
}

// New creates an empty scene.
func New(name string) *Scene {
	return &Scene{Name: name}
}

// Add appends objects to the scene.
func (s *Scene) Add(objs ...Object) {
	s.Objects = append(s.Objects, objs...)
}

// Remove deletes the object with the given ID. It reports whether an
// object was removed.
func (s *Scene) Remove(id string) bool {
	for i, o := range s.Objects {
		if o.ObjectID() == id {
			s.Objects = append(s.Objects[:i], s.Objects[i+1:]...)
			return true
		}
	}
	return false
}

// Split separates the objects by variant, preserving order.
func (s *Scene) Split() (models []*Model, cameras []*Camera) {
	for _, o := range s.Objects {
		switch v := o.(type) {
		case *Model:
			models = append(models, v)
		case *Camera:
			cameras = append(cameras, v)
		}
	}
	return models, cameras
}

// FromParts builds a scene from models followed by cameras. Objects
// without an ID get a fresh one.
func FromParts(name string, models []*Model, cameras []*Camera) *Scene {
	s := &Scene{Name: name, Objects: make([]Object, 0, len(models)+len(cameras))}
	for _, m := range models {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		s.Objects = append(s.Objects, m)
	}
	for _, c := range cameras {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		s.Objects = append(s.Objects, c)
	}
	return s
}

// Project is a named set of scenes rooted at a directory.
type Project struct {
	Name   string
	Root   string
	Scenes []*Scene
}

// Scene returns the scene with the given name, or nil.
func (p *Project) Scene(name string) *Scene {
	for _, s := range p.Scenes {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// AddScene appends a scene. Scene names are unique within a project.
func (p *Project) AddScene(s *Scene) error {
	if p.Scene(s.Name) != nil {
		return fmt.Errorf("scene %q already exists", s.Name)
	}
	p.Scenes = append(p.Scenes, s)
	return nil
}

// RenameAssetReferences rewrites every model object referencing oldKey:
// ModelID for model assets, TextureID for texture assets. It returns the
// number of objects changed.
func (p *Project) RenameAssetReferences(kind asset.Kind, oldKey, newKey string) int {
	if oldKey == newKey {
		return 0
	}
	n := 0
	for _, s := range p.Scenes {
		n += s.RenameAssetReferences(kind, oldKey, newKey)
	}
	return n
}

// RenameAssetReferences is the per-scene form of
// Project.RenameAssetReferences.
func (s *Scene) RenameAssetReferences(kind asset.Kind, oldKey, newKey string) int {
	n := 0
	for _, o := range s.Objects {
		m, ok := o.(*Model)
		if !ok {
			continue
		}
		switch {
		case kind == asset.KindModel && m.ModelID == oldKey:
			m.ModelID = newKey
			n++
		case kind == asset.KindTexture && m.TextureID == oldKey:
			m.TextureID = newKey
			n++
		}
	}
	return n
}
