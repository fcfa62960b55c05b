package resource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/FlamingRiot/Uniray-sub000/internal/asset"
	"github.com/FlamingRiot/Uniray-sub000/internal/pak"
	"github.com/FlamingRiot/Uniray-sub000/pkg/models"
)

type fakeAsset struct {
	released int
	err      error
}

func (f *fakeAsset) Release() error {
	f.released++
	return f.err
}

func TestModelExistenceSemantics(t *testing.T) {
	c := New()
	m := &fakeAsset{}

	if c.ModelExists("rock") {
		t.Fatal("ModelExists before AddModel")
	}
	if err := c.AddModel(m, "rock"); err != nil {
		t.Fatalf("AddModel: %v", err)
	}
	if !c.ModelExists("rock") {
		t.Fatal("ModelExists false after AddModel")
	}
	if err := c.DeleteModel("rock"); err != nil {
		t.Fatalf("DeleteModel: %v", err)
	}
	if c.ModelExists("rock") {
		t.Error("ModelExists true after DeleteModel")
	}
	if _, err := c.GetModel("rock"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetModel after delete error = %v, want ErrNotFound", err)
	}
	if m.released != 1 {
		t.Errorf("released %d times, want 1", m.released)
	}
}

func TestMapsAreIndependent(t *testing.T) {
	c := New()
	if err := c.AddTexture(&fakeAsset{}, "rock"); err != nil {
		t.Fatal(err)
	}
	if err := c.AddModel(&fakeAsset{}, "rock"); err != nil {
		t.Fatalf("same key in another map should be allowed: %v", err)
	}
	if c.SoundExists("rock") {
		t.Error("sound map should be empty")
	}
	if c.Len(asset.KindTexture) != 1 || c.Len(asset.KindModel) != 1 {
		t.Errorf("lens = %d/%d", c.Len(asset.KindTexture), c.Len(asset.KindModel))
	}
}

func TestDuplicateIsRejected(t *testing.T) {
	c := New()
	first := &fakeAsset{}
	if err := c.AddSound(first, "wind"); err != nil {
		t.Fatal(err)
	}
	if err := c.AddSound(&fakeAsset{}, "wind"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second AddSound error = %v, want ErrDuplicate", err)
	}
	got, _ := c.GetSound("wind")
	if got != first {
		t.Error("duplicate add overwrote the entry")
	}
}

func TestDeleteMissing(t *testing.T) {
	c := New()
	for _, del := range []func(string) error{c.DeleteModel, c.DeleteTexture, c.DeleteSound} {
		if err := del("nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("delete missing error = %v, want ErrNotFound", err)
		}
	}
}

func TestRekey(t *testing.T) {
	c := New()
	rock := &fakeAsset{}
	c.AddModel(rock, "rock")
	c.AddModel(&fakeAsset{}, "tree")

	if err := c.Rekey(asset.KindModel, "rock", "stone"); err != nil {
		t.Fatalf("Rekey: %v", err)
	}
	if c.ModelExists("rock") {
		t.Error("old key still present")
	}
	if got, _ := c.GetModel("stone"); got != rock {
		t.Error("new key does not hold the asset")
	}
	if err := c.Rekey(asset.KindModel, "stone", "tree"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Rekey onto existing key error = %v, want ErrDuplicate", err)
	}
	if err := c.Rekey(asset.KindModel, "missing", "other"); err != nil {
		t.Errorf("Rekey of missing key: %v", err)
	}
}

func TestReleaseAll(t *testing.T) {
	c := New()
	assets := []*fakeAsset{{}, {}, {err: errors.New("gpu lost")}}
	c.AddModel(assets[0], "a")
	c.AddTexture(assets[1], "b")
	c.AddSound(assets[2], "c")

	if err := c.ReleaseAll(); err == nil {
		t.Error("ReleaseAll should report the release error")
	}
	for i, a := range assets {
		if a.released != 1 {
			t.Errorf("asset %d released %d times", i, a.released)
		}
	}
	if c.Len(asset.KindModel)+c.Len(asset.KindTexture)+c.Len(asset.KindSound) != 0 {
		t.Error("cache not empty after ReleaseAll")
	}
}

func writeAsset(t *testing.T, p, content string) *models.File {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return models.NewFile(p)
}

func TestLoadTree(t *testing.T) {
	dir := t.TempDir()
	root := models.NewFolder(dir, nil)
	root.AddFile(writeAsset(t, filepath.Join(dir, "rock.m3d"), "rock"))
	root.AddFile(writeAsset(t, filepath.Join(dir, "notes.txt"), "ignored"))
	sub := models.NewFolder(filepath.Join(dir, "trees"), nil)
	sub.AddFile(writeAsset(t, filepath.Join(dir, "trees", "oak.obj"), "oak"))
	sub.AddFile(writeAsset(t, filepath.Join(dir, "trees", "rock.obj"), "other rock"))
	root.AddFile(sub)

	c := New()
	n, err := c.LoadTree(context.Background(), root, asset.KindModel, asset.RawLoader{})
	if err != nil {
		t.Fatalf("LoadTree: %v", err)
	}
	if n != 2 {
		t.Errorf("loaded %d, want 2 (duplicate rock skipped)", n)
	}
	got, err := c.GetModel("rock")
	if err != nil {
		t.Fatal(err)
	}
	if string(got.(*asset.Blob).Data()) != "rock" {
		t.Error("first rock should win")
	}
	if !c.ModelExists("oak") {
		t.Error("nested model not loaded")
	}
	if c.Keys(asset.KindModel)[0] != "oak" {
		t.Errorf("Keys = %v", c.Keys(asset.KindModel))
	}
}

func TestOwnerFollowsEntry(t *testing.T) {
	dir := t.TempDir()
	root := models.NewFolder(dir, nil)
	first := writeAsset(t, filepath.Join(dir, "a", "rock.m3d"), "AAAA")
	second := writeAsset(t, filepath.Join(dir, "b", "rock.m3d"), "BBBB")
	root.AddFile(first)
	root.AddFile(second)

	c := New()
	if _, err := c.LoadTree(context.Background(), root, asset.KindModel, asset.RawLoader{}); err != nil {
		t.Fatal(err)
	}
	if got := c.Owner(asset.KindModel, "rock"); got != first {
		t.Fatalf("Owner(rock) = %v, want the first file", got)
	}

	if err := c.Rekey(asset.KindModel, "rock", "stone"); err != nil {
		t.Fatal(err)
	}
	if c.Owner(asset.KindModel, "rock") != nil || c.Owner(asset.KindModel, "stone") != first {
		t.Error("owner did not move with the key")
	}

	if err := c.AddFile(asset.KindModel, &fakeAsset{}, second); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if c.Owner(asset.KindModel, "rock") != second {
		t.Error("AddFile did not record the owner")
	}

	moved := models.NewFile(second.Path())
	if !c.SetOwner(asset.KindModel, "rock", moved) || c.Owner(asset.KindModel, "rock") != moved {
		t.Error("SetOwner did not rebind")
	}
	if c.SetOwner(asset.KindModel, "missing", moved) {
		t.Error("SetOwner on a missing key should report false")
	}

	if err := c.DeleteModel("rock"); err != nil {
		t.Fatal(err)
	}
	if c.Owner(asset.KindModel, "rock") != nil {
		t.Error("owner kept after delete")
	}

	c.ReleaseAll()
	if c.Owner(asset.KindModel, "stone") != nil {
		t.Error("owner kept after ReleaseAll")
	}
}

func TestLoadPak(t *testing.T) {
	dir := t.TempDir()
	folder := models.NewFolder(dir, nil)
	folder.AddFile(writeAsset(t, filepath.Join(dir, "a.m3d"), "MODELAAA"))
	folder.AddFile(writeAsset(t, filepath.Join(dir, "grass.png"), "PNG"))
	folder.AddFile(writeAsset(t, filepath.Join(dir, "main.lua"), "print()"))

	out := filepath.Join(t.TempDir(), "all.pak")
	if _, err := pak.CreatePakFile(context.Background(), folder, out); err != nil {
		t.Fatal(err)
	}
	r, err := pak.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	c := New()
	n, err := c.LoadPak(context.Background(), r, asset.RawLoader{})
	if err != nil {
		t.Fatalf("LoadPak: %v", err)
	}
	if n != 2 {
		t.Errorf("loaded %d, want 2", n)
	}
	if !c.ModelExists("a") || !c.TextureExists("grass") {
		t.Error("pak entries not cached")
	}
	if c.Owner(asset.KindModel, "a") != nil {
		t.Error("archive entries have no owning file")
	}
}
