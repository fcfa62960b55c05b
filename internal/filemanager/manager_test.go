package filemanager

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FlamingRiot/Uniray-sub000/internal/storage/local"
	"github.com/FlamingRiot/Uniray-sub000/pkg/models"
	"github.com/FlamingRiot/Uniray-sub000/pkg/tree"
)

// failingBackend wraps a real backend and fails selected operations.
type failingBackend struct {
	*local.LocalBackend
	failRename bool
	failRemove bool
	calls      []string
}

func (f *failingBackend) Rename(ctx context.Context, src, dst string) error {
	f.calls = append(f.calls, "rename "+src+" "+dst)
	if f.failRename {
		return &os.LinkError{Op: "rename", Old: src, New: dst, Err: fs.ErrPermission}
	}
	return f.LocalBackend.Rename(ctx, src, dst)
}

func (f *failingBackend) RemoveAll(ctx context.Context, key string) error {
	f.calls = append(f.calls, "remove "+key)
	if f.failRemove {
		return &fs.PathError{Op: "remove", Path: key, Err: fs.ErrPermission}
	}
	return f.LocalBackend.RemoveAll(ctx, key)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// setupProject creates a small project and returns an initialized manager.
func setupProject(t *testing.T, opts ...Option) (*Manager, *failingBackend, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "assets/models/rock.m3d"), "rock")
	writeFile(t, filepath.Join(dir, "assets/models/trees/oak.obj"), "oak")
	writeFile(t, filepath.Join(dir, "assets/models/trees/pine.obj"), "pine")
	writeFile(t, filepath.Join(dir, "assets/models/.hidden"), "x")
	writeFile(t, filepath.Join(dir, "assets/textures/rock.png"), "png")

	lb, err := local.New(local.Config{RootPath: dir, CreateDirs: true})
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	backend := &failingBackend{LocalBackend: lb}
	m := New(backend, opts...)
	if err := m.Init(context.Background(), "."); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return m, backend, dir
}

func TestInitLoadsTrees(t *testing.T) {
	m, _, dir := setupProject(t)

	modelsRoot := m.Root(models.CategoryModels)
	if modelsRoot == nil {
		t.Fatal("models root missing")
	}
	// rock.m3d, trees/, oak.obj, pine.obj
	if got := tree.CountNodes(modelsRoot) - 1; got != 4 {
		t.Errorf("models tree has %d units, want 4", got)
	}
	if modelsRoot.Child(".hidden") != nil {
		t.Error("hidden entry was loaded")
	}
	for _, cat := range models.Categories {
		if _, err := os.Stat(filepath.Join(dir, "assets", string(cat))); err != nil {
			t.Errorf("category dir %s not created: %v", cat, err)
		}
		if err := tree.Validate(m.Root(cat)); err != nil {
			t.Errorf("Validate(%s): %v", cat, err)
		}
	}
	if m.Current() != modelsRoot {
		t.Error("cursor should start at the models root")
	}
}

func TestFindAndCategoryOf(t *testing.T) {
	m, _, dir := setupProject(t)

	p := models.NormalizePath(filepath.Join(dir, "assets/models/trees/oak.obj"))
	u := m.Find(p)
	if u == nil {
		t.Fatalf("Find(%s) = nil", p)
	}
	if u.Name() != "oak" || u.Upstream().Name() != "trees" {
		t.Errorf("found %s with upstream %s", u.Name(), u.Upstream().Name())
	}
	if cat, ok := m.CategoryOf(u); !ok || cat != models.CategoryModels {
		t.Errorf("CategoryOf = %v, %v", cat, ok)
	}
	if m.Find(filepath.Join(dir, "assets/models/missing.obj")) != nil {
		t.Error("Find of a missing path should return nil")
	}
}

func TestRenameEmptyIsNoop(t *testing.T) {
	m, backend, _ := setupProject(t)
	rock := m.Root(models.CategoryModels).Child("rock.m3d")

	for _, name := range []string{"", "rock"} {
		if err := m.Rename(context.Background(), rock, name); err != nil {
			t.Errorf("Rename(%q): %v", name, err)
		}
	}
	if len(backend.calls) != 0 {
		t.Errorf("no physical operation expected, got %v", backend.calls)
	}
	if rock.Name() != "rock" {
		t.Errorf("name = %s, want rock", rock.Name())
	}
}

func TestRenameFileKeepsExtension(t *testing.T) {
	m, _, dir := setupProject(t)
	rock := m.Root(models.CategoryModels).Child("rock.m3d").(*models.File)

	if err := m.Rename(context.Background(), rock, "stone"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if rock.FullName() != "stone.m3d" {
		t.Errorf("FullName = %s, want stone.m3d", rock.FullName())
	}
	if _, err := os.Stat(filepath.Join(dir, "assets/models/stone.m3d")); err != nil {
		t.Errorf("renamed file missing on disk: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "assets/models/rock.m3d")); !os.IsNotExist(err) {
		t.Error("old file still on disk")
	}
}

func TestTrailingDotFileMoves(t *testing.T) {
	m, _, dir := setupProject(t)
	writeFile(t, filepath.Join(dir, "assets/models/foo."), "dot")
	if err := m.Reload(context.Background(), models.CategoryModels); err != nil {
		t.Fatal(err)
	}
	root := m.Root(models.CategoryModels)
	f, ok := root.Child("foo.").(*models.File)
	if !ok {
		t.Fatal("foo. not loaded")
	}
	trees := root.Child("trees").(*models.Folder)

	if err := m.Move(context.Background(), f, trees); err != nil {
		t.Fatalf("Move: %v", err)
	}
	want := models.NormalizePath(filepath.Join(dir, "assets/models/trees/foo."))
	if f.Path() != want {
		t.Errorf("path = %s, want %s", f.Path(), want)
	}
	if _, err := os.Stat(filepath.Join(dir, "assets/models/trees/foo.")); err != nil {
		t.Errorf("moved file missing on disk: %v", err)
	}
}

func TestFilesSnapshot(t *testing.T) {
	m, _, _ := setupProject(t)
	var names []string
	for _, f := range m.Files(models.CategoryModels) {
		names = append(names, f.FullName())
	}
	if len(names) != 3 {
		t.Errorf("Files(models) = %v, want rock, oak and pine", names)
	}
	if m.Files("bogus") != nil {
		t.Error("unknown category should have no files")
	}
}

func TestRenameFolderUpdatesDescendants(t *testing.T) {
	m, _, _ := setupProject(t)
	root := m.Root(models.CategoryModels)
	trees := root.Child("trees").(*models.Folder)

	if err := m.Rename(context.Background(), trees, "forest"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	for _, f := range trees.Files() {
		if !strings.HasPrefix(f.Path(), trees.Path()+"/") {
			t.Errorf("%s does not start with %s/", f.Path(), trees.Path())
		}
	}
	if err := tree.Validate(root); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestRenameRejectsInvalidNames(t *testing.T) {
	m, _, _ := setupProject(t)
	rock := m.Root(models.CategoryModels).Child("rock.m3d")

	for _, name := range []string{"a/b", `a\b`, ".", ".."} {
		if err := m.Rename(context.Background(), rock, name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Rename(%q) error = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestRenameCollisionIsRejected(t *testing.T) {
	m, _, dir := setupProject(t)
	trees := m.Root(models.CategoryModels).Child("trees").(*models.Folder)
	oak := trees.Child("oak.obj")

	if err := m.Rename(context.Background(), oak, "pine"); !errors.Is(err, ErrExists) {
		t.Fatalf("Rename onto sibling error = %v, want ErrExists", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "assets/models/trees/pine.obj"))
	if string(data) != "pine" {
		t.Error("sibling was overwritten")
	}
}

func TestPhysicalFailureLeavesTreeUntouched(t *testing.T) {
	m, backend, _ := setupProject(t)
	root := m.Root(models.CategoryModels)
	rock := root.Child("rock.m3d")
	trees := root.Child("trees").(*models.Folder)
	backend.failRename = true
	backend.failRemove = true

	err := m.Rename(context.Background(), rock, "stone")
	if !errors.Is(err, ErrPhysicalIO) || !errors.Is(err, fs.ErrPermission) {
		t.Fatalf("Rename error = %v, want ErrPhysicalIO wrapping ErrPermission", err)
	}
	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Op != "rename" {
		t.Errorf("error is not a rename OpError: %v", err)
	}
	if rock.Name() != "rock" {
		t.Errorf("name changed to %s after failed rename", rock.Name())
	}

	if err := m.Move(context.Background(), rock, trees); !errors.Is(err, ErrPhysicalIO) {
		t.Errorf("Move error = %v, want ErrPhysicalIO", err)
	}
	if rock.Upstream() != root {
		t.Error("unit was moved after failed physical move")
	}

	if err := m.Delete(context.Background(), trees); !errors.Is(err, ErrPhysicalIO) {
		t.Errorf("Delete error = %v, want ErrPhysicalIO", err)
	}
	if root.Child("trees") == nil {
		t.Error("folder detached after failed physical delete")
	}
}

func TestMove(t *testing.T) {
	m, _, dir := setupProject(t)
	root := m.Root(models.CategoryModels)
	rock := root.Child("rock.m3d")
	trees := root.Child("trees").(*models.Folder)

	if err := m.Move(context.Background(), rock, trees); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if rock.Upstream() != trees || root.Child("rock.m3d") != nil {
		t.Error("tree not updated after move")
	}
	if _, err := os.Stat(filepath.Join(dir, "assets/models/trees/rock.m3d")); err != nil {
		t.Errorf("moved file missing on disk: %v", err)
	}
	if err := tree.Validate(root); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestMoveRejections(t *testing.T) {
	m, backend, _ := setupProject(t)
	ctx := context.Background()
	root := m.Root(models.CategoryModels)
	trees := root.Child("trees").(*models.Folder)

	sub, err := m.CreateFolder(ctx, trees, "conifers")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	backend.calls = nil

	if err := m.Move(ctx, trees, trees); !errors.Is(err, ErrInvalidMove) {
		t.Errorf("move into itself error = %v", err)
	}
	if err := m.Move(ctx, trees, sub); !errors.Is(err, ErrInvalidMove) {
		t.Errorf("move into descendant error = %v", err)
	}
	if err := m.Move(ctx, root, trees); !errors.Is(err, ErrRootUnit) {
		t.Errorf("move root error = %v", err)
	}

	// a second rock.m3d in trees collides with the one at the root
	if _, err := m.CreateFile(ctx, trees, "rock.m3d", strings.NewReader("other")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	backend.calls = nil
	if err := m.Move(ctx, root.Child("rock.m3d"), trees); !errors.Is(err, ErrExists) {
		t.Errorf("move onto existing entry error = %v", err)
	}
	if len(backend.calls) != 0 {
		t.Errorf("rejected moves reached the filesystem: %v", backend.calls)
	}
}

func TestCreateAndImport(t *testing.T) {
	m, _, dir := setupProject(t)
	ctx := context.Background()
	textures := m.Root(models.CategoryTextures)

	folder, err := m.CreateFolder(ctx, textures, "terrain")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if folder.Upstream() != textures {
		t.Error("new folder not attached to parent")
	}
	if _, err := m.CreateFolder(ctx, textures, "terrain"); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate CreateFolder error = %v", err)
	}

	src := filepath.Join(t.TempDir(), "grass.png")
	writeFile(t, src, "grass")
	file, err := m.Import(ctx, folder, src)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if file.FullName() != "grass.png" || file.Upstream() != folder {
		t.Errorf("imported file = %s (upstream %v)", file.FullName(), file.Upstream())
	}
	data, err := os.ReadFile(filepath.Join(dir, "assets/textures/terrain/grass.png"))
	if err != nil || string(data) != "grass" {
		t.Errorf("imported content = %q, %v", data, err)
	}
}

func TestDeleteMovesCursorToParent(t *testing.T) {
	m, _, dir := setupProject(t)
	root := m.Root(models.CategoryModels)
	trees := root.Child("trees").(*models.Folder)

	if err := m.Open(trees); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Delete(context.Background(), trees); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if m.Current() != root {
		t.Error("cursor did not fall back to the parent")
	}
	if _, err := os.Stat(filepath.Join(dir, "assets/models/trees")); !os.IsNotExist(err) {
		t.Error("folder still on disk")
	}
	if err := m.Delete(context.Background(), root); !errors.Is(err, ErrRootUnit) {
		t.Errorf("Delete(root) error = %v, want ErrRootUnit", err)
	}
}

func TestNavigation(t *testing.T) {
	m, _, _ := setupProject(t)
	root := m.Root(models.CategoryModels)
	trees := root.Child("trees").(*models.Folder)

	m.BackFolder()
	if m.Current() != root {
		t.Error("BackFolder at root should be a no-op")
	}
	m.Open(trees)
	m.BackFolder()
	if m.Current() != root {
		t.Error("BackFolder did not move to upstream")
	}
	if err := m.Select(models.CategorySounds); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if m.Current() != m.Root(models.CategorySounds) {
		t.Error("Select did not move the cursor")
	}
	if err := m.Open(models.NewFolder("/elsewhere", nil)); !errors.Is(err, ErrNotManaged) {
		t.Errorf("Open(unmanaged) error = %v", err)
	}
}

func TestReloadKeepsCursor(t *testing.T) {
	m, _, dir := setupProject(t)
	trees := m.Root(models.CategoryModels).Child("trees").(*models.Folder)
	m.Open(trees)

	writeFile(t, filepath.Join(dir, "assets/models/trees/birch.obj"), "birch")
	if err := m.Reload(context.Background(), models.CategoryModels); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	cur := m.Current()
	if cur == trees {
		t.Fatal("cursor still points into the old tree")
	}
	if cur.Path() != trees.Path() {
		t.Errorf("cursor path = %s, want %s", cur.Path(), trees.Path())
	}
	if cur.Child("birch.obj") == nil {
		t.Error("reloaded tree is missing the new file")
	}
}

func TestMaxDepthBoundsRecursion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "assets/models/a/b/c/deep.obj"), "x")

	lb, err := local.New(local.Config{RootPath: dir, CreateDirs: true})
	if err != nil {
		t.Fatal(err)
	}
	m := New(lb, WithMaxDepth(2))
	if err := m.Init(context.Background(), dir); err != nil {
		t.Fatalf("Init: %v", err)
	}

	a := m.Root(models.CategoryModels).Child("a").(*models.Folder)
	b, ok := a.Child("b").(*models.Folder)
	if !ok {
		t.Fatal("folder at depth 2 should be loaded")
	}
	if b.Child("c") != nil {
		t.Error("folder beyond max depth should be skipped")
	}
}

func TestSymlinkCycleIsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "assets/models/loop/m.obj"), "x")
	if err := os.Symlink(filepath.Join(dir, "assets/models/loop"), filepath.Join(dir, "assets/models/loop/self")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	lb, err := local.New(local.Config{RootPath: dir, CreateDirs: true})
	if err != nil {
		t.Fatal(err)
	}
	m := New(lb)
	if err := m.Init(context.Background(), dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	loop := m.Root(models.CategoryModels).Child("loop").(*models.Folder)
	if loop.Child("self") != nil {
		t.Error("cyclic symlink should not be loaded")
	}
	if loop.Child("m.obj") == nil {
		t.Error("regular file missing")
	}
}
