package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setupRoots(t *testing.T) (models, textures string) {
	t.Helper()
	base := t.TempDir()
	models = filepath.Join(base, "models")
	textures = filepath.Join(base, "textures")
	for _, dir := range []string{models, textures} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create dir: %v", err)
		}
	}
	return models, textures
}

func TestWatcher_CreateEvent(t *testing.T) {
	models, textures := setupRoots(t)
	if err := os.WriteFile(filepath.Join(models, "rock.m3d"), []byte("rock"), 0644); err != nil {
		t.Fatalf("Failed to create initial file: %v", err)
	}

	w := New(map[string]string{"models": models, "textures": textures}, 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	defer w.Stop()

	events := w.Subscribe()
	defer w.Unsubscribe(events)

	if err := os.WriteFile(filepath.Join(textures, "grass.png"), []byte("png"), 0644); err != nil {
		t.Fatalf("Failed to create new file: %v", err)
	}

	select {
	case event := <-events:
		if event.Type != EventCreate {
			t.Errorf("Expected create event, got %s", event.Type)
		}
		if event.Category != "textures" || event.Path != "/grass.png" {
			t.Errorf("Expected textures:/grass.png, got %s:%s", event.Category, event.Path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for create event")
	}
}

func TestWatcher_CheckReportsChanges(t *testing.T) {
	models, _ := setupRoots(t)
	modified := filepath.Join(models, "tree.obj")
	deleted := filepath.Join(models, "old.obj")
	for _, p := range []string{modified, deleted} {
		if err := os.WriteFile(p, []byte("v"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	w := New(map[string]string{"models": models}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(modified, later, later); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(deleted); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(models, "rocks"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(models, ".swap"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	events := w.Check()
	want := map[string]string{
		"/old.obj":  EventDelete,
		"/rocks":    EventCreate,
		"/tree.obj": EventModify,
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events (%v), want %d", len(events), events, len(want))
	}
	for _, e := range events {
		if want[e.Path] != e.Type {
			t.Errorf("event %s %s unexpected", e.Type, e.Path)
		}
	}

	if again := w.Check(); len(again) != 0 {
		t.Errorf("second Check reported %v", again)
	}
}

func TestWatcher_MultipleSubscribers(t *testing.T) {
	models, _ := setupRoots(t)
	w := New(map[string]string{"models": models}, 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	defer w.Stop()

	sub1 := w.Subscribe()
	sub2 := w.Subscribe()
	defer w.Unsubscribe(sub1)
	defer w.Unsubscribe(sub2)

	if err := os.WriteFile(filepath.Join(models, "multi.obj"), []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	received := 0
	timeout := time.After(2 * time.Second)
	for received < 2 {
		select {
		case <-sub1:
			received++
		case <-sub2:
			received++
		case <-timeout:
			t.Fatalf("Timeout: only %d subscribers received event", received)
		}
	}
}

func TestCategories(t *testing.T) {
	events := []Event{
		{Category: "textures"},
		{Category: "models"},
		{Category: "textures"},
	}
	got := Categories(events)
	if len(got) != 2 || got[0] != "textures" || got[1] != "models" {
		t.Errorf("Categories = %v", got)
	}
}

func TestStopTwice(t *testing.T) {
	w := New(nil, time.Second)
	w.Stop()
	w.Stop()
}
