package workspace

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/FlamingRiot/Uniray-sub000/internal/watcher"
	"github.com/FlamingRiot/Uniray-sub000/pkg/models"
)

// Watch polls the category directories until ctx is done and reloads the
// trees of categories changed outside the editor. Reloads are serialized
// with the other tree operations of the workspace. Units obtained before a
// reload are detached; look them up again by path.
func (w *Workspace) Watch(ctx context.Context) error {
	roots := make(map[string]string, len(models.Categories))
	for _, cat := range models.Categories {
		roots[string(cat)] = cat.Dir(w.root)
	}
	wt := watcher.New(roots, w.cfg.WatchInterval)
	if err := wt.Start(ctx); err != nil {
		return err
	}
	defer wt.Stop()

	events := wt.Subscribe()
	defer wt.Unsubscribe(events)

	w.logger.Info("watching project", zap.String("root", w.root))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			batch := append([]watcher.Event{ev}, drain(events)...)
			w.Apply(ctx, batch)
		}
	}
}

// drain returns the events already queued on ch.
func drain(ch <-chan watcher.Event) []watcher.Event {
	var out []watcher.Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

// Apply reloads every category touched by events and resynchronizes the
// resource cache with the new trees. It returns the reloaded categories.
func (w *Workspace) Apply(ctx context.Context, events []watcher.Event) []models.Category {
	w.ops.Lock()
	defer w.ops.Unlock()

	var reloaded []models.Category
	for _, name := range watcher.Categories(events) {
		cat, err := models.ParseCategory(name)
		if err != nil {
			continue
		}
		if err := w.files.Reload(ctx, cat); err != nil {
			w.logger.Warn("reload failed", zap.String("category", name), zap.Error(err))
			continue
		}
		w.syncCategory(cat)
		reloaded = append(reloaded, cat)
	}
	sort.Slice(reloaded, func(i, j int) bool { return reloaded[i] < reloaded[j] })
	if len(reloaded) > 0 {
		w.logger.Info("categories reloaded", zap.Int("events", len(events)), zap.Any("categories", reloaded))
	}
	return reloaded
}
