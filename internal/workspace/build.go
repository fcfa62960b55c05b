package workspace

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/FlamingRiot/Uniray-sub000/internal/dat"
	"github.com/FlamingRiot/Uniray-sub000/internal/pak"
	"github.com/FlamingRiot/Uniray-sub000/internal/storage"
	"github.com/FlamingRiot/Uniray-sub000/pkg/models"
	"github.com/FlamingRiot/Uniray-sub000/pkg/retry"
)

// BuildReport describes the artifacts of a build.
type BuildReport struct {
	OutDir    string
	Paks      []*pak.Summary
	Scenes    []string
	Published *storage.PublishResult
	Duration  time.Duration
}

// Artifacts returns the paths of every file the build wrote.
func (r *BuildReport) Artifacts() []string {
	paths := make([]string, 0, len(r.Paks)+len(r.Scenes))
	for _, p := range r.Paks {
		paths = append(paths, p.Path)
	}
	return append(paths, r.Scenes...)
}

// Build packs each asset category into <outDir>/<category>.pak and writes
// every scene to <outDir>/<scene>.DAT. An empty outDir uses the configured
// build directory. When a publish backend is configured the artifacts are
// published under the project name; unchanged ones are skipped and ones no
// longer built are removed.
func (w *Workspace) Build(ctx context.Context, outDir string) (*BuildReport, error) {
	w.ops.Lock()
	defer w.ops.Unlock()

	start := time.Now()
	if outDir == "" {
		outDir = w.cfg.BuildPath()
	}
	report := &BuildReport{OutDir: outDir}

	pakOpts := []pak.Option{
		pak.WithLevel(w.cfg.PakCompressionLevel),
		pak.WithLogger(w.logger.Named("pak")),
	}
	if w.cfg.PakRecursive {
		pakOpts = append(pakOpts, pak.WithRecursive())
	}
	for _, cat := range models.Categories {
		root := w.files.Root(cat)
		if root == nil {
			continue
		}
		sum, err := pak.CreatePakFile(ctx, root, filepath.Join(outDir, string(cat)+".pak"), pakOpts...)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", cat, err)
		}
		report.Paks = append(report.Paks, sum)
	}

	for _, s := range w.Project().Scenes {
		p := filepath.Join(outDir, s.Name+".DAT")
		if err := dat.WriteFile(ctx, s, p, w.datOptions()...); err != nil {
			return nil, fmt.Errorf("write scene %s: %w", s.Name, err)
		}
		report.Scenes = append(report.Scenes, p)
	}

	if w.publisher != nil {
		policy := retry.DefaultConfig()
		policy.MaxAttempts = max(w.cfg.PublishAttempts, 1)
		res, err := storage.PublishFiles(ctx, w.publisher, w.Project().Name, report.Artifacts(), storage.WithRetry(policy))
		report.Published = res
		if err != nil {
			return report, fmt.Errorf("publish: %w", err)
		}
	}

	report.Duration = time.Since(start)
	fields := []zap.Field{
		zap.String("out", outDir),
		zap.Int("paks", len(report.Paks)),
		zap.Int("scenes", len(report.Scenes)),
		zap.Duration("duration", report.Duration),
	}
	if p := report.Published; p != nil {
		fields = append(fields,
			zap.Int("uploaded", len(p.Uploaded)),
			zap.Int("unchanged", len(p.Unchanged)),
			zap.Int("removed", len(p.Removed)))
	}
	w.logger.Info("project built", fields...)
	return report, nil
}
