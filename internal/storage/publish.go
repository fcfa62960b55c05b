package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/FlamingRiot/Uniray-sub000/internal/logging"
	"github.com/FlamingRiot/Uniray-sub000/internal/metrics"
	"github.com/FlamingRiot/Uniray-sub000/pkg/retry"
)

// ManifestName is the object written under the publish prefix that records
// what the last successful publish uploaded.
const ManifestName = "manifest.json"

// ManifestEntry describes one published artifact.
type ManifestEntry struct {
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Manifest maps artifact base names to their published size and digest.
type Manifest struct {
	Artifacts map[string]ManifestEntry `json:"artifacts"`
}

// PublishResult lists the keys touched by PublishFiles.
type PublishResult struct {
	Uploaded  []string
	Unchanged []string
	Removed   []string
}

type publishOptions struct {
	retry retry.Config
}

// PublishOption configures PublishFile and PublishFiles.
type PublishOption func(*publishOptions)

// WithRetry sets the retry policy for uploads.
func WithRetry(cfg retry.Config) PublishOption {
	return func(o *publishOptions) { o.retry = cfg }
}

func buildPublishOptions(opts []PublishOption) publishOptions {
	o := publishOptions{retry: retry.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// PublishFile uploads the local file at localPath to key. Failed uploads
// are retried; a missing local file is not.
func PublishFile(ctx context.Context, b Backend, key, localPath string, opts ...PublishOption) error {
	return publishFile(ctx, b, key, localPath, buildPublishOptions(opts))
}

func publishFile(ctx context.Context, b Backend, key, localPath string, o publishOptions) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}
	return put(ctx, b, key, f, info.Size(), o)
}

// put uploads body to key, rewinding it before every retry.
func put(ctx context.Context, b Backend, key string, body io.ReadSeeker, size int64, o publishOptions) error {
	start := time.Now()
	err := retry.Do(ctx, o.retry, func(attempt int) error {
		if attempt > 1 {
			if _, err := body.Seek(0, io.SeekStart); err != nil {
				return err
			}
			logging.Debug("retrying upload", zap.String("key", key), zap.Int("attempt", attempt))
		}
		err := b.PutObject(ctx, key, body, size)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return retry.Retryable(err)
		}
		return err
	})
	if err != nil {
		metrics.RecordPublishOperation(b.Type(), "put", time.Since(start), 0, false)
		return fmt.Errorf("publish %s: %w", key, err)
	}
	metrics.RecordPublishOperation(b.Type(), "put", time.Since(start), size, true)

	logging.Debug("published artifact",
		zap.String("backend", b.Type()),
		zap.String("key", key),
		zap.Int64("size", size))
	return nil
}

// PublishFiles uploads every file to prefix/<base name> and records them in
// prefix/manifest.json. Artifacts whose size and digest match the previous
// manifest and that still exist on the backend are skipped. Keys listed in
// the previous manifest but not among localPaths are deleted. On failure
// the previous manifest is left in place and the result lists the keys
// handled so far.
func PublishFiles(ctx context.Context, b Backend, prefix string, localPaths []string, opts ...PublishOption) (*PublishResult, error) {
	o := buildPublishOptions(opts)
	res := &PublishResult{}

	prev, err := ReadManifest(ctx, b, prefix)
	if err != nil {
		return res, err
	}
	next := Manifest{Artifacts: make(map[string]ManifestEntry, len(localPaths))}

	for _, p := range localPaths {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name := filepath.Base(p)
		key := path.Join(prefix, name)
		entry, err := digestFile(p)
		if err != nil {
			return res, err
		}
		next.Artifacts[name] = entry

		if old, ok := prev.Artifacts[name]; ok && old == entry {
			exists, err := b.ObjectExists(ctx, key)
			if err != nil {
				return res, fmt.Errorf("check %s: %w", key, err)
			}
			if exists {
				res.Unchanged = append(res.Unchanged, key)
				continue
			}
		}
		if err := publishFile(ctx, b, key, p, o); err != nil {
			return res, err
		}
		res.Uploaded = append(res.Uploaded, key)
	}

	stale := make([]string, 0, len(prev.Artifacts))
	for name := range prev.Artifacts {
		if _, ok := next.Artifacts[name]; !ok {
			stale = append(stale, name)
		}
	}
	sort.Strings(stale)
	for _, name := range stale {
		key := path.Join(prefix, name)
		start := time.Now()
		if err := b.DeleteObject(ctx, key); err != nil {
			metrics.RecordPublishOperation(b.Type(), "delete", time.Since(start), 0, false)
			return res, fmt.Errorf("remove stale %s: %w", key, err)
		}
		metrics.RecordPublishOperation(b.Type(), "delete", time.Since(start), 0, true)
		res.Removed = append(res.Removed, key)
	}

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return res, fmt.Errorf("encode manifest: %w", err)
	}
	if err := put(ctx, b, path.Join(prefix, ManifestName), bytes.NewReader(data), int64(len(data)), o); err != nil {
		return res, err
	}
	return res, nil
}

// ReadManifest returns the manifest stored under prefix. A missing manifest
// yields an empty one. A manifest that does not decode is logged and
// treated as missing so the next publish uploads everything.
func ReadManifest(ctx context.Context, b Backend, prefix string) (Manifest, error) {
	m := Manifest{Artifacts: map[string]ManifestEntry{}}
	key := path.Join(prefix, ManifestName)

	exists, err := b.ObjectExists(ctx, key)
	if err != nil {
		return m, fmt.Errorf("check %s: %w", key, err)
	}
	if !exists {
		return m, nil
	}

	rc, _, err := b.GetObject(ctx, key, 0, 0)
	if err != nil {
		return m, fmt.Errorf("read %s: %w", key, err)
	}
	defer rc.Close()

	var decoded Manifest
	if err := json.NewDecoder(rc).Decode(&decoded); err != nil {
		logging.Error("ignoring unreadable publish manifest", zap.String("key", key), zap.Error(err))
		return m, nil
	}
	for name, e := range decoded.Artifacts {
		m.Artifacts[name] = e
	}
	return m, nil
}

func digestFile(p string) (ManifestEntry, error) {
	f, err := os.Open(p)
	if err != nil {
		return ManifestEntry{}, fmt.Errorf("open %s: %w", p, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return ManifestEntry{}, fmt.Errorf("hash %s: %w", p, err)
	}
	return ManifestEntry{Size: n, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}
