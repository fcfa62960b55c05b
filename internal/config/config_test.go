package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"UNIRAY_PROJECT_ROOT", "UNIRAY_MAX_SCAN_DEPTH", "UNIRAY_PAK_COMPRESSION_LEVEL",
		"UNIRAY_WATCH_INTERVAL", "PUBLISH_BACKEND", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.ProjectRoot != "." {
		t.Errorf("expected project root ., got %s", cfg.ProjectRoot)
	}
	if cfg.MaxScanDepth != 64 {
		t.Errorf("expected max depth 64, got %d", cfg.MaxScanDepth)
	}
	if cfg.PakCompressionLevel != -1 {
		t.Errorf("expected default compression level -1, got %d", cfg.PakCompressionLevel)
	}
	if cfg.WatchInterval != 2*time.Second {
		t.Errorf("expected watch interval 2s, got %s", cfg.WatchInterval)
	}
	if cfg.LogFormat != "console" {
		t.Errorf("expected console log format, got %s", cfg.LogFormat)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("UNIRAY_PROJECT_ROOT", "/srv/game")
	t.Setenv("UNIRAY_PAK_COMPRESSION_LEVEL", "9")
	t.Setenv("UNIRAY_PAK_RECURSIVE", "true")
	t.Setenv("UNIRAY_WATCH_INTERVAL", "500ms")
	t.Setenv("PUBLISH_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "builds")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.ProjectRoot != "/srv/game" || cfg.PakCompressionLevel != 9 || !cfg.PakRecursive {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.WatchInterval != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %s", cfg.WatchInterval)
	}
	if cfg.BuildPath() != filepath.Join("/srv/game", "build") {
		t.Errorf("BuildPath = %s", cfg.BuildPath())
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"compression level", map[string]string{"UNIRAY_PAK_COMPRESSION_LEVEL": "12"}},
		{"depth", map[string]string{"UNIRAY_MAX_SCAN_DEPTH": "0"}},
		{"s3 without bucket", map[string]string{"PUBLISH_BACKEND": "s3", "S3_BUCKET": ""}},
		{"local without path", map[string]string{"PUBLISH_BACKEND": "local", "PUBLISH_LOCAL_PATH": ""}},
		{"unknown backend", map[string]string{"PUBLISH_BACKEND": "ftp"}},
		{"publish attempts", map[string]string{"PUBLISH_ATTEMPTS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
