// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Config holds the editor asset core configuration.
type Config struct {
	// Project
	ProjectRoot string
	BuildDir    string

	// Logging
	LogLevel  string
	LogFormat string

	// Metrics (empty disables the /metrics listener)
	MetricsAddr string

	// Filesystem synchronizer
	MaxScanDepth  int
	WatchInterval time.Duration

	// Archives
	PakCompressionLevel int
	PakRecursive        bool

	// Scenes
	DatPassphrase   string
	LegacySceneJSON bool

	// Publishing of build artifacts ("", "local" or "s3")
	PublishBackend   string
	PublishLocalPath string
	PublishAttempts  int

	// S3 publish target
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ProjectRoot:         envOr("UNIRAY_PROJECT_ROOT", "."),
		BuildDir:            envOr("UNIRAY_BUILD_DIR", "build"),
		LogLevel:            envOr("LOG_LEVEL", "info"),
		LogFormat:           envOr("LOG_FORMAT", "console"),
		MetricsAddr:         envOr("METRICS_ADDR", ""),
		MaxScanDepth:        envInt("UNIRAY_MAX_SCAN_DEPTH", 64),
		WatchInterval:       envDuration("UNIRAY_WATCH_INTERVAL", 2*time.Second),
		PakCompressionLevel: envInt("UNIRAY_PAK_COMPRESSION_LEVEL", gzip.DefaultCompression),
		PakRecursive:        envBool("UNIRAY_PAK_RECURSIVE", false),
		DatPassphrase:       envOr("UNIRAY_DAT_PASSPHRASE", ""),
		LegacySceneJSON:     envBool("UNIRAY_LEGACY_SCENE_JSON", false),
		PublishBackend:      envOr("PUBLISH_BACKEND", ""),
		PublishLocalPath:    envOr("PUBLISH_LOCAL_PATH", ""),
		PublishAttempts:     envInt("PUBLISH_ATTEMPTS", 3),
		S3Endpoint:          envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:            envOr("S3_BUCKET", ""),
		S3AccessKey:         envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:         envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:            envOr("S3_REGION", "us-east-1"),
		S3UseSSL:            envBool("S3_USE_SSL", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and backend requirements.
func (c *Config) Validate() error {
	if c.ProjectRoot == "" {
		return fmt.Errorf("UNIRAY_PROJECT_ROOT must not be empty")
	}
	if c.MaxScanDepth <= 0 {
		return fmt.Errorf("UNIRAY_MAX_SCAN_DEPTH must be positive, got %d", c.MaxScanDepth)
	}
	if c.PakCompressionLevel < gzip.HuffmanOnly || c.PakCompressionLevel > gzip.BestCompression {
		return fmt.Errorf("UNIRAY_PAK_COMPRESSION_LEVEL must be between %d and %d, got %d",
			gzip.HuffmanOnly, gzip.BestCompression, c.PakCompressionLevel)
	}
	if c.WatchInterval <= 0 {
		return fmt.Errorf("UNIRAY_WATCH_INTERVAL must be positive")
	}
	if c.PublishAttempts < 1 {
		return fmt.Errorf("PUBLISH_ATTEMPTS must be at least 1, got %d", c.PublishAttempts)
	}
	switch c.PublishBackend {
	case "":
	case "local":
		if c.PublishLocalPath == "" {
			return fmt.Errorf("PUBLISH_LOCAL_PATH is required for the local publish backend")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 publish backend")
		}
	default:
		return fmt.Errorf("unknown PUBLISH_BACKEND: %q", c.PublishBackend)
	}
	return nil
}

// BuildPath returns the absolute build output directory.
func (c *Config) BuildPath() string {
	if filepath.IsAbs(c.BuildDir) {
		return c.BuildDir
	}
	return filepath.Join(c.ProjectRoot, c.BuildDir)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
