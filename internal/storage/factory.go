package storage

import (
	"context"
	"fmt"

	"github.com/FlamingRiot/Uniray-sub000/internal/config"
	"github.com/FlamingRiot/Uniray-sub000/internal/storage/local"
	s3backend "github.com/FlamingRiot/Uniray-sub000/internal/storage/s3"
)

// NewPublisherFromConfig creates the publish Backend selected by
// cfg.PublishBackend. It returns nil, nil when publishing is disabled.
func NewPublisherFromConfig(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.PublishBackend {
	case "":
		return nil, nil
	case "local":
		return local.New(local.Config{
			RootPath:   cfg.PublishLocalPath,
			CreateDirs: true,
		})
	case "s3":
		return s3backend.NewBackend(ctx, s3backend.BackendConfig{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.PublishBackend)
	}
}
