package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"

	"tender-notifier/config"
)

// Open picks Postgres, then Cloud Storage, then the local filesystem.
// The returned func releases the backend's connections.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		pool, err := NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		pg, err := NewPostgres(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("Using Postgres storage")
		return pg, pool.Close, nil

	case cfg.Bucket != "":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create storage client: %w", err)
		}
		logger.Info("Using Cloud Storage", "bucket", cfg.Bucket)
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}
		return NewObjects(client, cfg.Bucket, "", logger), closeFn, nil

	case cfg.LocalPath != "":
		if err := os.MkdirAll(cfg.LocalPath, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create local storage directory: %w", err)
		}
		logger.Info("Running in local development mode", "storage_path", cfg.LocalPath)
		return NewObjects(nil, "", cfg.LocalPath, logger), func() {}, nil

	default:
		return nil, nil, errors.New("no storage backend configured")
	}
}
