package storage

import (
	"context"
	"fmt"

	"pulse-analytics/internal/config"
)

// NewFromConfig constructs the configured backend variant. The returned
// handle is process-wide: built once at startup, closed on shutdown.
func NewFromConfig(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	case config.BackendClickHouse:
		return NewClickHouseStore(ctx, ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
}
