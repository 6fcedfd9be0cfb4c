package storage

import (
	"context"
	"fmt"

	"github.com/neexbeast/parkwait/internal/config"
)

// Open creates the DocumentStore selected by cfg.Type.
func Open(ctx context.Context, cfg config.StorageConfig) (DocumentStore, error) {
	switch cfg.Type {
	case config.StoragePostgres:
		s, err := OpenPostgres(ctx, cfg.DatabaseURL, cfg.MigrationsDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageMongo:
		s, err := NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
