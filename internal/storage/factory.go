package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/lookalike/internal/config"
)

// NewStore creates the store selected by cfg.Type: "sqlite" (default), "mongo", or "memory".
// dimensions > 0 is enforced on every write.
func NewStore(ctx context.Context, cfg *config.StoreConfig, dimensions int, logger *zap.Logger) (ReadWriter, error) {
	switch cfg.Type {
	case TypeSQLite, "":
		return NewSQLiteStore(cfg.DatabasePath, dimensions, logger)
	case TypeMongo:
		return NewMongoStore(ctx, MongoOptions{
			URI:            cfg.MongoURI,
			Database:       cfg.MongoDatabase,
			Collection:     cfg.MongoCollection,
			ConnectTimeout: cfg.ConnectTimeout,
			Dimensions:     dimensions,
		}, logger)
	case TypeMemory:
		return NewMemoryStore(dimensions), nil
	default:
		return nil, fmt.Errorf("unknown store type: %s (supported: sqlite, mongo, memory)", cfg.Type)
	}
}
