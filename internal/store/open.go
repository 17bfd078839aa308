package store

import (
	"context"
	"fmt"

	"github.com/dyluth/rota/internal/config"
)

// Open constructs the store selected by cfg.Backend.
// The redis backend is pinged so that a bad URL fails at startup rather than on first request.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendFile, "":
		s, err := NewFileStore(cfg.CSVPath)
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.BackendRedis:
		s, err := NewRedisStoreFromURL(cfg.RedisURL, cfg.Namespace)
		if err != nil {
			return nil, err
		}
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("redis not accessible at %s: %w", cfg.RedactedRedisURL(), err)
		}
		return s, nil

	case config.BackendSQLite:
		s, err := NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}
