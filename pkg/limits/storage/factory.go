package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"mercator-hq/turnstile/pkg/config"
)

// Backend names accepted by config.JournalConfig.Backend.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Open creates the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.JournalConfig) (Backend, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryBackend(0), nil

	case BackendSQLite:
		backend, err := NewSQLiteBackendWithConfig(SQLiteBackendConfig{
			DBPath:      cfg.SQLite.Path,
			Driver:      cfg.SQLite.Driver,
			BusyTimeout: cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, err
		}
		return backend, nil

	case BackendRedis:
		backend, err := DialRedis(ctx,
			&redis.Options{
				Addr:     cfg.Redis.Address,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			},
			WithRedisPrefix(cfg.Redis.Prefix),
			WithRedisTTL(cfg.Redis.TTL),
			WithRedisTrackKeys(cfg.Redis.TrackKeys),
		)
		if err != nil {
			return nil, err
		}
		return backend, nil

	default:
		return nil, fmt.Errorf("unknown journal backend %q", cfg.Backend)
	}
}
