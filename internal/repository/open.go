package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/thraizz/oath-server-go/internal/config"
	"github.com/thraizz/oath-server-go/internal/repository/sqlite"
)

// ChecksumStore is a store that also reports the checksum each snapshot was
// saved with.
type ChecksumStore interface {
	SnapshotStore
	Checksum(ctx context.Context, gameID string) (string, error)
}

var (
	_ ChecksumStore = (*SnapshotRepository)(nil)
	_ ChecksumStore = (*RedisSnapshots)(nil)
	_ ChecksumStore = (*MemorySnapshots)(nil)
	_ ChecksumStore = (*sqlite.Store)(nil)
)

// Open builds the store named by cfg.Storage.Driver. The returned func
// releases its connections.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ChecksumStore, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	noop := func() error { return nil }

	switch cfg.Storage.Driver {
	case config.DriverMemory, "":
		logger.Info("using in-memory snapshot store")
		return NewMemorySnapshots(SystemClock), noop, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using sqlite snapshot store", zap.String("path", cfg.Storage.SQLitePath))
		return store, store.Close, nil

	case config.DriverPostgres:
		pool, err := NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return NewSnapshotRepository(pool, SystemClock), func() error { pool.Close(); return nil }, nil

	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("using redis snapshot store",
			zap.String("addr", cfg.Redis.Addr),
			zap.Duration("ttl", cfg.Redis.TTL))
		return NewRedisSnapshots(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL, SystemClock), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
