package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
)

// RedisSnapshots stores snapshots in Redis. Each game has a data key and a
// checksum key sharing one TTL; a sorted set indexes games by save time.
type RedisSnapshots struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	clock  Clock
}

// NewRedisSnapshots creates a store. A zero ttl keeps snapshots forever.
func NewRedisSnapshots(client redis.UniversalClient, prefix string, ttl time.Duration, clock Clock) *RedisSnapshots {
	if prefix == "" {
		prefix = "oath"
	}
	if clock == nil {
		clock = SystemClock
	}
	return &RedisSnapshots{client: client, prefix: prefix, ttl: ttl, clock: clock}
}

func (r *RedisSnapshots) dataKey(gameID string) string {
	return fmt.Sprintf("%s:snapshot:%s", r.prefix, gameID)
}

func (r *RedisSnapshots) checksumKey(gameID string) string {
	return fmt.Sprintf("%s:snapshot:%s:checksum", r.prefix, gameID)
}

func (r *RedisSnapshots) indexKey() string {
	return r.prefix + ":snapshots"
}

func (r *RedisSnapshots) Save(ctx context.Context, gameID, checksum string, data []byte) error {
	if gameID == "" {
		return oatherr.InvalidArgumentf("game id is required")
	}
	now := r.clock.Now()

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.dataKey(gameID), data, r.ttl)
	pipe.Set(ctx, r.checksumKey(gameID), checksum, r.ttl)
	pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(now.UnixMilli()), Member: gameID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save snapshot %s: %w", gameID, err)
	}
	return nil
}

func (r *RedisSnapshots) Load(ctx context.Context, gameID string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.dataKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, oatherr.NotFoundf("no snapshot for game %s", gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", gameID, err)
	}
	return data, nil
}

// Checksum returns the checksum the snapshot was saved with.
func (r *RedisSnapshots) Checksum(ctx context.Context, gameID string) (string, error) {
	sum, err := r.client.Get(ctx, r.checksumKey(gameID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", oatherr.NotFoundf("no snapshot for game %s", gameID)
	}
	if err != nil {
		return "", fmt.Errorf("load checksum %s: %w", gameID, err)
	}
	return sum, nil
}

// List drops index entries whose snapshot has expired, then returns the
// rest newest first.
func (r *RedisSnapshots) List(ctx context.Context) ([]string, error) {
	if r.ttl > 0 {
		cutoff := r.clock.Now().Add(-r.ttl).UnixMilli()
		if err := r.client.ZRemRangeByScore(ctx, r.indexKey(), "-inf", "("+strconv.FormatInt(cutoff, 10)).Err(); err != nil {
			return nil, fmt.Errorf("prune snapshot index: %w", err)
		}
	}
	ids, err := r.client.ZRevRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return ids, nil
}

func (r *RedisSnapshots) Delete(ctx context.Context, gameID string) error {
	pipe := r.client.Pipeline()
	del := pipe.Del(ctx, r.dataKey(gameID), r.checksumKey(gameID))
	pipe.ZRem(ctx, r.indexKey(), gameID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", gameID, err)
	}
	if del.Val() == 0 {
		return oatherr.NotFoundf("no snapshot for game %s", gameID)
	}
	return nil
}
