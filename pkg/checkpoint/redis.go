package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const backendRedis = "redis"

// KeyPrefix namespaces checkpoint keys.
const KeyPrefix = "batchfetch:checkpoint:"

// RedisStore keeps the checkpoint as a JSON string value. SET replaces the
// whole value, so readers never observe a partial write.
type RedisStore struct {
	redis  *redis.Client
	key    string
	logger zerolog.Logger
}

// NewRedisStore creates a store for the named checkpoint.
func NewRedisStore(redisClient *redis.Client, name string, logger zerolog.Logger) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:  redisClient,
		key:    KeyPrefix + name,
		logger: logger,
	}
}

// Key returns the Redis key holding the checkpoint.
func (r *RedisStore) Key() string { return r.key }

// Load reads the checkpoint. A missing key or corrupt value yields
// (nil, nil); connection errors are returned.
func (r *RedisStore) Load(ctx context.Context) (*State, error) {
	data, err := r.redis.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		checkpointErrors.WithLabelValues(backendRedis, "load").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		checkpointErrors.WithLabelValues(backendRedis, "load").Inc()
		r.logger.Warn().Err(err).Str("key", r.key).Msg("Checkpoint corrupt - starting fresh")
		return nil, nil
	}
	return &s, nil
}

// Save stores s without expiry.
func (r *RedisStore) Save(ctx context.Context, s *State) error {
	if s == nil {
		return fmt.Errorf("checkpoint state cannot be nil")
	}

	data, err := json.Marshal(s)
	if err != nil {
		checkpointErrors.WithLabelValues(backendRedis, "save").Inc()
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := r.redis.Set(ctx, r.key, data, 0).Err(); err != nil {
		checkpointErrors.WithLabelValues(backendRedis, "save").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	checkpointSaves.WithLabelValues(backendRedis).Inc()
	checkpointBytes.WithLabelValues(backendRedis).Set(float64(len(data)))
	return nil
}

// MarkCompleted flags the stored checkpoint as completed.
func (r *RedisStore) MarkCompleted(ctx context.Context) error {
	return markCompleted(ctx, r)
}

// Reset deletes the checkpoint key.
func (r *RedisStore) Reset(ctx context.Context) error {
	if err := r.redis.Del(ctx, r.key).Err(); err != nil {
		checkpointErrors.WithLabelValues(backendRedis, "reset").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
