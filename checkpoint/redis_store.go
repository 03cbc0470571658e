package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore persists checkpoints in Redis. Each thread maps to one key; a
// sorted set indexes threads by last-update time for the retention sweep.
// The single SET per Save is the atomicity guarantee.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore creates a Redis-backed checkpoint store. ttl of zero means
// keys never expire (retention is then the sweep's job alone).
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "agentchain"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With(zap.String("store", "redis_checkpoint")),
	}
}

func (s *RedisStore) key(threadID string) string {
	return s.prefix + ":ckpt:" + threadID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":ckpt_index"
}

// Save writes the checkpoint blob and updates the time index.
func (s *RedisStore) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	if err := s.client.Set(ctx, s.key(cp.ThreadID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	if err := s.client.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(cp.UpdatedAt.Unix()),
		Member: cp.ThreadID,
	}).Err(); err != nil {
		// The blob is saved; a stale index entry only delays the sweep.
		s.logger.Warn("failed to update checkpoint index",
			zap.String("thread_id", cp.ThreadID),
			zap.Error(err),
		)
	}
	return nil
}

// Load fetches the thread's checkpoint blob.
func (s *RedisStore) Load(ctx context.Context, threadID string) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, s.key(threadID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// Delete removes the blob and its index entry.
func (s *RedisStore) Delete(ctx context.Context, threadID string) error {
	if err := s.client.Del(ctx, s.key(threadID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return s.client.ZRem(ctx, s.indexKey(), threadID).Err()
}

// DeleteOlderThan removes all checkpoints last updated before the cutoff,
// using the time index to find them.
func (s *RedisStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	max := strconv.FormatInt(cutoff.Unix(), 10)
	threadIDs, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + max,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zrangebyscore: %w", err)
	}
	if len(threadIDs) == 0 {
		return 0, nil
	}

	keys := make([]string, len(threadIDs))
	for i, id := range threadIDs {
		keys[i] = s.key(id)
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+max).Err(); err != nil {
		return 0, fmt.Errorf("redis zremrangebyscore: %w", err)
	}
	return len(threadIDs), nil
}
