package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/curvesentinel/node/internal/config"
	"github.com/curvesentinel/node/pkg/observability"
)

// KV wraps a Redis client for the three things the core needs from a
// shared key-value/stream store: state-engine snapshots, the signal
// bus's durable streams, and the intelligence stores' sorted sets and
// hashes. It intentionally carries none of a general-purpose caching
// layer's tiering.
type KV struct {
	client *redis.Client
	logger *observability.Logger
}

func NewKV(cfg config.RedisConfig, logger *observability.Logger) (*KV, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &KV{client: client, logger: logger}, nil
}

func (k *KV) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := k.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (k *KV) Close() error {
	return k.client.Close()
}

// Get/Set/Delete back the State Engine's periodic snapshot (§4.2,
// 30s interval, 300s expiry) and any other single-key blob.

func (k *KV) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := k.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (k *KV) Get(ctx context.Context, key string) (string, error) {
	val, err := k.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get %q: %w", key, err)
	}
	return val, nil
}

func (k *KV) Delete(ctx context.Context, key string) error {
	if err := k.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// Streams back the Signal Bus's cross-node durable delivery.

func (k *KV) XAdd(ctx context.Context, stream string, values map[string]interface{}) (string, error) {
	return k.XAddCapped(ctx, stream, values, 0)
}

// XAddCapped appends to stream, approximately trimming it to maxLen
// entries (0 disables trimming). Approximate trimming avoids the O(n)
// cost of an exact MAXLEN on every append.
func (k *KV) XAddCapped(ctx context.Context, stream string, values map[string]interface{}, maxLen int64) (string, error) {
	args := &redis.XAddArgs{Stream: stream, Values: values}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	id, err := k.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("redis xadd %q: %w", stream, err)
	}
	return id, nil
}

func (k *KV) XGroupCreateMkStream(ctx context.Context, stream, group string) error {
	err := k.client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("redis xgroup create %q/%q: %w", stream, group, err)
	}
	return nil
}

func (k *KV) XReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]redis.XStream, error) {
	res, err := k.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis xreadgroup %q/%q: %w", stream, group, err)
	}
	return res, nil
}

func (k *KV) XAck(ctx context.Context, stream, group string, ids ...string) error {
	if err := k.client.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("redis xack %q/%q: %w", stream, group, err)
	}
	return nil
}

// Sorted sets and hashes back the intelligence stores (deployer
// scores, wallet graph edges, pattern statistics).

func (k *KV) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := k.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("redis zadd %q: %w", key, err)
	}
	return nil
}

func (k *KV) ZScore(ctx context.Context, key, member string) (float64, error) {
	score, err := k.client.ZScore(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis zscore %q/%q: %w", key, member, err)
	}
	return score, nil
}

func (k *KV) ZRangeByScore(ctx context.Context, key string, min, max string) ([]string, error) {
	members, err := k.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: min, Max: max}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore %q: %w", key, err)
	}
	return members, nil
}

func (k *KV) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	if err := k.client.HSet(ctx, key, values).Err(); err != nil {
		return fmt.Errorf("redis hset %q: %w", key, err)
	}
	return nil
}

func (k *KV) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	values, err := k.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %q: %w", key, err)
	}
	return values, nil
}

func (k *KV) SAdd(ctx context.Context, key string, members ...interface{}) error {
	if err := k.client.SAdd(ctx, key, members...).Err(); err != nil {
		return fmt.Errorf("redis sadd %q: %w", key, err)
	}
	return nil
}

func (k *KV) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := k.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %q: %w", key, err)
	}
	return members, nil
}

func (k *KV) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := k.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire %q: %w", key, err)
	}
	return nil
}
