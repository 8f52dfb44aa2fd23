package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"tender-notifier/pkg/tender"
)

const defaultPrefix = "tenders"

// Redis stores the cache record and announced stats as JSON values so every
// replica serves the same fallback.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

// NewRedis creates a Redis-backed store. An empty prefix uses "tenders".
func NewRedis(client *redis.Client, prefix string, logger *slog.Logger) *Redis {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Redis{client: client, prefix: prefix, logger: logger}
}

func (r *Redis) recordKey() string { return r.prefix + ":cache" }
func (r *Redis) statsKey() string  { return r.prefix + ":stats" }

// Get returns the stored record, or the empty default when none exists.
func (r *Redis) Get(ctx context.Context) (tender.CacheRecord, error) {
	data, err := r.client.Get(ctx, r.recordKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return tender.EmptyCacheRecord(), nil
	}
	if err != nil {
		return tender.CacheRecord{}, fmt.Errorf("get cache record: %w", err)
	}

	var rec tender.CacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return tender.CacheRecord{}, fmt.Errorf("unmarshal cache record: %w", err)
	}
	if rec.Tenders == nil {
		rec.Tenders = []tender.Tender{}
	}
	return rec, nil
}

// Set replaces the stored record.
func (r *Redis) Set(ctx context.Context, rec tender.CacheRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cache record: %w", err)
	}
	if err := r.client.Set(ctx, r.recordKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("set cache record: %w", err)
	}
	r.logger.Debug("Cache record stored in redis", "key", r.recordKey(), "tenders", len(rec.Tenders), "bytes", len(data))
	return nil
}

// Stats returns the last announced count.
func (r *Redis) Stats(ctx context.Context) (tender.StatsRecord, bool, error) {
	data, err := r.client.Get(ctx, r.statsKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return tender.StatsRecord{}, false, nil
	}
	if err != nil {
		return tender.StatsRecord{}, false, fmt.Errorf("get stats: %w", err)
	}

	var rec tender.StatsRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return tender.StatsRecord{}, false, fmt.Errorf("unmarshal stats: %w", err)
	}
	return rec, true, nil
}

// SetStats replaces the announced count.
func (r *Redis) SetStats(ctx context.Context, rec tender.StatsRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	if err := r.client.Set(ctx, r.statsKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("set stats: %w", err)
	}
	return nil
}
