package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "ratelimit:"

// RateLimitRepository keeps sliding-window request logs in Redis sorted sets,
// one set per key scored by request time.
type RateLimitRepository struct {
	client *redis.Client
	now    func() time.Time
}

// NewRateLimitRepository constructs a rate limit repository.
func NewRateLimitRepository(client *redis.Client) *RateLimitRepository {
	return &RateLimitRepository{client: client, now: time.Now}
}

// Allow records a hit for key and reports whether at most limit hits fall
// inside the trailing window. Rejected hits are not recorded. Without a
// client every request is allowed.
func (r *RateLimitRepository) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return true, nil
	}
	if limit <= 0 || window <= 0 {
		return false, fmt.Errorf("redis rate limit %s: limit and window must be positive", key)
	}

	now := r.now()
	redisKey := rateLimitKeyPrefix + key
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()
	floor := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", "("+floor)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	card := pipe.ZCard(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis rate limit %s: %w", key, err)
	}

	if card.Val() <= int64(limit) {
		return true, nil
	}
	if err := r.client.ZRem(ctx, redisKey, member).Err(); err != nil {
		return false, fmt.Errorf("redis rate limit rollback %s: %w", key, err)
	}
	return false, nil
}

// Close releases the underlying Redis connection if present.
func (r *RateLimitRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
